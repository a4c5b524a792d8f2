package domain

// MenuNode is one node of a hierarchical menu definition. Name is the stable identity.
type MenuNode struct {
	Name     string
	Children []MenuNode
}

// ReconcileResult summarises the writes applied by a menu reconciliation.
type ReconcileResult struct {
	Created    int
	Reparented int
	Deleted    int
	Unchanged  int
}

// Changed reports whether the reconciliation wrote anything.
func (r ReconcileResult) Changed() bool {
	return r.Created > 0 || r.Reparented > 0 || r.Deleted > 0
}

// Total returns the number of nodes present in the reconciled tree.
func (r ReconcileResult) Total() int {
	return r.Created + r.Reparented + r.Unchanged
}
