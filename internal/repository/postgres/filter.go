package postgres

import (
	"sort"
	"strings"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// applyFilter translates an allow-listed filter into WHERE clauses. Fields missing from
// columns are ignored, so a filter parsed for another schema cannot reach arbitrary columns.
func applyFilter(query squirrel.SelectBuilder, filter domain.Filter, columns map[string]string) squirrel.SelectBuilder {
	for _, name := range sortedKeys(filter.Contains) {
		column, ok := columns[name]
		if !ok {
			continue
		}
		query = query.Where(squirrel.ILike{column: "%" + likeEscaper.Replace(filter.Contains[name]) + "%"})
	}

	for _, name := range sortedKeys(filter.Bools) {
		column, ok := columns[name]
		if !ok {
			continue
		}
		query = query.Where(squirrel.Eq{column: filter.Bools[name]})
	}

	for _, name := range sortedKeys(filter.Ranges) {
		column, ok := columns[name]
		if !ok {
			continue
		}
		window := filter.Ranges[name]
		query = query.Where(squirrel.GtOrEq{column: window.From}).Where(squirrel.LtOrEq{column: window.To})
	}

	return query
}

func applyPage(query squirrel.SelectBuilder, page domain.Page) squirrel.SelectBuilder {
	if page.Size <= 0 {
		return query
	}
	return query.Limit(uint64(page.Size)).Offset(page.Offset())
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
