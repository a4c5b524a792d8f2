package domain

import (
	"strings"
	"time"
)

// FilterKind classifies how a filterable field matches.
type FilterKind int

const (
	// FilterContains performs a case-insensitive substring match.
	FilterContains FilterKind = iota
	// FilterBool matches a boolean column against "true"/"false".
	FilterBool
	// FilterTimeRange matches a timestamp column against an inclusive [from, to] pair supplied as field[].
	FilterTimeRange
)

// FilterField declares a single field clients may filter on.
type FilterField struct {
	Name string
	Kind FilterKind
}

// FilterSchema is the static allow-list of filterable fields for one entity.
type FilterSchema struct {
	Entity string
	Fields []FilterField
}

// UserFilterSchema lists the user fields accepted by administrative listings.
var UserFilterSchema = FilterSchema{
	Entity: "user",
	Fields: []FilterField{
		{Name: "username", Kind: FilterContains},
		{Name: "name", Kind: FilterContains},
		{Name: "email", Kind: FilterContains},
		{Name: "phone_number", Kind: FilterContains},
		{Name: "address", Kind: FilterContains},
		{Name: "is_active", Kind: FilterBool},
		{Name: "last_login", Kind: FilterTimeRange},
		{Name: "date_joined", Kind: FilterTimeRange},
	},
}

// RoleFilterSchema lists the role fields accepted by role listings.
var RoleFilterSchema = FilterSchema{
	Entity: "role",
	Fields: []FilterField{
		{Name: "name", Kind: FilterContains},
		{Name: "description", Kind: FilterContains},
		{Name: "created_at", Kind: FilterTimeRange},
		{Name: "updated_at", Kind: FilterTimeRange},
	},
}

// TimeRange is an inclusive timestamp window.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Filter is a parsed, allow-listed set of listing conditions.
type Filter struct {
	Contains map[string]string
	Bools    map[string]bool
	Ranges   map[string]TimeRange
	// RoleIDs restricts users to those holding every listed role.
	RoleIDs []string
}

// IsEmpty reports whether the filter carries no conditions.
func (f Filter) IsEmpty() bool {
	return len(f.Contains) == 0 && len(f.Bools) == 0 && len(f.Ranges) == 0 && len(f.RoleIDs) == 0
}

var filterTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse extracts the allow-listed conditions from query parameters. Unknown parameters,
// empty values and unparsable ranges are ignored.
func (s FilterSchema) Parse(params map[string][]string) Filter {
	filter := Filter{
		Contains: make(map[string]string),
		Bools:    make(map[string]bool),
		Ranges:   make(map[string]TimeRange),
	}

	for _, field := range s.Fields {
		switch field.Kind {
		case FilterContains:
			if value := firstValue(params[field.Name]); value != "" {
				filter.Contains[field.Name] = value
			}
		case FilterBool:
			if value := firstValue(params[field.Name]); value != "" {
				filter.Bools[field.Name] = strings.EqualFold(value, "true")
			}
		case FilterTimeRange:
			values := params[field.Name+"[]"]
			if len(values) != 2 {
				continue
			}
			from, okFrom := parseFilterTime(values[0])
			to, okTo := parseFilterTime(values[1])
			if okFrom && okTo {
				filter.Ranges[field.Name] = TimeRange{From: from, To: to}
			}
		}
	}

	return filter
}

// Allows reports whether the named field is part of the schema.
func (s FilterSchema) Allows(name string) bool {
	for _, field := range s.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func parseFilterTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range filterTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
