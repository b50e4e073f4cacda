package walkability

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
)

// ErrUnknownAttribute indicates a sort or filter attribute outside the
// allow-list. Attribute names end up in SQL queries, so they are never
// accepted verbatim from callers.
var ErrUnknownAttribute = errors.New("unknown attribute")

// sortAttrs are the attributes List accepts in ListFilter.SortBy.
var sortAttrs = map[string]struct{}{
	"street":                        {},
	"city":                          {},
	"state":                         {},
	"intersection_density":          {},
	"transit_access":                {},
	"job_housing_mix":               {},
	"population_employment_density": {},
	"national_walkability_index":    {},
}

// valueColumns are the columns DistinctValues accepts.
var valueColumns = map[string]struct{}{
	"city":  {},
	"state": {},
}

// SortAttrs returns the attributes List can sort by, sorted by name.
func SortAttrs() []string {
	attrs := make([]string, 0, len(sortAttrs))
	for a := range sortAttrs {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	return attrs
}

// ValidSortAttr reports whether name is an attribute List can sort by.
func ValidSortAttr(name string) bool {
	_, ok := sortAttrs[name]
	return ok
}

// ValidValueColumn reports whether name is a column DistinctValues accepts.
func ValidValueColumn(name string) bool {
	_, ok := valueColumns[name]
	return ok
}

// SearchFilter is used to filter searches.
// Returned searches must match all the provided fields.
// If a field is empty or nil, it's ignored.
type SearchFilter struct {
	UserIDs   []uuid.UUID
	SearchIDs []int
	Address   *Address
}

// ListFilter selects and orders the rows returned by List.
type ListFilter struct {
	// SortBy must be one of the allow-listed sort attributes.
	SortBy string
	Desc   bool
	// City and State are optional equality filters.
	City  string
	State string
}

// DistinctFilter selects the values returned by DistinctValues.
// Column is required, the dependent fields optionally narrow the rows
// considered, to support cascading dropdowns.
type DistinctFilter struct {
	Column          string
	DependentColumn string
	DependentValue  string
}

// Row is a saved search joined with its walkability record.
// Record is nil when the reference table has no data for the block group.
type Row struct {
	Search Search
	Record *Record
}

// Store provides access to the search and walkability stores.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)

	FindSearches(ctx context.Context, filter *SearchFilter) ([]Search, error)
	FindRecord(ctx context.Context, censusBlock string) (Record, error)
	ListRows(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Row, error)
	DistinctValues(ctx context.Context, userID uuid.UUID, filter DistinctFilter) ([]string, error)
	DeleteSearches(ctx context.Context, userID uuid.UUID, searchIDs []int) error
}

// Tx is a transaction. If an error occurs on any of the methods, the
// transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	FindSearches(filter *SearchFilter) ([]Search, error)
	NextSearchID(userID uuid.UUID) (int, error)
	CreateSearch(s *Search) error
}
