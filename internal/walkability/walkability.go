// Package walkability provides the saved-search rules: resolving a street
// address to a census block group, looking up the walkability metrics for
// that block group and managing a user's list of saved searches.
package walkability

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/errorz"
)

// Record contains the precomputed walkability metrics for a block group.
// Records are reference data, they are never written at runtime.
type Record struct {
	CensusBlock                 string
	IntersectionDensity         float64
	TransitAccess               float64
	JobHousingMix               float64
	PopulationEmploymentDensity float64
	NationalWalkabilityIndex    float64
}

// Address is a street address as submitted by a user.
type Address struct {
	Street string
	City   string
	State  string
}

var (
	errEmptyStreet = errors.New("street must not be empty")
	errEmptyCity   = errors.New("city must not be empty")
	errEmptyState  = errors.New("state must not be empty")
)

// Validate checks that all address fields are provided.
func (a Address) Validate() error {
	var invalid errorz.InvalidInput

	if strings.TrimSpace(a.Street) == "" {
		invalid = append(invalid, errorz.Keyed{Key: "Street", Err: errEmptyStreet})
	}
	if strings.TrimSpace(a.City) == "" {
		invalid = append(invalid, errorz.Keyed{Key: "City", Err: errEmptyCity})
	}
	if strings.TrimSpace(a.State) == "" {
		invalid = append(invalid, errorz.Keyed{Key: "State", Err: errEmptyState})
	}

	if len(invalid) > 0 {
		return invalid
	}

	return nil
}

// Search is a saved search: an address and the block group it resolved to.
// SearchID is unique per user, the first search of a user gets id 0.
type Search struct {
	UserID      uuid.UUID
	SearchID    int
	Street      string
	City        string
	State       string
	CensusBlock string
	CreatedAt   time.Time
}

// Address returns the address the search was saved for.
func (s Search) Address() Address {
	return Address{
		Street: s.Street,
		City:   s.City,
		State:  s.State,
	}
}
