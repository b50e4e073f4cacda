package walkability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/errorz"
)

// Resolver resolves a street address to a census block group.
type Resolver interface {
	Resolve(ctx context.Context, street, city, state string) (string, error)
}

// Service provides the main rules for saved searches.
type Service struct {
	store    Store
	resolver Resolver

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(store Store, resolver Resolver) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		NowFunc:  time.Now,
	}
}

// SaveResult is the outcome of saving a search.
type SaveResult struct {
	Search Search
	// Record is nil when there is no walkability data for the block group.
	// That is a reportable outcome, not an error.
	Record *Record
	// Existed is true when an identical search was already saved and no
	// new row was created.
	Existed bool
}

// Save resolves the address, looks up the walkability record for the
// resulting block group and records the search for the user.
//
// Save is idempotent per (user, address): resubmitting an identical address
// does not create a second row but still returns the current walkability
// result. A new search gets the next per-user search id, starting at 0.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, addr Address) (SaveResult, error) {
	if err := addr.Validate(); err != nil {
		return SaveResult{}, err
	}

	block, err := s.resolver.Resolve(ctx, addr.Street, addr.City, addr.State)
	if err != nil {
		return SaveResult{}, err
	}

	var res SaveResult
	err = s.inTx(ctx, func(tx Tx) error {
		existing, txErr := tx.FindSearches(&SearchFilter{
			UserIDs: []uuid.UUID{userID},
			Address: &addr,
		})
		if txErr != nil {
			return txErr
		}

		if len(existing) > 0 {
			res.Search = existing[0]
			res.Existed = true
			return nil
		}

		next, txErr := tx.NextSearchID(userID)
		if txErr != nil {
			return txErr
		}

		search := Search{
			UserID:      userID,
			SearchID:    next,
			Street:      addr.Street,
			City:        addr.City,
			State:       addr.State,
			CensusBlock: block,
			CreatedAt:   s.NowFunc(),
		}

		if txErr := tx.CreateSearch(&search); txErr != nil {
			return txErr
		}

		res.Search = search
		return nil
	})

	if errors.Is(err, errorz.ErrConstraintViolated) {
		// A concurrent identical save won the race between our existence
		// check and insert. The unique index on the address tuple kept the
		// table consistent, treat this as the already-saved case.
		existing, findErr := s.store.FindSearches(ctx, &SearchFilter{
			UserIDs: []uuid.UUID{userID},
			Address: &addr,
		})
		if findErr != nil {
			return SaveResult{}, findErr
		}
		if len(existing) != 1 {
			return SaveResult{}, err
		}

		res.Search = existing[0]
		res.Existed = true
	} else if err != nil {
		return SaveResult{}, err
	}

	record, err := s.store.FindRecord(ctx, block)
	switch {
	case errors.Is(err, errorz.ErrNotFound):
		res.Record = nil
	case err != nil:
		return SaveResult{}, err
	default:
		res.Record = &record
	}

	return res, nil
}

// List returns the user's saved searches joined with their walkability
// records, filtered and ordered according to the filter. No matches is a
// valid outcome and returns an empty slice.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Row, error) {
	if filter.SortBy == "" {
		filter.SortBy = "national_walkability_index"
	}

	if !ValidSortAttr(filter.SortBy) {
		return nil, fmt.Errorf("sort attribute %q: %w", filter.SortBy, ErrUnknownAttribute)
	}

	return s.store.ListRows(ctx, userID, filter)
}

// DistinctValues returns the sorted distinct values of a city or state
// column among the user's saved searches, optionally narrowed by the other
// of the two columns.
func (s *Service) DistinctValues(ctx context.Context, userID uuid.UUID, filter DistinctFilter) ([]string, error) {
	if !ValidValueColumn(filter.Column) {
		return nil, fmt.Errorf("column %q: %w", filter.Column, ErrUnknownAttribute)
	}

	if filter.DependentColumn != "" {
		if !ValidValueColumn(filter.DependentColumn) || filter.DependentColumn == filter.Column {
			return nil, fmt.Errorf("dependent column %q: %w", filter.DependentColumn, ErrUnknownAttribute)
		}
	}

	return s.store.DistinctValues(ctx, userID, filter)
}

// Delete removes the searches with the provided ids for the user.
// Ids that don't match a row are silently ignored, deleting is idempotent.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, searchIDs []int) error {
	if len(searchIDs) == 0 {
		return nil
	}

	return s.store.DeleteSearches(ctx, userID, searchIDs)
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	return nil
}
