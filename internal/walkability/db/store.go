package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/walkability"
)

// Store is responsible for persisting searches and reading the walkability
// reference table.
type Store struct {
	db *sql.DB
}

// New creates a new Store.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (walkability.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx: tx,
	}, nil
}

// FindSearches queries for searches based on the provided filter without a transaction.
func (s *Store) FindSearches(ctx context.Context, filter *walkability.SearchFilter) ([]walkability.Search, error) {
	return selectSearches(func(query string, params ...any) (*sql.Rows, error) {
		return s.db.QueryContext(ctx, query, params...)
	}, filter)
}

// FindRecord returns the walkability record for the block group.
// It returns errorz.ErrNotFound if the reference table has no row for it.
func (s *Store) FindRecord(ctx context.Context, censusBlock string) (walkability.Record, error) {
	return selectRecord(ctx, s.db, censusBlock)
}

// ListRows returns the user's searches joined with their walkability records.
func (s *Store) ListRows(ctx context.Context, userID uuid.UUID, filter walkability.ListFilter) ([]walkability.Row, error) {
	return selectRows(ctx, s.db, userID, filter)
}

// DistinctValues returns sorted distinct city or state values among the user's searches.
func (s *Store) DistinctValues(ctx context.Context, userID uuid.UUID, filter walkability.DistinctFilter) ([]string, error) {
	return selectDistinctValues(ctx, s.db, userID, filter)
}

// DeleteSearches deletes the user's searches with the provided ids.
// Ids without a matching row are ignored.
func (s *Store) DeleteSearches(ctx context.Context, userID uuid.UUID, searchIDs []int) error {
	return deleteSearches(ctx, s.db, userID, searchIDs)
}
