package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/walkability"
)

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error {
	return t.tx.Commit()
}

func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// FindSearches queries for searches based on the provided filter.
// It returns an empty slice if no searches are found.
func (t *Tx) FindSearches(filter *walkability.SearchFilter) ([]walkability.Search, error) {
	return selectSearches(t.tx.Query, filter)
}

// NextSearchID returns the search id to use for the user's next search.
// The first search of a user gets id 0.
func (t *Tx) NextSearchID(userID uuid.UUID) (int, error) {
	return nextSearchID(t.tx.QueryRow, userID)
}

// CreateSearch creates a search in the database.
func (t *Tx) CreateSearch(s *walkability.Search) error {
	return insertSearch(t.tx.Exec, s)
}
