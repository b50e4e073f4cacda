package db_test

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/db/testdb"
	"github.com/stefchosov/walkdata/internal/errorz"
	"github.com/stefchosov/walkdata/internal/walkability"
	"github.com/stefchosov/walkdata/internal/walkability/db"
)

func Test_Tx_NextSearchID(t *testing.T) {
	t.Run("ok, first search id is 0", func(t *testing.T) {
		ft := newFixture(t)

		tx, err := ft.store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}
		defer rollback(t, tx)

		next, err := tx.NextSearchID(ft.alice)
		if err != nil {
			t.Fatalf("failed to get next search id: %v", err)
		}

		if next != 0 {
			t.Errorf("got %d, want 0", next)
		}
	})

	t.Run("ok, ids are per user", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")
		ft.seedSearch(ft.alice, 1, "456 Oak Ave", "Chicago", "IL", "170318300042")

		tx, err := ft.store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}
		defer rollback(t, tx)

		next, err := tx.NextSearchID(ft.alice)
		if err != nil {
			t.Fatalf("failed to get next search id: %v", err)
		}

		if next != 2 {
			t.Errorf("got %d for alice, want 2", next)
		}

		next, err = tx.NextSearchID(ft.bob)
		if err != nil {
			t.Fatalf("failed to get next search id: %v", err)
		}

		if next != 0 {
			t.Errorf("got %d for bob, want 0", next)
		}
	})
}

func Test_Tx_CreateSearch(t *testing.T) {
	t.Run("ok, create and find search", func(t *testing.T) {
		ft := newFixture(t)

		search := walkability.Search{
			UserID:      ft.alice,
			SearchID:    0,
			Street:      "123 Main St",
			City:        "Chicago",
			State:       "IL",
			CensusBlock: "170318300041",
			CreatedAt:   now(t),
		}

		tx, err := ft.store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		err = tx.CreateSearch(&search)
		if err != nil {
			t.Fatalf("failed to create search: %v", err)
		}

		err = tx.Commit()
		if err != nil {
			t.Fatalf("failed to commit tx: %v", err)
		}

		got, err := ft.store.FindSearches(context.Background(), &walkability.SearchFilter{
			UserIDs: []uuid.UUID{ft.alice},
		})
		if err != nil {
			t.Fatalf("failed to find searches: %v", err)
		}

		want := []walkability.Search{search}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got\n%#v\nwant\n%#v\n", got, want)
		}
	})

	t.Run("fail, zero uuid", func(t *testing.T) {
		ft := newFixture(t)

		tx, err := ft.store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}
		defer rollback(t, tx)

		err = tx.CreateSearch(&walkability.Search{
			Street:      "123 Main St",
			City:        "Chicago",
			State:       "IL",
			CensusBlock: "170318300041",
			CreatedAt:   now(t),
		})
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
		}
	})

	t.Run("fail, duplicate address for same user", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")

		tx, err := ft.store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}
		defer rollback(t, tx)

		err = tx.CreateSearch(&walkability.Search{
			UserID:      ft.alice,
			SearchID:    1,
			Street:      "123 Main St",
			City:        "Chicago",
			State:       "IL",
			CensusBlock: "170318300041",
			CreatedAt:   now(t),
		})
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
		}
	})

	t.Run("ok, same address for different user", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")

		tx, err := ft.store.BeginTx(context.Background())
		if err != nil {
			t.Fatalf("failed to begin tx: %v", err)
		}

		err = tx.CreateSearch(&walkability.Search{
			UserID:      ft.bob,
			SearchID:    0,
			Street:      "123 Main St",
			City:        "Chicago",
			State:       "IL",
			CensusBlock: "170318300041",
			CreatedAt:   now(t),
		})
		if err != nil {
			t.Fatalf("failed to create search: %v", err)
		}

		err = tx.Commit()
		if err != nil {
			t.Fatalf("failed to commit tx: %v", err)
		}
	})
}

func Test_Store_FindRecord(t *testing.T) {
	t.Run("ok, record found", func(t *testing.T) {
		ft := newFixture(t)
		want := testRecord("170318300041", 15.3)
		ft.seedRecord(want)

		got, err := ft.store.FindRecord(context.Background(), "170318300041")
		if err != nil {
			t.Fatalf("failed to find record: %v", err)
		}

		if !reflect.DeepEqual(got, want) {
			t.Errorf("got\n%#v\nwant\n%#v\n", got, want)
		}
	})

	t.Run("fail, not found", func(t *testing.T) {
		ft := newFixture(t)

		_, err := ft.store.FindRecord(context.Background(), "170318300041")
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})
}

func Test_Store_ListRows(t *testing.T) {
	t.Run("ok, sorted by walkability index descending", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedRecord(testRecord("170318300041", 15.3))
		ft.seedRecord(testRecord("170318300042", 7.1))
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")
		ft.seedSearch(ft.alice, 1, "456 Oak Ave", "Springfield", "IL", "170318300042")

		rows, err := ft.store.ListRows(context.Background(), ft.alice, walkability.ListFilter{
			SortBy: "national_walkability_index",
			Desc:   true,
		})
		if err != nil {
			t.Fatalf("failed to list rows: %v", err)
		}

		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}

		if rows[0].Search.SearchID != 0 || rows[1].Search.SearchID != 1 {
			t.Errorf("got order %d, %d, want 0, 1", rows[0].Search.SearchID, rows[1].Search.SearchID)
		}

		if rows[0].Record == nil || rows[0].Record.NationalWalkabilityIndex != 15.3 {
			t.Errorf("got record %+v, want index 15.3", rows[0].Record)
		}
	})

	t.Run("ok, sorted by city ascending", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Springfield", "IL", "170318300041")
		ft.seedSearch(ft.alice, 1, "456 Oak Ave", "Chicago", "IL", "170318300042")

		rows, err := ft.store.ListRows(context.Background(), ft.alice, walkability.ListFilter{
			SortBy: "city",
		})
		if err != nil {
			t.Fatalf("failed to list rows: %v", err)
		}

		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}

		if rows[0].Search.City != "Chicago" {
			t.Errorf("got first city %s, want Chicago", rows[0].Search.City)
		}
	})

	t.Run("ok, filter by city", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")
		ft.seedSearch(ft.alice, 1, "456 Oak Ave", "Springfield", "IL", "170318300042")

		rows, err := ft.store.ListRows(context.Background(), ft.alice, walkability.ListFilter{
			SortBy: "street",
			City:   "Chicago",
		})
		if err != nil {
			t.Fatalf("failed to list rows: %v", err)
		}

		if len(rows) != 1 || rows[0].Search.City != "Chicago" {
			t.Fatalf("expected only the Chicago row, got %+v", rows)
		}
	})

	t.Run("ok, rows are scoped to the user", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")
		ft.seedSearch(ft.bob, 0, "456 Oak Ave", "Springfield", "IL", "170318300042")

		rows, err := ft.store.ListRows(context.Background(), ft.alice, walkability.ListFilter{
			SortBy: "street",
		})
		if err != nil {
			t.Fatalf("failed to list rows: %v", err)
		}

		if len(rows) != 1 || rows[0].Search.UserID != ft.alice {
			t.Fatalf("expected only alice's row, got %+v", rows)
		}
	})

	t.Run("ok, missing record yields nil", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")

		rows, err := ft.store.ListRows(context.Background(), ft.alice, walkability.ListFilter{
			SortBy: "national_walkability_index",
		})
		if err != nil {
			t.Fatalf("failed to list rows: %v", err)
		}

		if len(rows) != 1 {
			t.Fatalf("expected 1 row, got %d", len(rows))
		}

		if rows[0].Record != nil {
			t.Errorf("expected nil record, got %+v", rows[0].Record)
		}
	})

	t.Run("fail, unknown sort attribute", func(t *testing.T) {
		ft := newFixture(t)

		_, err := ft.store.ListRows(context.Background(), ft.alice, walkability.ListFilter{
			SortBy: "created_at; DROP TABLE searches",
		})
		if !errors.Is(err, walkability.ErrUnknownAttribute) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", walkability.ErrUnknownAttribute, err)
		}
	})
}

func Test_Store_DistinctValues(t *testing.T) {
	t.Run("ok, distinct cities", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")
		ft.seedSearch(ft.alice, 1, "456 Oak Ave", "Chicago", "IL", "170318300042")
		ft.seedSearch(ft.alice, 2, "789 Elm St", "Madison", "WI", "550250016001")

		got, err := ft.store.DistinctValues(context.Background(), ft.alice, walkability.DistinctFilter{
			Column: "city",
		})
		if err != nil {
			t.Fatalf("failed to get distinct values: %v", err)
		}

		want := []string{"Chicago", "Madison"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("ok, cities narrowed by state", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")
		ft.seedSearch(ft.alice, 1, "789 Elm St", "Madison", "WI", "550250016001")

		got, err := ft.store.DistinctValues(context.Background(), ft.alice, walkability.DistinctFilter{
			Column:          "city",
			DependentColumn: "state",
			DependentValue:  "WI",
		})
		if err != nil {
			t.Fatalf("failed to get distinct values: %v", err)
		}

		want := []string{"Madison"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("ok, empty dependent value does not narrow", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")
		ft.seedSearch(ft.alice, 1, "789 Elm St", "Madison", "WI", "550250016001")

		// The state dropdown is back on "All", all cities should show.
		got, err := ft.store.DistinctValues(context.Background(), ft.alice, walkability.DistinctFilter{
			Column:          "city",
			DependentColumn: "state",
			DependentValue:  "",
		})
		if err != nil {
			t.Fatalf("failed to get distinct values: %v", err)
		}

		want := []string{"Chicago", "Madison"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("fail, unknown column", func(t *testing.T) {
		ft := newFixture(t)

		_, err := ft.store.DistinctValues(context.Background(), ft.alice, walkability.DistinctFilter{
			Column: "census_block",
		})
		if !errors.Is(err, walkability.ErrUnknownAttribute) {
			t.Fatalf("wanted error %v, got %v (via errors.Is)", walkability.ErrUnknownAttribute, err)
		}
	})
}

func Test_Store_DeleteSearches(t *testing.T) {
	t.Run("ok, delete is scoped to the user", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")
		ft.seedSearch(ft.bob, 0, "123 Main St", "Chicago", "IL", "170318300041")

		err := ft.store.DeleteSearches(context.Background(), ft.alice, []int{0})
		if err != nil {
			t.Fatalf("failed to delete searches: %v", err)
		}

		got, err := ft.store.FindSearches(context.Background(), &walkability.SearchFilter{})
		if err != nil {
			t.Fatalf("failed to find searches: %v", err)
		}

		if len(got) != 1 || got[0].UserID != ft.bob {
			t.Fatalf("expected only bob's search to remain, got %+v", got)
		}
	})

	t.Run("ok, unknown ids are ignored", func(t *testing.T) {
		ft := newFixture(t)
		ft.seedSearch(ft.alice, 0, "123 Main St", "Chicago", "IL", "170318300041")

		err := ft.store.DeleteSearches(context.Background(), ft.alice, []int{0, 41, 42})
		if err != nil {
			t.Fatalf("failed to delete searches: %v", err)
		}

		got, err := ft.store.FindSearches(context.Background(), &walkability.SearchFilter{})
		if err != nil {
			t.Fatalf("failed to find searches: %v", err)
		}

		if len(got) != 0 {
			t.Fatalf("expected no searches to remain, got %+v", got)
		}
	})
}

type fixture struct {
	t     *testing.T
	db    *sql.DB
	store *db.Store
	alice uuid.UUID
	bob   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	testDB := testdb.RunWhile(t, true)

	ft := &fixture{
		t:     t,
		db:    testDB,
		store: db.New(testDB),
		alice: uuid.New(),
		bob:   uuid.New(),
	}

	ft.seedUser(ft.alice, "alice", "alice@example.com")
	ft.seedUser(ft.bob, "bob", "bob@example.com")

	return ft
}

func (ft *fixture) seedUser(id uuid.UUID, username, addr string) {
	ft.t.Helper()

	_, err := ft.db.Exec(
		`INSERT INTO users (id, username, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, username, username, addr, "x", now(ft.t), now(ft.t),
	)
	if err != nil {
		ft.t.Fatalf("failed to seed user: %v", err)
	}
}

func (ft *fixture) seedSearch(userID uuid.UUID, searchID int, street, city, state, block string) {
	ft.t.Helper()

	_, err := ft.db.Exec(
		`INSERT INTO searches (user_id, search_id, street, city, state, census_block, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, searchID, street, city, state, block, now(ft.t),
	)
	if err != nil {
		ft.t.Fatalf("failed to seed search: %v", err)
	}
}

func (ft *fixture) seedRecord(r walkability.Record) {
	ft.t.Helper()

	_, err := ft.db.Exec(
		`INSERT INTO walkability_index (census_block, intersection_density, transit_access, job_housing_mix, population_employment_density, national_walkability_index) VALUES (?, ?, ?, ?, ?, ?)`,
		r.CensusBlock, r.IntersectionDensity, r.TransitAccess, r.JobHousingMix, r.PopulationEmploymentDensity, r.NationalWalkabilityIndex,
	)
	if err != nil {
		ft.t.Fatalf("failed to seed record: %v", err)
	}
}

func testRecord(block string, index float64) walkability.Record {
	return walkability.Record{
		CensusBlock:                 block,
		IntersectionDensity:         12.5,
		TransitAccess:               8.2,
		JobHousingMix:               0.7,
		PopulationEmploymentDensity: 14.1,
		NationalWalkabilityIndex:    index,
	}
}

func rollback(t *testing.T, tx walkability.Tx) {
	t.Helper()

	err := tx.Rollback()
	if err != nil {
		t.Errorf("failed to rollback tx: %v", err)
	}
}

func now(t *testing.T) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, "2026-01-15T10:00:00Z")
	if err != nil {
		t.Fatalf("failed to parse time: %v", err)
	}

	return ts
}
