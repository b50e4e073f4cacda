package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/stefchosov/walkdata/internal/db"
	"github.com/stefchosov/walkdata/internal/errorz"
	"github.com/stefchosov/walkdata/internal/walkability"
)

type execFunc func(query string, params ...any) (sql.Result, error)
type queryFunc func(query string, params ...any) (*sql.Rows, error)
type rowFunc func(query string, params ...any) *sql.Row

// sortColumns maps the allow-listed sort attributes to actual columns.
// Attribute names are never interpolated into a query directly.
var sortColumns = map[string]string{
	"street":                        "s.street",
	"city":                          "s.city",
	"state":                         "s.state",
	"intersection_density":          "w.intersection_density",
	"transit_access":                "w.transit_access",
	"job_housing_mix":               "w.job_housing_mix",
	"population_employment_density": "w.population_employment_density",
	"national_walkability_index":    "w.national_walkability_index",
}

// valueColumns maps the allow-listed distinct value columns to actual columns.
var valueColumns = map[string]string{
	"city":  "city",
	"state": "state",
}

func insertSearch(ef execFunc, s *walkability.Search) error {
	if s.UserID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO searches (user_id, search_id, street, city, state, census_block, created_at) VALUES (`)
	q.Params(s.UserID, s.SearchID, s.Street, s.City, s.State, s.CensusBlock, s.CreatedAt)
	q.Unsafe(`)`)

	query, params, err := q.Get()
	if err != nil {
		return err
	}

	_, err = ef(query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func nextSearchID(rf rowFunc, userID uuid.UUID) (int, error) {
	var q db.Query
	q.Unsafe(`SELECT COALESCE(MAX(search_id) + 1, 0) FROM searches WHERE user_id = `)
	q.Param(userID)

	query, params, err := q.Get()
	if err != nil {
		return 0, err
	}

	var next int
	err = rf(query, params...).Scan(&next)
	if err != nil {
		return 0, errorz.MapDBErr(err)
	}

	return next, nil
}

func selectSearches(qf queryFunc, f *walkability.SearchFilter) ([]walkability.Search, error) {
	var q db.Query
	q.Unsafe(`SELECT user_id, search_id, street, city, state, census_block, created_at FROM searches WHERE 1=1 `)

	if len(f.UserIDs) > 0 {
		q.Unsafe(`AND user_id IN (`)
		q.Params(anySlice(f.UserIDs)...)
		q.Unsafe(`)`)
	}

	if len(f.SearchIDs) > 0 {
		q.Unsafe(`AND search_id IN (`)
		q.Params(anySlice(f.SearchIDs)...)
		q.Unsafe(`)`)
	}

	if f.Address != nil {
		q.Unsafe(`AND street = `)
		q.Param(f.Address.Street)
		q.Unsafe(` AND city = `)
		q.Param(f.Address.City)
		q.Unsafe(` AND state = `)
		q.Param(f.Address.State)
	}

	q.Unsafe(` ORDER BY user_id ASC, search_id ASC`)

	query, params, err := q.Get()
	if err != nil {
		return nil, err
	}

	rows, err := qf(query, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]walkability.Search, 0)
	for rows.Next() {
		var s walkability.Search
		err := rows.Scan(&s.UserID, &s.SearchID, &s.Street, &s.City, &s.State, &s.CensusBlock, &s.CreatedAt)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func selectRecord(ctx context.Context, sqlDB *sql.DB, censusBlock string) (walkability.Record, error) {
	var q db.Query
	q.Unsafe(`SELECT census_block, intersection_density, transit_access, job_housing_mix, population_employment_density, national_walkability_index FROM walkability_index WHERE census_block = `)
	q.Param(censusBlock)

	query, params, err := q.Get()
	if err != nil {
		return walkability.Record{}, err
	}

	var r walkability.Record
	err = sqlDB.QueryRowContext(ctx, query, params...).Scan(
		&r.CensusBlock,
		&r.IntersectionDensity,
		&r.TransitAccess,
		&r.JobHousingMix,
		&r.PopulationEmploymentDensity,
		&r.NationalWalkabilityIndex,
	)
	if err != nil {
		return walkability.Record{}, errorz.MapDBErr(err)
	}

	return r, nil
}

func selectRows(ctx context.Context, sqlDB *sql.DB, userID uuid.UUID, f walkability.ListFilter) ([]walkability.Row, error) {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		return nil, fmt.Errorf("sort attribute %q: %w", f.SortBy, walkability.ErrUnknownAttribute)
	}

	var q db.Query
	q.Unsafe(`SELECT s.user_id, s.search_id, s.street, s.city, s.state, s.census_block, s.created_at, `)
	q.Unsafe(`w.intersection_density, w.transit_access, w.job_housing_mix, w.population_employment_density, w.national_walkability_index `)
	q.Unsafe(`FROM searches s LEFT JOIN walkability_index w ON w.census_block = s.census_block `)
	q.Unsafe(`WHERE s.user_id = `)
	q.Param(userID)

	if f.City != "" {
		q.Unsafe(` AND s.city = `)
		q.Param(f.City)
	}

	if f.State != "" {
		q.Unsafe(` AND s.state = `)
		q.Param(f.State)
	}

	direction := ` ASC`
	if f.Desc {
		direction = ` DESC`
	}

	q.Unsafe(` ORDER BY ` + col + direction + `, s.search_id ASC`)

	query, params, err := q.Get()
	if err != nil {
		return nil, err
	}

	rows, err := sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]walkability.Row, 0)
	for rows.Next() {
		var (
			row     walkability.Row
			metrics [5]sql.NullFloat64
		)
		err := rows.Scan(
			&row.Search.UserID,
			&row.Search.SearchID,
			&row.Search.Street,
			&row.Search.City,
			&row.Search.State,
			&row.Search.CensusBlock,
			&row.Search.CreatedAt,
			&metrics[0],
			&metrics[1],
			&metrics[2],
			&metrics[3],
			&metrics[4],
		)
		if err != nil {
			return nil, errorz.MapDBErr(err)
		}

		// All reference columns are NOT NULL, a null metric means the left
		// join had no matching walkability row.
		if metrics[0].Valid {
			row.Record = &walkability.Record{
				CensusBlock:                 row.Search.CensusBlock,
				IntersectionDensity:         metrics[0].Float64,
				TransitAccess:               metrics[1].Float64,
				JobHousingMix:               metrics[2].Float64,
				PopulationEmploymentDensity: metrics[3].Float64,
				NationalWalkabilityIndex:    metrics[4].Float64,
			}
		}

		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func selectDistinctValues(ctx context.Context, sqlDB *sql.DB, userID uuid.UUID, f walkability.DistinctFilter) ([]string, error) {
	col, ok := valueColumns[f.Column]
	if !ok {
		return nil, fmt.Errorf("column %q: %w", f.Column, walkability.ErrUnknownAttribute)
	}

	var q db.Query
	q.Unsafe(`SELECT DISTINCT ` + col + ` FROM searches WHERE user_id = `)
	q.Param(userID)

	if f.DependentColumn != "" {
		depCol, ok := valueColumns[f.DependentColumn]
		if !ok || depCol == col {
			return nil, fmt.Errorf("dependent column %q: %w", f.DependentColumn, walkability.ErrUnknownAttribute)
		}

		// An empty dependent value means the other dropdown is back on
		// "All", so no narrowing applies.
		if f.DependentValue != "" {
			q.Unsafe(` AND ` + depCol + ` = `)
			q.Param(f.DependentValue)
		}
	}

	q.Unsafe(` ORDER BY ` + col + ` ASC`)

	query, params, err := q.Get()
	if err != nil {
		return nil, err
	}

	rows, err := sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errorz.MapDBErr(err)
		}

		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func deleteSearches(ctx context.Context, sqlDB *sql.DB, userID uuid.UUID, searchIDs []int) error {
	if len(searchIDs) == 0 {
		return nil
	}

	var q db.Query
	q.Unsafe(`DELETE FROM searches WHERE user_id = `)
	q.Param(userID)
	q.Unsafe(` AND search_id IN (`)
	q.Params(anySlice(searchIDs)...)
	q.Unsafe(`)`)

	query, params, err := q.Get()
	if err != nil {
		return err
	}

	// Rows that don't exist are not an error, deleting is idempotent.
	_, err = sqlDB.ExecContext(ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func anySlice[T any](s []T) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
