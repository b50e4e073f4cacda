// Package geo resolves street addresses to census block groups.
//
// Resolving is a two step process: a geocoder turns the free-text address
// into a coordinate, a block finder turns the coordinate into the 2020
// census block containing it. The block group is derived from the block
// identifier by truncation.
package geo

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAddressNotFound indicates the geocoder had no match for the address.
	ErrAddressNotFound = errors.New("address not found")
	// ErrGeographyNotFound indicates no census block was found for the coordinate.
	ErrGeographyNotFound = errors.New("census geography not found")
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Geocoder resolves a free-text street address to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, street, city, state string) (Coordinate, error)
}

// BlockFinder finds the GEOID of the 2020 census block containing a coordinate.
type BlockFinder interface {
	Block(ctx context.Context, c Coordinate) (string, error)
}

// GEOIDs for 2020 census blocks are 15 characters, the first 12 identify
// the containing block group. Should the Census Bureau ever change the
// identifier width, this truncation needs to be revalidated.
const (
	blockIDLen    = 15
	blockGroupLen = 12
)

func blockGroupFromGEOID(geoid string) (string, error) {
	if len(geoid) != blockIDLen {
		return "", fmt.Errorf("unexpected GEOID %q: %w", geoid, ErrGeographyNotFound)
	}

	return geoid[:blockGroupLen], nil
}

// Resolver resolves a street address to the census block group containing it.
type Resolver struct {
	geocoder Geocoder
	blocks   BlockFinder
}

// NewResolver creates a new Resolver.
func NewResolver(g Geocoder, b BlockFinder) *Resolver {
	return &Resolver{
		geocoder: g,
		blocks:   b,
	}
}

// Resolve returns the 12-character block group identifier for the address.
// It fails with ErrAddressNotFound or ErrGeographyNotFound when either
// step has no match. Both steps are a single attempt, no retries.
func (r *Resolver) Resolve(ctx context.Context, street, city, state string) (string, error) {
	coord, err := r.geocoder.Geocode(ctx, street, city, state)
	if err != nil {
		return "", err
	}

	geoid, err := r.blocks.Block(ctx, coord)
	if err != nil {
		return "", err
	}

	return blockGroupFromGEOID(geoid)
}
