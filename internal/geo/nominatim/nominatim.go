package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stefchosov/walkdata/internal/geo"
)

// Settings contains the settings for the Nominatim search API.
type Settings struct {
	APIURL *url.URL
	// UserAgent identifies the application including contact details,
	// as required by the Nominatim usage policy.
	UserAgent string
}

// Client geocodes addresses using the Nominatim search API.
type Client struct {
	client   *http.Client
	settings Settings
}

// NewClient creates a new client.
func NewClient(client *http.Client, s Settings) *Client {
	return &Client{
		client:   client,
		settings: s,
	}
}

type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves the address to a coordinate using the Nominatim search API.
// It returns geo.ErrAddressNotFound if the API has no match.
func (c *Client) Geocode(ctx context.Context, street, city, state string) (geo.Coordinate, error) {
	reqURL := *c.settings.APIURL
	reqURL.Path = "/search"

	q := url.Values{}
	q.Set("q", fmt.Sprintf("%s, %s, %s", street, city, state))
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.settings.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geo.Coordinate{}, fmt.Errorf("request did not succeed, status code %d", resp.StatusCode)
	}

	var places []place
	err = json.NewDecoder(resp.Body).Decode(&places)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(places) == 0 {
		return geo.Coordinate{}, geo.ErrAddressNotFound
	}

	// Nominatim encodes coordinates as strings.
	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to parse latitude %q: %w", places[0].Lat, err)
	}

	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("failed to parse longitude %q: %w", places[0].Lon, err)
	}

	return geo.Coordinate{Lat: lat, Lon: lon}, nil
}
