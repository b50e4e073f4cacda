package census

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stefchosov/walkdata/internal/geo"
)

const (
	benchmark = "Public_AR_Current"
	vintage   = "Current_Current"

	// blocksKey is the geography layer we're interested in.
	blocksKey = "2020 Census Blocks"
)

// Settings contains the settings for the Census geocoding services API.
type Settings struct {
	APIURL *url.URL
}

// Client looks up census geographies using the Census Bureau geocoding
// services API.
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

type response struct {
	Result struct {
		Geographies map[string][]struct {
			GEOID string `json:"GEOID"`
		} `json:"geographies"`
	} `json:"result"`
}

// Block returns the GEOID of the 2020 census block containing the coordinate.
// It returns geo.ErrGeographyNotFound if the response contains no block.
func (c *Client) Block(ctx context.Context, coord geo.Coordinate) (string, error) {
	reqURL := *c.settings.APIURL
	reqURL.Path = "/geocoder/geographies/coordinates"

	q := url.Values{}
	q.Set("x", strconv.FormatFloat(coord.Lon, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	q.Set("benchmark", benchmark)
	q.Set("vintage", vintage)
	q.Set("format", "json")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request did not succeed, status code %d", resp.StatusCode)
	}

	var res response
	err = json.NewDecoder(resp.Body).Decode(&res)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	blocks := res.Result.Geographies[blocksKey]
	if len(blocks) == 0 || blocks[0].GEOID == "" {
		return "", geo.ErrGeographyNotFound
	}

	return blocks[0].GEOID, nil
}
