// Package fetch retrieves geo point datasets from the dashboard's
// map_data endpoint and validates them before they enter the render
// pipeline.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/seuros/geoviz/src/geo"
	"github.com/seuros/geoviz/src/logging"
)

// DataTypes lists the dataset identifiers the dashboard serves.
var DataTypes = []string{"cdr", "tower_dump", "ipdr", "sdr"}

// relatedTypes carries the UI hint relationships between dataset types.
var relatedTypes = map[string][]string{
	"cdr":        {"ipdr"},
	"tower_dump": {},
	"ipdr":       {"cdr"},
	"sdr":        {},
}

// RelatedTypes returns the dataset types related to dataType, for UI hints.
// Unknown types return nil.
func RelatedTypes(dataType string) []string {
	return relatedTypes[dataType]
}

// KnownDataType reports whether dataType is one the dashboard serves.
func KnownDataType(dataType string) bool {
	_, ok := relatedTypes[dataType]
	return ok
}

// ErrNoValidPoints is returned when the endpoint answered successfully but
// every point failed coordinate validation. It is distinct from transport
// and API errors so callers can present it as an empty-data condition.
var ErrNoValidPoints = errors.New("dataset contains no valid points")

// APIError is a structured rejection from the dashboard.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("map_data returned %d: %s", e.Status, e.Message)
}

// envelope is the dashboard's map_data response body. Error responses put
// the reason in Error and sometimes detail in Message.
type envelope struct {
	Points []geo.Point `json:"points"`
	Total  int         `json:"total"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Config configures the dataset client.
type Config struct {
	// BaseURL is the dashboard root, e.g. http://localhost:5000.
	BaseURL string
	// Timeout bounds a single fetch. Zero means 30s.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
	// Logger receives fetch events.
	Logger logging.Logger
}

// Client fetches datasets over HTTP.
type Client struct {
	base   string
	http   *http.Client
	logger logging.Logger
}

// NewClient builds a dataset client for the dashboard at cfg.BaseURL.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("fetch: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("fetch: invalid BaseURL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}

	return &Client{base: cfg.BaseURL, http: httpClient, logger: logger}, nil
}

// MapData fetches the point set for dataType. Points with out-of-range
// coordinates are rejected, never clamped; if nothing survives the result
// is ErrNoValidPoints. Truncated is set when the server reported more rows
// than it shipped (raw payloads are capped server-side).
func (c *Client) MapData(ctx context.Context, dataType string) (geo.PointSet, error) {
	endpoint := fmt.Sprintf("%s/map_data/%s", c.base, url.PathEscape(dataType))
	c.logger.Debug("Fetching map data", "dataType", dataType, "url", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return geo.PointSet{}, fmt.Errorf("building map_data request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("Map data request failed", "dataType", dataType, "error", err)
		return geo.PointSet{}, fmt.Errorf("fetching map_data/%s: %w", dataType, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return geo.PointSet{}, fmt.Errorf("decoding map_data/%s response: %w", dataType, err)
	}

	if resp.StatusCode != http.StatusOK || env.Error != "" {
		msg := env.Error
		if env.Message != "" {
			msg = env.Error + ": " + env.Message
		}
		if msg == "" {
			msg = resp.Status
		}
		c.logger.Warn("Map data rejected", "dataType", dataType, "status", resp.StatusCode, "message", msg)
		return geo.PointSet{}, &APIError{Status: resp.StatusCode, Message: msg}
	}

	valid, dropped := geo.FilterValid(env.Points)
	if dropped > 0 {
		c.logger.Warn("Rejected out-of-range points", "dataType", dataType, "dropped", dropped)
	}
	if len(valid) == 0 {
		return geo.PointSet{}, fmt.Errorf("map_data/%s: %w", dataType, ErrNoValidPoints)
	}

	total := env.Total
	if total < len(valid) {
		total = len(valid)
	}

	ps := geo.PointSet{
		DataType:  dataType,
		Points:    valid,
		Total:     total,
		Truncated: total > len(env.Points),
	}
	if env.Center != nil {
		ps.Center = geo.Location{Lat: env.Center.Lat, Lon: env.Center.Lon}
	} else {
		ps.Center = geo.MedianCenter(valid)
	}

	c.logger.Info("Map data fetched", "dataType", dataType,
		"points", len(valid), "total", ps.Total, "truncated", ps.Truncated)
	return ps, nil
}
