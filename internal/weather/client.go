// Package weather fetches best-effort condition snapshots for finalized
// activities. Failures here never block finalization; callers log and move on.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"example.com/tracking/internal/domain"
)

// Client queries an HTTP weather provider for current conditions.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client with sane defaults.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Snapshot fetches current conditions for the coordinate.
func (c *Client) Snapshot(ctx context.Context, latitude, longitude float64) (*domain.WeatherSnapshot, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/current?%s", c.baseURL, query.Encode()), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather provider error (status=%d): %s", resp.StatusCode, body)
	}

	var payload struct {
		Temperature        float64 `json:"temperature"`
		Humidity           float64 `json:"humidity"`
		WindSpeed          float64 `json:"wind_speed"`
		WeatherDescription string  `json:"weather_description"`
		Precipitation      float64 `json:"precipitation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &domain.WeatherSnapshot{
		Temperature:        payload.Temperature,
		Humidity:           payload.Humidity,
		WindSpeed:          payload.WindSpeed,
		WeatherDescription: payload.WeatherDescription,
		Precipitation:      payload.Precipitation,
	}, nil
}
