// Package client is a Go SDK for the activity tracking API. It streams GPS
// telemetry at a bounded rate and retries finalization over transient
// transport failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ErrSampleDropped is returned by Track when a sample arrives faster than the
// configured streaming interval and is discarded client-side.
var ErrSampleDropped = errors.New("telemetry sample dropped: streaming too fast")

// APIError carries a decoded error envelope from the service.
type APIError struct {
	Status int
	Type   string
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status=%d, type=%s): %s", e.Status, e.Type, e.Detail)
}

const (
	defaultInterval   = 2 * time.Second
	endAttempts       = 3
	endBackoffInitial = time.Second
)

// Option configures optional client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithInterval overrides the minimum delay between streamed samples.
func WithInterval(d time.Duration) Option {
	return func(c *Client) {
		c.interval = d
	}
}

// Client talks to the tracking API on behalf of one user session.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	interval   time.Duration

	mu       sync.Mutex
	lastSent time.Time
}

// New constructs a Client. The token is sent as a bearer credential on every
// request.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		interval:   defaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activity mirrors the service's activity representation.
type Activity struct {
	ActivityID     string           `json:"activity_id"`
	UserID         string           `json:"user_id"`
	ActivityType   string           `json:"activity_type"`
	State          string           `json:"state"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	Locations      []Location       `json:"location_data"`
	Altitudes      []Altitude       `json:"altitude_changes"`
	DistanceKM     float64          `json:"distance_km"`
	CaloriesBurned float64          `json:"calories_burned"`
	StepCount      int              `json:"step_count"`
	Pace           string           `json:"pace"`
	SpeedKMH       float64          `json:"speed_kmh"`
	AltitudeGainM  float64          `json:"altitude_gain_m"`
	Weather        *WeatherSnapshot `json:"weather,omitempty"`
}

// Location is one GPS fix on the activity path.
type Location struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Altitude is one altitude reading.
type Altitude struct {
	Time     time.Time `json:"time"`
	Altitude float64   `json:"altitude"`
}

// WeatherSnapshot carries the conditions attached to a finished activity.
type WeatherSnapshot struct {
	Temperature        float64 `json:"temperature"`
	Humidity           float64 `json:"humidity"`
	WindSpeed          float64 `json:"wind_speed"`
	WeatherDescription string  `json:"weather_description"`
	Precipitation      float64 `json:"precipitation"`
}

// Sample is one telemetry reading streamed during an activity.
type Sample struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Altitude       float64  `json:"altitude"`
	StepCount      *int     `json:"step_count,omitempty"`
	CaloriesBurned *float64 `json:"calories_burned,omitempty"`
}

// EndRequest finalizes an activity. Zero EndedAt defers to the server clock.
type EndRequest struct {
	EndedAt        time.Time `json:"ended_at,omitempty"`
	StepCount      *int      `json:"step_count,omitempty"`
	CaloriesBurned *float64  `json:"calories_burned,omitempty"`
}

// Start begins a new tracked activity of the given type.
func (c *Client) Start(ctx context.Context, activityType string) (*Activity, error) {
	body := map[string]string{"activity_type": activityType}
	var activity Activity
	if err := c.do(ctx, http.MethodPost, "/v1/activities", body, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Track streams one telemetry sample. Samples arriving faster than the
// configured interval are dropped locally and reported as ErrSampleDropped;
// GPS jitter bursts should not multiply server writes.
func (c *Client) Track(ctx context.Context, activityID string, sample Sample) (*Activity, error) {
	c.mu.Lock()
	if !c.lastSent.IsZero() && time.Since(c.lastSent) < c.interval {
		c.mu.Unlock()
		return nil, ErrSampleDropped
	}
	c.mu.Unlock()

	payload := struct {
		ActivityID string `json:"activity_id"`
		Sample
	}{ActivityID: activityID, Sample: sample}

	var activity Activity
	if err := c.do(ctx, http.MethodPost, "/v1/activities/update", payload, &activity); err != nil {
		return nil, err
	}

	// Only a delivered sample consumes the throttle window; a failed send
	// leaves the slot open so the caller can retry immediately.
	c.mu.Lock()
	c.lastSent = time.Now()
	c.mu.Unlock()

	return &activity, nil
}

// End finalizes the activity. Transport failures are retried with backoff; a
// response from the server, success or error, is definitive and never
// retried, so a conflict surfaces as-is.
func (c *Client) End(ctx context.Context, activityID string, req EndRequest) (*Activity, error) {
	payload := struct {
		ActivityID string `json:"activity_id"`
		EndRequest
	}{ActivityID: activityID, EndRequest: req}

	var lastErr error
	backoff := endBackoffInitial
	for attempt := 0; attempt < endAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var activity Activity
		err := c.do(ctx, http.MethodPost, "/v1/activities/end", payload, &activity)
		if err == nil {
			return &activity, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("end activity after %d attempts: %w", endAttempts, lastErr)
}

// Cancel discards an active activity.
func (c *Client) Cancel(ctx context.Context, activityID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/activities/"+activityID, nil, nil)
}

// Get fetches one activity.
func (c *Client) Get(ctx context.Context, activityID string) (*Activity, error) {
	var activity Activity
	if err := c.do(ctx, http.MethodGet, "/v1/activities/"+activityID, nil, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// WeeklySeries is the trailing 7-day chart data.
type WeeklySeries struct {
	Days          []string  `json:"days"`
	Steps         []int     `json:"steps"`
	DistanceKM    []float64 `json:"distance_km"`
	AltitudeGainM []float64 `json:"altitude_gain_m"`
}

// Weekly fetches the 7-day series ending at anchor (zero means today).
func (c *Client) Weekly(ctx context.Context, anchor time.Time) (*WeeklySeries, error) {
	path := "/v1/activities/weekly"
	if !anchor.IsZero() {
		path += "?anchor=" + anchor.Format("2006-01-02")
	}
	var series WeeklySeries
	if err := c.do(ctx, http.MethodGet, path, nil, &series); err != nil {
		return nil, err
	}
	return &series, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Type   string `json:"type"`
			Detail string `json:"detail"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil {
			apiErr.Type = envelope.Type
			apiErr.Detail = envelope.Detail
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
