package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/activities", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Run", body["activity_type"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Activity{ActivityID: "act-1", State: "active"})
	}))
	defer srv.Close()

	c := New(srv.URL, "token-1")
	activity, err := c.Start(context.Background(), "Run")
	require.NoError(t, err)
	require.Equal(t, "act-1", activity.ActivityID)
	require.Equal(t, "active", activity.State)
}

func TestTrackThrottlesSamples(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Activity{ActivityID: "act-1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t", WithInterval(time.Hour))

	_, err := c.Track(context.Background(), "act-1", Sample{Latitude: 46, Longitude: 14})
	require.NoError(t, err)

	_, err = c.Track(context.Background(), "act-1", Sample{Latitude: 46.001, Longitude: 14})
	require.ErrorIs(t, err, ErrSampleDropped)

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTrackFailedSendLeavesThrottleOpen(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"type": "internal", "detail": "boom"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Activity{ActivityID: "act-1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t", WithInterval(time.Hour))

	_, err := c.Track(context.Background(), "act-1", Sample{Latitude: 46, Longitude: 14})
	require.Error(t, err)

	// The rejected sample must not start the throttle window.
	activity, err := c.Track(context.Background(), "act-1", Sample{Latitude: 46.001, Longitude: 14})
	require.NoError(t, err)
	require.Equal(t, "act-1", activity.ActivityID)

	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEndRetriesTransportErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			// Drop the connection to simulate a transport failure.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Activity{ActivityID: "act-1", State: "ended"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	c.httpClient = srv.Client()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	activity, err := c.End(ctx, "act-1", EndRequest{})
	require.NoError(t, err)
	require.Equal(t, "ended", activity.State)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestEndDoesNotRetryAPIErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"type": "conflict", "detail": "activity is not active"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	_, err := c.End(context.Background(), "act-1", EndRequest{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, "conflict", apiErr.Type)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/v1/activities/act-9", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	require.NoError(t, c.Cancel(context.Background(), "act-9"))
}

func TestWeekly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2026-08-31", r.URL.Query().Get("anchor"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(WeeklySeries{
			Days:          []string{"2026-08-25", "2026-08-26", "2026-08-27", "2026-08-28", "2026-08-29", "2026-08-30", "2026-08-31"},
			Steps:         make([]int, 7),
			DistanceKM:    make([]float64, 7),
			AltitudeGainM: make([]float64, 7),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "t")
	series, err := c.Weekly(context.Background(), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, series.Days, 7)
}
