package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/current", r.URL.Path)
		require.Equal(t, "46.05", r.URL.Query().Get("latitude"))
		require.Equal(t, "14.5", r.URL.Query().Get("longitude"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temperature":18.5,"humidity":62,"wind_speed":3.4,"weather_description":"scattered clouds","precipitation":0}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	snapshot, err := client.Snapshot(context.Background(), 46.05, 14.5)
	require.NoError(t, err)
	require.Equal(t, 18.5, snapshot.Temperature)
	require.Equal(t, "scattered clouds", snapshot.WeatherDescription)
}

func TestSnapshotReportsUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Snapshot(context.Background(), 46.05, 14.5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestSnapshotHonoursContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(srv.URL)
	_, err := client.Snapshot(ctx, 46.05, 14.5)
	require.Error(t, err)
}
