// Package api exposes HTTP handlers for the activity tracking service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/tracking/internal/auth"
	"example.com/tracking/internal/domain"
	"example.com/tracking/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/update", h.appendTelemetry)
	mux.HandleFunc("/v1/activities/end", h.endActivity)
	mux.HandleFunc("/v1/activities/weekly", h.weeklySeries)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.startActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getActivity(w, r, id)
	case http.MethodDelete:
		h.cancelActivity(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) startActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req StartActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	aggregate, err := h.service.Start(r.Context(), domain.StartActivityInput{
		UserID:    claims.Subject,
		Type:      domain.ActivityType(req.ActivityType),
		StartedAt: req.StartedAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toActivityView(*aggregate))
}

func (h *Handler) appendTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req UpdateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	aggregate, err := h.service.AppendTelemetry(r.Context(), domain.AppendTelemetryInput{
		ActivityID:     req.ActivityID,
		UserID:         claims.Subject,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Altitude:       req.Altitude,
		StepCount:      req.StepCount,
		CaloriesBurned: req.CaloriesBurned,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*aggregate))
}

func (h *Handler) endActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req EndActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	aggregate, err := h.service.End(r.Context(), domain.EndActivityInput{
		ActivityID:     req.ActivityID,
		UserID:         claims.Subject,
		EndedAt:        req.EndedAt,
		StepCount:      req.StepCount,
		CaloriesBurned: req.CaloriesBurned,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*aggregate))
}

func (h *Handler) cancelActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	if err := h.service.Cancel(r.Context(), id, claims.Subject); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	aggregate, err := h.service.Get(r.Context(), id, claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toActivityView(*aggregate))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursorToken := r.URL.Query().Get("cursor")
	cursor, err := persistence.DecodeCursor(cursorToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	aggregates, next, err := h.service.ListByUser(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(aggregates))
	for _, agg := range aggregates {
		items = append(items, toActivityView(agg))
	}

	resp := ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) weeklySeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireReadScope(w, r)
	if !ok {
		return
	}

	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown tz")
			return
		}
		loc = parsed
	}

	anchor := time.Now().In(loc)
	if raw := r.URL.Query().Get("anchor"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "anchor must be YYYY-MM-DD")
			return
		}
		anchor = parsed
	}

	series, err := h.service.Weekly(r.Context(), claims.Subject, anchor, loc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := WeeklySeriesResponse{
		Days:          make([]string, 0, len(series.Days)),
		Steps:         series.Steps,
		DistanceKM:    series.DistanceKM,
		AltitudeGainM: series.AltitudeGainM,
	}
	for _, day := range series.Days {
		resp.Days = append(resp.Days, day.Format("2006-01-02"))
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func requireReadScope(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+auth.ScopeActivitiesRead+" required")
		return nil, false
	}
	return claims, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", "activity belongs to another user")
	case errors.Is(err, domain.ErrActivityNotActive):
		writeError(w, http.StatusConflict, "conflict", "activity is not active")
	case errors.Is(err, domain.ErrInvalidActivityType):
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid activity type")
	case errors.Is(err, domain.ErrInvalidEndTime):
		writeError(w, http.StatusBadRequest, "validation_failed", "ended_at precedes started_at")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// StartActivityRequest is the payload for POST /v1/activities.
type StartActivityRequest struct {
	ActivityType string    `json:"activity_type"`
	StartedAt    time.Time `json:"started_at"`
}

// Validate ensures request correctness.
func (r StartActivityRequest) Validate() error {
	if strings.TrimSpace(r.ActivityType) == "" {
		return errors.New("activity_type is required")
	}
	return nil
}

// UpdateActivityRequest carries one telemetry sample for POST /v1/activities/update.
type UpdateActivityRequest struct {
	ActivityID     string   `json:"activity_id"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	Altitude       float64  `json:"altitude"`
	StepCount      *int     `json:"step_count,omitempty"`
	CaloriesBurned *float64 `json:"calories_burned,omitempty"`
}

// Validate ensures request correctness.
func (r UpdateActivityRequest) Validate() error {
	if strings.TrimSpace(r.ActivityID) == "" {
		return errors.New("activity_id is required")
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return errors.New("latitude out of range")
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return errors.New("longitude out of range")
	}
	if r.StepCount != nil && *r.StepCount < 0 {
		return errors.New("step_count must be >= 0")
	}
	return nil
}

// EndActivityRequest is the payload for POST /v1/activities/end.
type EndActivityRequest struct {
	ActivityID     string    `json:"activity_id"`
	EndedAt        time.Time `json:"ended_at"`
	StepCount      *int      `json:"step_count,omitempty"`
	CaloriesBurned *float64  `json:"calories_burned,omitempty"`
}

// Validate ensures request correctness.
func (r EndActivityRequest) Validate() error {
	if strings.TrimSpace(r.ActivityID) == "" {
		return errors.New("activity_id is required")
	}
	if r.StepCount != nil && *r.StepCount < 0 {
		return errors.New("step_count must be >= 0")
	}
	return nil
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID     string                  `json:"activity_id"`
	UserID         string                  `json:"user_id"`
	ActivityType   string                  `json:"activity_type"`
	State          string                  `json:"state"`
	StartedAt      time.Time               `json:"started_at"`
	EndedAt        *time.Time              `json:"ended_at,omitempty"`
	Locations      []domain.LocationSample `json:"location_data"`
	Altitudes      []domain.AltitudeSample `json:"altitude_changes"`
	DistanceKM     float64                 `json:"distance_km"`
	CaloriesBurned float64                 `json:"calories_burned"`
	StepCount      int                     `json:"step_count"`
	Pace           string                  `json:"pace"`
	SpeedKMH       float64                 `json:"speed_kmh"`
	AltitudeGainM  float64                 `json:"altitude_gain_m"`
	Weather        *domain.WeatherSnapshot `json:"weather,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// WeeklySeriesResponse is the trailing 7-day chart series.
type WeeklySeriesResponse struct {
	Days          []string  `json:"days"`
	Steps         []int     `json:"steps"`
	DistanceKM    []float64 `json:"distance_km"`
	AltitudeGainM []float64 `json:"altitude_gain_m"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(agg domain.ActivityAggregate) ActivityView {
	locations := agg.Locations
	if locations == nil {
		locations = []domain.LocationSample{}
	}
	altitudes := agg.Altitudes
	if altitudes == nil {
		altitudes = []domain.AltitudeSample{}
	}
	return ActivityView{
		ActivityID:     agg.ID,
		UserID:         agg.UserID,
		ActivityType:   string(agg.Type),
		State:          string(agg.State),
		StartedAt:      agg.StartedAt,
		EndedAt:        agg.EndedAt,
		Locations:      locations,
		Altitudes:      altitudes,
		DistanceKM:     agg.DistanceKM,
		CaloriesBurned: agg.CaloriesBurned,
		StepCount:      agg.StepCount,
		Pace:           agg.Pace,
		SpeedKMH:       agg.SpeedKMH,
		AltitudeGainM:  agg.AltitudeGainM,
		Weather:        agg.Weather,
		CreatedAt:      agg.CreatedAt,
		UpdatedAt:      agg.UpdatedAt,
	}
}
