package auth

// Known OAuth scopes used by the tracking backend.
const (
	ScopeActivitiesWrite = "activities:write"
	ScopeActivitiesRead  = "activities:read"
)
