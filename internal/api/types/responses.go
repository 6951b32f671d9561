package types

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// DeployResponse lists the jobs created by a deployment request.
type DeployResponse struct {
	Jobs  interface{} `json:"jobs"`
	Count int         `json:"count"`
}

// CancelAllResponse reports how many waiting jobs were cancelled.
type CancelAllResponse struct {
	Cancelled int `json:"cancelled"`
}

// ImportResponse reports the outcome of a roster import.
type ImportResponse struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ListResponse is a generic list wrapper with a total count.
type ListResponse struct {
	Items interface{} `json:"items"`
	Count int         `json:"count"`
}

// NewListResponse wraps items with their count.
func NewListResponse(items interface{}, count int) ListResponse {
	return ListResponse{Items: items, Count: count}
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
