package models

import "time"

// StartResponse is the immediate response for POST /api/v1/batches.
type StartResponse struct {
	Success bool         `json:"success"`
	BatchID string       `json:"batch_id,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// BatchStatusResponse is the response for GET /api/v1/batches/current.
type BatchStatusResponse struct {
	BatchID        string    `json:"batch_id"`
	Mode           Mode      `json:"mode"`
	State          string    `json:"state"` // "idle", "running", "waiting_captcha", "completed", "interrupted", "failed"
	Targets        int       `json:"targets"`
	Records        int       `json:"records"`
	Duplicates     int       `json:"duplicates"`
	Errors         int       `json:"errors"`
	OutputPath     string    `json:"output_path,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	FinishedAt     time.Time `json:"finished_at,omitempty"`
	CaptchaPending bool      `json:"captcha_pending"`
}

// ControlResponse acknowledges stop and captcha-continue requests.
type ControlResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Running bool   `json:"running"`
	Version string `json:"version"`
}

// ErrorResponse is the body of every rejected API request.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
