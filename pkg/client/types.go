package client

import "time"

// Entry is one live unit as listed by GET /status.
type Entry struct {
	ID  string `json:"id"`
	PID int    `json:"pid"`
}

// UnitStatus is the detail returned by GET /status?name=<id>.
type UnitStatus struct {
	ID          string    `json:"id"`
	Running     bool      `json:"running"`
	PID         int       `json:"pid,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	RSSBytes    uint64    `json:"rss_bytes,omitempty"`
	LogPath     string    `json:"log_path"`
	LogSize     int64     `json:"log_size"`
	RotationDue bool      `json:"rotation_due"`
	SavedArgs   []string  `json:"saved_args,omitempty"`
}

// MaintenanceReport is the result of POST /maintenance.
type MaintenanceReport struct {
	Live     int      `json:"live"`
	Rotated  []string `json:"rotated"`
	Deleted  int      `json:"deleted"`
	Evicted  int      `json:"evicted"`
	Duration string   `json:"duration"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
