package mcp

import (
	"encoding/json"
	"fmt"
	"math"
)

// seconds accepts any JSON number and keeps the whole-second part.
type seconds int64

func (s *seconds) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("seconds: %w", err)
	}
	*s = seconds(math.Floor(f))
	return nil
}

type statusResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	UserCount  int64  `json:"user_count"`
	EventCount int64  `json:"event_count"`
}

// share is one row of a project or language breakdown. Percent comes from
// the daemon and is shown as-is.
type share struct {
	Name         string  `json:"name"`
	TotalSeconds seconds `json:"total_seconds"`
	Percent      float64 `json:"percent"`
}

type dayTotal struct {
	Date         string  `json:"date"`
	TotalSeconds seconds `json:"total_seconds"`
}

// summaryResponse is the /reports/summary payload. From, To and Days are
// only meaningful for range reports.
type summaryResponse struct {
	TotalSeconds seconds    `json:"total_seconds"`
	From         string     `json:"from"`
	To           string     `json:"to"`
	Projects     []share    `json:"projects"`
	Languages    []share    `json:"languages"`
	Days         []dayTotal `json:"days"`
}

type session struct {
	Start           string  `json:"start"`
	End             string  `json:"end"`
	DurationSeconds seconds `json:"duration_seconds"`
	Project         *string `json:"project"`
	EventCount      int64   `json:"event_count"`
}

// eventPayload is the POST /events body. Project and Language are left out
// entirely when unknown.
type eventPayload struct {
	Timestamp string            `json:"timestamp"`
	EventType string            `json:"event_type"`
	Entity    string            `json:"entity"`
	Activity  string            `json:"activity"`
	Project   string            `json:"project,omitempty"`
	Language  string            `json:"language,omitempty"`
	Metadata  map[string]string `json:"metadata"`
}

type eventAck struct {
	ID        int64  `json:"id"`
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	Entity    string `json:"entity"`
}

var eventTypes = []string{"file", "terminal", "browser", "meeting", "custom"}

var activities = []string{"coding", "browsing", "debugging", "building", "communicating", "designing", "other"}
