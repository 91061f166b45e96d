package eventbridge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kingrea/weft/internal/workflow"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "1.0.0"
	// EventSchemaVersion is the currently supported inbound event version.
	EventSchemaVersion = 1
)

// Event is one file notification posted by an editor or external watcher.
// Path is absolute or relative to the workspace root.
type Event struct {
	Version    int       `json:"version"`
	EventID    string    `json:"event_id"`
	Path       string    `json:"path"`
	Kind       string    `json:"kind"`
	ClientTime time.Time `json:"client_time,omitempty"`
	ServerTime time.Time `json:"server_time,omitempty"`
}

// Normalize applies defaults and canonical formatting before validation.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Version == 0 {
		e.Version = EventSchemaVersion
	}
	e.EventID = strings.TrimSpace(e.EventID)
	e.Path = strings.TrimSpace(e.Path)
	e.Kind = strings.ToLower(strings.TrimSpace(e.Kind))
}

// StampServerTime overwrites ServerTime with the supplied clock reading (UTC).
func (e *Event) StampServerTime(now time.Time) {
	if e == nil {
		return
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	e.ServerTime = now.UTC()
}

// Validate enforces baseline schema requirements for incoming events.
func (e Event) Validate() error {
	if e.Version != EventSchemaVersion {
		return fmt.Errorf("version %d not supported", e.Version)
	}
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	if e.Path == "" {
		return errors.New("path is required")
	}
	if _, err := e.EventKind(); err != nil {
		return err
	}
	return nil
}

// EventKind parses Kind.
func (e Event) EventKind() (workflow.EventKind, error) {
	return workflow.ParseEventKind(e.Kind)
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

type healthResponse struct {
	Status        string `json:"status"`
	Engine        string `json:"engine"`
	RunID         string `json:"run_id"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type eventResponse struct {
	Status     string    `json:"status"`
	Relevant   bool      `json:"relevant"`
	ServerTime time.Time `json:"server_time"`
}

type errorResponse struct {
	Error string `json:"error"`
}
