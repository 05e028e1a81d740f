package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventVersion is written into every event.
const EventVersion = "1.0"

// Event types.
const (
	EventCaptureCompleted = "capture_completed"
	EventIngestCompleted  = "ingest_completed"
	EventValidationPassed = "validation_passed"
	EventValidationFailed = "validation_failed"
)

// Event is one line of the audit log.
type Event struct {
	Version   string          `json:"version"`
	EventType string          `json:"event_type"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	RunDir    string          `json:"run_dir"`
	Details   json.RawMessage `json:"details"`
	Chain     ChainInfo       `json:"chain"`
}

// ChainInfo links an event to its predecessor.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// NewEvent builds an unchained event. details must marshal to a JSON object.
func NewEvent(eventType, runDir string, details any, now time.Time) (*Event, error) {
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal event details: %w", err)
	}

	return &Event{
		Version:   EventVersion,
		EventType: eventType,
		EventID:   GenerateEventID(),
		Timestamp: now.UTC(),
		RunDir:    runDir,
		Details:   raw,
	}, nil
}

// ComputeEventHash hashes the JSON encoding of evt with event_hash blanked.
func ComputeEventHash(evt *Event) (string, error) {
	evtCopy := *evt
	evtCopy.Chain.EventHash = ""

	canonical, err := json.Marshal(evtCopy)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:]), nil
}

// SetChainHashes links evt to prevHash and computes its own hash.
func (evt *Event) SetChainHashes(prevHash string) error {
	evt.Chain.PrevEventHash = prevHash
	hash, err := ComputeEventHash(evt)
	if err != nil {
		return err
	}
	evt.Chain.EventHash = hash
	return nil
}

// GenerateEventID creates a unique event ID.
func GenerateEventID() string {
	return "evt_" + uuid.NewString()
}
