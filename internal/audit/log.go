// Package audit keeps a tamper-evident, append-only log of pipeline events.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/withObsrvr/auction-ledger/internal/logging"
)

// ErrChainBroken is returned by Verify when an event does not link to its
// predecessor or its stored hash does not match its content.
var ErrChainBroken = errors.New("audit chain broken")

// Log appends chained events to a JSON-lines file. The chain head is the
// hash of the last line in the file.
type Log struct {
	mu   sync.Mutex
	path string
	head string
	now  func() time.Time
	log  *slog.Logger
}

// OpenLog opens or creates the log at path and recovers the chain head.
func OpenLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	l := &Log{
		path: path,
		now:  time.Now,
		log:  logging.Component("audit"),
	}

	head, err := lastHash(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load chain head: %w", err)
	}
	l.head = head
	return l, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Head returns the hash of the most recent event, or "" for an empty log.
func (l *Log) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// Append chains a new event onto the log and writes it as one line.
func (l *Log) Append(eventType, runDir string, details any) (*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	evt, err := NewEvent(eventType, runDir, details, l.now())
	if err != nil {
		return nil, err
	}
	if err := evt.SetChainHashes(l.head); err != nil {
		return nil, err
	}

	line, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return nil, fmt.Errorf("append audit event: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync audit log: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close audit log: %w", err)
	}

	l.head = evt.Chain.EventHash
	l.log.Debug("audit event appended",
		"event_type", eventType,
		"event_id", evt.EventID,
		"event_hash", evt.Chain.EventHash,
	)
	return evt, nil
}

// lastHash returns the event hash of the final line in path.
func lastHash(path string) (string, error) {
	var head string
	err := scanEvents(path, func(_ int, evt *Event) error {
		head = evt.Chain.EventHash
		return nil
	})
	return head, err
}

// scanEvents decodes every non-empty line of path in order.
func scanEvents(path string, fn func(lineNo int, evt *Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		raw, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(raw)) > 0 {
			lineNo++
			var evt Event
			if uerr := json.Unmarshal(raw, &evt); uerr != nil {
				return fmt.Errorf("%w: line %d: %v", ErrChainBroken, lineNo, uerr)
			}
			if ferr := fn(lineNo, &evt); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audit log: %w", err)
		}
	}
}

// Verify walks the log and recomputes every hash. It returns the number of
// events checked.
func Verify(path string) (int, error) {
	var prev string
	count := 0

	err := scanEvents(path, func(lineNo int, evt *Event) error {
		if evt.Chain.PrevEventHash != prev {
			return fmt.Errorf("%w: line %d links to %q, expected %q",
				ErrChainBroken, lineNo, evt.Chain.PrevEventHash, prev)
		}
		want, err := ComputeEventHash(evt)
		if err != nil {
			return err
		}
		if evt.Chain.EventHash != want {
			return fmt.Errorf("%w: line %d hash %s does not match content (%s)",
				ErrChainBroken, lineNo, evt.Chain.EventHash, want)
		}
		prev = evt.Chain.EventHash
		count = lineNo
		return nil
	})
	return count, err
}
