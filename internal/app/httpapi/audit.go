package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/shoplight/storefront/internal/middleware"
)

// auditEntry records one merchant edit for later review.
type auditEntry struct {
	Time       time.Time `json:"time"`
	User       string    `json:"user"`
	Role       string    `json:"role"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// AuditSink receives audit entries for durable storage.
type AuditSink interface {
	Write(entry auditEntry) error
}

// auditLog keeps a bounded in-memory window of recent edits and forwards
// each entry to the sink when one is configured.
type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    AuditSink
}

func newAuditLog(max int, sink AuditSink) *auditLog {
	if max <= 0 {
		max = 200
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) record(r *http.Request, status int) {
	l.add(auditEntry{
		Time:       time.Now().UTC(),
		User:       middleware.GetUserID(r.Context()),
		Role:       middleware.GetUserRole(r.Context()),
		Path:       r.URL.Path,
		Method:     r.Method,
		Status:     status,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		// Best-effort persistence; a failed sink write never fails the request.
		_ = l.sink.Write(entry)
	}
}

func (l *auditLog) list() []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]auditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// FileAuditSink appends JSON lines to a file.
type FileAuditSink struct {
	mu   sync.Mutex
	path string
}

// NewFileAuditSink creates a sink appending to path.
func NewFileAuditSink(path string) *FileAuditSink {
	return &FileAuditSink{path: path}
}

// Write appends entry as one JSON line.
func (s *FileAuditSink) Write(entry auditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}
