package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ConversationLogConfig controls NDJSON transcript logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// ConversationLogEvent is one line of a transcript log.
type ConversationLogEvent struct {
	Timestamp      string         `json:"ts"`
	Email          string         `json:"email"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	EventType      string         `json:"event_type"`
	ContentRaw     string         `json:"content_raw"`
	Content        string         `json:"content"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records conversation events out of band.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// NopConversationLogger returns a logger that discards every event.
func NopConversationLogger() ConversationLogger {
	return noopConversationLogger{}
}

type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger
	queue  chan ConversationLogEvent
	global *os.File
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	pathUnsafeChars = regexp.MustCompile(`[^A-Za-z0-9._@-]`)
)

// NewConversationLogger creates an asynchronous NDJSON logger. Events are
// written per email and conversation under cfg.Dir, and optionally appended
// to a single global file. A disabled config yields a no-op logger.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &fileConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues an event. Events are dropped when the queue is full.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"conversation_id", event.ConversationID,
			"event_type", event.EventType,
		)
	}
}

// Close drains pending events and closes the global file.
func (l *fileConversationLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
	})
	<-l.done
	return nil
}

func (l *fileConversationLogger) run() {
	defer close(l.done)
	defer func() {
		if l.global == nil {
			return
		}
		if err := l.global.Close(); err != nil {
			l.logger.Warn("failed to close conversation log", "path", l.cfg.GlobalPath, "error", err)
		}
	}()

	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to encode conversation log event", "error", err)
			continue
		}
		line = append(line, '\n')

		l.appendSession(l.sessionPath(event), line)
		if l.cfg.GlobalEnabled {
			l.appendGlobal(line)
		}
	}
}

func (l *fileConversationLogger) sessionPath(event ConversationLogEvent) string {
	email := safePathPart(event.Email, "anonymous")
	conv := safePathPart(event.ConversationID, "unassigned")
	return filepath.Join(l.cfg.Dir, email, conv+".ndjson")
}

// appendSession opens, appends to and closes a per-conversation file so
// descriptors are not held across events.
func (l *fileConversationLogger) appendSession(path string, line []byte) {
	f, err := openAppend(path)
	if err != nil {
		l.logger.Warn("failed to open conversation log", "path", path, "error", err)
		return
	}
	if _, err := f.Write(line); err != nil {
		l.logger.Warn("failed to write conversation log", "path", path, "error", err)
	}
	if err := f.Close(); err != nil {
		l.logger.Warn("failed to close conversation log", "path", path, "error", err)
	}
}

// appendGlobal writes to the single global file, kept open until Close.
func (l *fileConversationLogger) appendGlobal(line []byte) {
	if l.global == nil {
		f, err := openAppend(l.cfg.GlobalPath)
		if err != nil {
			l.logger.Warn("failed to open conversation log", "path", l.cfg.GlobalPath, "error", err)
			return
		}
		l.global = f
	}
	if _, err := l.global.Write(line); err != nil {
		l.logger.Warn("failed to write conversation log", "path", l.cfg.GlobalPath, "error", err)
	}
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func safePathPart(s, fallback string) string {
	s = pathUnsafeChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return fallback
	}
	return s
}

// cleanForReadability strips terminal escapes and control characters and
// collapses runs of blank space.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
