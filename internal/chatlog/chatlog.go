// Package chatlog implements the daily JSONL chat audit log (SPEC_FULL.md
// §4.12), independent of the operational structured logger.
package chatlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cattackle-hq/cattackle-core/internal/platform"
)

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644

	previewLimit = 100
)

// Logger appends one JSON object per processed interaction to a file named
// for the current calendar date under Dir.
type Logger struct {
	dir string
	log *slog.Logger
	mu  sync.Mutex
}

// New returns a Logger writing under dir. A nil log uses slog.Default().
func New(dir string, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}

	return &Logger{dir: dir, log: log}
}

type entry struct {
	Timestamp       string `json:"timestamp"`
	ChatID          int64  `json:"chat_id"`
	ParticipantName string `json:"participant_name"`
	MessageType     string `json:"message_type"`
	TextLength      int    `json:"text_length"`
	TextPreview     string `json:"text_preview"`
	Command         string `json:"command,omitempty"`
	CattackleName   string `json:"cattackle_name,omitempty"`
	ResponseLength  *int   `json:"response_length,omitempty"`
	UserID          *int64 `json:"user_id,omitempty"`
	IsBot           *bool  `json:"is_bot,omitempty"`
	LanguageCode    string `json:"language_code,omitempty"`
}

// LogMessage records one processed interaction. Failures are logged at warn
// and otherwise swallowed: this is an audit trail, not the hot path.
func (l *Logger) LogMessage(chatID int64, messageType, text string, from *platform.From, command, cattackleName string, responseLength int) {
	now := time.Now()

	e := entry{
		Timestamp:       now.Format(time.RFC3339),
		ChatID:          chatID,
		ParticipantName: participantName(from),
		MessageType:     messageType,
		TextLength:      len([]rune(text)),
		TextPreview:     preview(text),
		Command:         command,
		CattackleName:   cattackleName,
	}

	if command != "" {
		rl := responseLength
		e.ResponseLength = &rl
	}

	if from != nil {
		id := from.ID
		e.UserID = &id
		isBot := from.IsBot
		e.IsBot = &isBot
		e.LanguageCode = from.Language
	}

	if err := l.append(now, e); err != nil {
		l.log.Warn("failed to write chat log entry", "err", err)
	}
}

func (l *Logger) append(now time.Time, e entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, dirPerm); err != nil {
		return err //nolint:wrapcheck
	}

	path := filepath.Join(l.dir, now.Format("2006-01-02")+".jsonl")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return err //nolint:wrapcheck
	}
	defer f.Close() //nolint:errcheck

	data, err := json.Marshal(e)
	if err != nil {
		return err //nolint:wrapcheck
	}

	data = append(data, '\n')

	_, err = f.Write(data)

	return err //nolint:wrapcheck
}

func participantName(from *platform.From) string {
	if from == nil {
		return "Unknown"
	}

	if from.Username != "" {
		return "@" + from.Username
	}

	if from.FirstName != "" {
		name := from.FirstName
		if from.LastName != "" {
			name += " " + from.LastName
		}

		return name
	}

	return "Unknown"
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLimit {
		return text
	}

	return string(r[:previewLimit]) + "..."
}
