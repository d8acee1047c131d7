// Package checkpoint persists the high-water mark of the last fully
// successful run. A missing or unreadable checkpoint means "never ran",
// which makes the next run fetch everything again; reruns are safe because
// loads are upserts.
package checkpoint

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Store reads and writes the checkpoint instant at a fixed path.
type Store struct {
	path string
	log  zerolog.Logger
}

func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{path: path, log: log}
}

// Read returns the recorded instant, or the zero time when no checkpoint
// exists or the file is corrupt.
func (s *Store) Read() time.Time {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("reading checkpoint")
		}
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(b)))
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("corrupt checkpoint, treating as absent")
		return time.Time{}
	}
	return t
}

// Write records the instant atomically via a temp file rename.
func (s *Store) Write(t time.Time) error {
	tmp := s.path + ".tmp"
	data := t.UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}
