package warehouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/convista/convsync/pkg/types"
)

// FileSink writes datasets to JSON files instead of a database, one file per
// run family. Useful for inspecting what a run would load.
type FileSink struct {
	dir string
	log zerolog.Logger
}

func NewFileSink(dir string, log zerolog.Logger) *FileSink {
	return &FileSink{dir: dir, log: log}
}

// Load serializes the dataset to sessions.json or dicts.json depending on
// which family it carries. Each Load overwrites the previous file.
func (s *FileSink) Load(_ context.Context, ds types.Dataset) error {
	name := "dicts.json"
	if _, ok := ds["sessions"]; ok {
		name = "sessions.json"
	}
	path := filepath.Join(s.dir, name)

	b, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling dataset: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing dataset: %w", err)
	}

	s.log.Info().Str("path", path).Int("entities", len(ds)).Msg("dataset written")
	return nil
}
