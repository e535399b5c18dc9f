package fiction

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotcommander/vbook/internal/core"
)

// Background file names inside the background directory.
const (
	WorldFile      = "world.md"
	CharactersFile = "characters.md"
)

// Background is the fixed world and character material given to every
// draft. It is read once per run and never modified.
type Background struct {
	World      string
	Characters string
}

// LoadBackground reads world.md and characters.md from dir. A missing file
// is reported as core.ErrMissingInput.
func LoadBackground(dir string) (Background, error) {
	world, err := readBackgroundFile(dir, WorldFile)
	if err != nil {
		return Background{}, err
	}
	characters, err := readBackgroundFile(dir, CharactersFile)
	if err != nil {
		return Background{}, err
	}
	return Background{World: world, Characters: characters}, nil
}

func readBackgroundFile(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", core.ErrMissingInput, path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("%w: %s is empty", core.ErrMissingInput, path)
	}
	return text, nil
}
