// internal/identity/identity.go
//
// Package identity gives each worker a stable name. The name is
// generated once, persisted beside the worker, and reused across
// restarts so published results stay attributable to one process slot.
package identity

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const namePrefix = "scraperd"

// Load returns the worker name stored at path, generating and
// persisting a fresh one when the file does not exist yet.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		name := strings.TrimSpace(string(data))
		if name != "" {
			log.Debug().Str("name", name).Str("path", path).Msg("Loaded worker identity")
			return name, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading identity file %s: %w", path, err)
	}

	name := fmt.Sprintf("%s-%s", namePrefix, uuid.NewString()[:8])
	if err := os.WriteFile(path, []byte(name+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing identity file %s: %w", path, err)
	}
	log.Info().Str("name", name).Str("path", path).Msg("Generated worker identity")
	return name, nil
}
