package dedup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// IdentityProvider supplies the stable per-installation client id the
// semantic strategy uses to tell "this client re-emitting its own
// action" apart from "another client describing the same entity".
// Injected at engine construction so tests can supply deterministic
// identities.
type IdentityProvider interface {
	ClientID() string
}

// StaticIdentity is a fixed client id. Used in tests and by embedders
// that manage installation identity themselves.
type StaticIdentity string

func (s StaticIdentity) ClientID() string { return string(s) }

// FileIdentity persists a random installation id next to the database
// so it survives restarts. The file holds one UUID.
type FileIdentity struct {
	id string
}

// NewFileIdentity loads the installation id from path, generating and
// persisting one on first run. Any failure is fatal to the caller:
// falling back to an ephemeral id would defeat the operation-id
// strategy across restarts.
func NewFileIdentity(path string) (*FileIdentity, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(raw))
		if _, parseErr := uuid.Parse(id); parseErr != nil {
			return nil, fmt.Errorf("corrupt client identity file %q: %w", path, parseErr)
		}
		return &FileIdentity{id: id}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read client identity: %w", err)
	}

	generated, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("secure random unavailable: %w", err)
	}
	id := generated.String()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("persist client identity: %w", err)
	}

	return &FileIdentity{id: id}, nil
}

func (f *FileIdentity) ClientID() string { return f.id }
