// Package vault resolves credential fields from operator-managed TOML
// files. Secrets are handed out at use time and never persisted by callers.
package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
)

// credentialFile is the on-disk shape of one credential.
// Format:
//
//	[cred-id]
//	kind = "site-login"
//	fields = { username = "reader@example.com", password = "..." }
type credentialFile struct {
	Kind   string            `toml:"kind"`
	Fields map[string]string `toml:"fields"`
}

type credential struct {
	kind   string
	fields map[string]string
}

// FileVault loads credentials from a directory of TOML files.
type FileVault struct {
	logger arbor.ILogger

	mu          sync.RWMutex
	credentials map[string]credential
}

// NewFileVault creates a vault and loads every .toml file in the directory.
func NewFileVault(logger arbor.ILogger, dirPath string) (*FileVault, error) {
	v := &FileVault{
		logger:      logger,
		credentials: make(map[string]credential),
	}
	if err := v.loadDirectory(dirPath); err != nil {
		return nil, err
	}
	return v, nil
}

// Resolve returns a copy of the plaintext fields for a credential. The kind
// must match; a publish credential cannot be used for a site login.
func (v *FileVault) Resolve(ctx context.Context, kind, credentialID string) (map[string]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	cred, ok := v.credentials[credentialID]
	if !ok {
		return nil, fmt.Errorf("credential not found: %s", credentialID)
	}
	if cred.kind != kind {
		return nil, fmt.Errorf("credential %s is kind %q, not %q", credentialID, cred.kind, kind)
	}

	fields := make(map[string]string, len(cred.fields))
	for name, value := range cred.fields {
		fields[name] = value
	}
	return fields, nil
}

func (v *FileVault) loadDirectory(dirPath string) error {
	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			v.logger.Warn().Str("dir", dirPath).Msg("Credentials directory not found, vault is empty")
			return nil
		}
		return fmt.Errorf("failed to stat credentials directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("credentials path %s is not a directory", dirPath)
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read credentials directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		count, err := v.loadFile(filepath.Join(dirPath, entry.Name()))
		if err != nil {
			return err
		}
		loaded += count
	}

	v.logger.Info().
		Str("dir", dirPath).
		Int("credentials", loaded).
		Msg("Credentials loaded")
	return nil
}

func (v *FileVault) loadFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read credential file %s: %w", path, err)
	}

	var parsed map[string]credentialFile
	if err := toml.Unmarshal(content, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse credential file %s: %w", path, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for id, file := range parsed {
		if file.Kind == "" {
			return 0, fmt.Errorf("credential %s in %s has no kind", id, path)
		}
		if _, exists := v.credentials[id]; exists {
			return 0, fmt.Errorf("duplicate credential id %s in %s", id, path)
		}
		v.credentials[id] = credential{kind: file.Kind, fields: file.Fields}
	}
	return len(parsed), nil
}
