// Package credstore is the credential persistence boundary. The stored
// values are opaque to the sync core; at-rest encryption is the
// responsibility of the surrounding deployment.
package credstore

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/store/core"
)

// Store persists local database connection settings between runs.
type Store interface {
	// Load returns the saved connection settings.
	Load() (core.Params, error)
	// Save persists the connection settings.
	Save(params core.Params) error
}

// FileStore keeps the settings in a YAML file with owner-only
// permissions.
type FileStore struct {
	path string
}

// NewFileStore creates a Store backed by the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the saved parameters. A missing file is a not-found
// error so callers can fall back to prompting.
func (s *FileStore) Load() (core.Params, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.Params{}, errors.Wrap(err, errors.ErrorTypeNotFound, "no saved connection settings")
		}
		return core.Params{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read connection settings")
	}

	var params core.Params
	if err := yaml.Unmarshal(data, &params); err != nil {
		return core.Params{}, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection settings")
	}
	return params, nil
}

// Save writes the parameters with 0600 permissions.
func (s *FileStore) Save(params core.Params) error {
	data, err := yaml.Marshal(params)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal connection settings")
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to write connection settings")
	}
	return nil
}
