// Package artifact persists model artifacts as self-describing JSON files.
//
// Writes go to a temporary file in the destination directory and are
// published with an atomic rename, so a concurrent load never observes a
// partially-written artifact.
package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/bricodata/retail-cli/internal/model"
)

// Save marshals v as JSON and atomically writes it to path, creating
// parent directories as needed.
func Save(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "artifact: marshal")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "artifact: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "artifact: create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrapf(err, "artifact: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "artifact: close %s", tmpName)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "artifact: publish %s", path)
	}
	return nil
}

// Load reads the JSON artifact at path into v. A missing file yields
// model.ErrNotFound naming the expected path.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return eris.Wrapf(model.ErrNotFound, "artifact: %s", path)
		}
		return eris.Wrapf(err, "artifact: read %s", path)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "artifact: unmarshal %s", path)
	}
	return nil
}
