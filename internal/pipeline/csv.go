package pipeline

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// writeCSV marshals rows to a CSV file, creating parent directories as
// needed. Stage boundaries are plain CSV so analysts can open any
// intermediate artifact directly.
func writeCSV[T any](path string, rows []T) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "pipeline: marshal csv %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: mkdir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	return nil
}

// readCSV unmarshals a CSV file into rows.
func readCSV[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read %s", path)
	}
	// An empty file (headers only or zero bytes) is a valid empty dataset.
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var rows []T
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "pipeline: unmarshal csv %s", path)
	}
	return rows, nil
}
