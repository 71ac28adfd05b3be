package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoOutput is returned by LatestFile when a directory holds no matching file.
var ErrNoOutput = errors.New("no output found")

// Stage identifies a per-account dataset.
type Stage string

const (
	StageRaw       Stage = "raw"
	StageProcessed Stage = "processed"
)

// DatasetPath returns root/<stage>/<stage>_<handle>.json.
func DatasetPath(root string, stage Stage, handle string) string {
	return filepath.Join(root, string(stage), fmt.Sprintf("%s_%s.json", stage, handle))
}

// SaveDataset writes data as indented JSON, atomically.
func SaveDataset[T any](path string, data T) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	if err := WriteFileAtomic(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write dataset %s: %w", path, err)
	}

	return nil
}

// LoadDataset loads JSON data from a specific file path. A missing file
// yields an error matching fs.ErrNotExist.
func LoadDataset[T any](path string) (T, error) {
	var data T

	jsonData, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read dataset: %w", err)
	}

	if err := json.Unmarshal(jsonData, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal dataset %s: %w", path, err)
	}

	return data, nil
}

// Validator is a dataset record that can check its own invariants.
type Validator interface {
	Validate() error
}

// LoadRecords loads a dataset of records and drops those failing Validate.
// A file that cannot be read or decoded is an error; rejected records are
// returned alongside the valid ones, one error per record, so callers can
// log them and carry on.
func LoadRecords[T Validator](path string) ([]T, []error, error) {
	records, err := LoadDataset[[]T](path)
	if err != nil {
		return nil, nil, err
	}

	valid := make([]T, 0, len(records))
	var rejected []error
	for i, r := range records {
		if err := r.Validate(); err != nil {
			rejected = append(rejected, fmt.Errorf("%s: record %d: %w", filepath.Base(path), i, err))
			continue
		}
		valid = append(valid, r)
	}
	return valid, rejected, nil
}

// timestampLayout sorts lexically in chronological order.
const timestampLayout = "2006-01-02T15-04-05"

// SaveTimestamped writes content to dir/<prefix>_<timestamp><ext> and
// returns the path.
func SaveTimestamped(dir, prefix, ext string, content []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(dir, prefix+"_"+now.Format(timestampLayout)+ext)
	if err := WriteFileAtomic(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}

	return path, nil
}

// LatestFile returns the path to the most recent file with ext in dir.
// Timestamped names make the lexical maximum the newest.
func LatestFile(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w in %s", ErrNoOutput, dir)
		}
		return "", err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ext) && !strings.HasPrefix(entry.Name(), ".") {
			files = append(files, entry.Name())
		}
	}

	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoOutput, dir)
	}

	sort.Strings(files)
	return filepath.Join(dir, files[len(files)-1]), nil
}
