package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// JSONFile is a KV kept as a single JSON object on disk. Values must be
// valid JSON so the file stays readable, and are stored compacted so Get
// returns the same bytes before and after a reopen. Every write rewrites the
// file atomically.
type JSONFile struct {
	path string

	mu   sync.Mutex
	data map[string]json.RawMessage
}

// OpenJSONFile loads path, starting empty when it does not exist.
func OpenJSONFile(path string) (*JSONFile, error) {
	f := &JSONFile{path: path, data: map[string]json.RawMessage{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	// Files written by older versions carry indented values.
	for k, v := range f.data {
		c, err := compact(v)
		if err != nil {
			return nil, fmt.Errorf("decode %s: key %s: %w", path, k, err)
		}
		f.data[k] = c
	}
	return f, nil
}

func (f *JSONFile) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

func (f *JSONFile) Put(_ context.Context, key string, value []byte) error {
	c, err := compact(value)
	if err != nil {
		return fmt.Errorf("json store: value for %s is not valid JSON: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.data[key]
	f.data[key] = c
	if err := f.flush(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *JSONFile) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.flush()
}

func (f *JSONFile) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *JSONFile) Close() error {
	return nil
}

// flush must be called with mu held. Values are written one per line as
// stored; MarshalIndent would re-indent them.
func (f *JSONFile) flush() error {
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(",")
		}
		name, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.WriteString("\n  ")
		buf.Write(name)
		buf.WriteString(": ")
		buf.Write(f.data[k])
	}
	buf.WriteString("\n}\n")
	return WriteFileAtomic(f.path, buf.Bytes(), 0644)
}

func compact(value []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
