package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Account is one roster entry.
type Account struct {
	Handle   string `yaml:"handle"`
	Name     string `yaml:"name,omitempty"`
	Tier     string `yaml:"tier,omitempty"`
	Category string `yaml:"category,omitempty"`
}

type rosterFile struct {
	Accounts []Account `yaml:"accounts"`
}

// NormalizeHandle strips a leading @ and surrounding space, and lowercases.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// LoadAccounts reads the YAML roster at path.
func LoadAccounts(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	return ParseAccounts(data)
}

// ParseAccounts decodes a roster. Handles are normalized; empty or repeated
// handles are rejected.
func ParseAccounts(data []byte) ([]Account, error) {
	var raw rosterFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: accounts: %v", ErrInvalid, err)
	}

	seen := make(map[string]int, len(raw.Accounts))
	out := make([]Account, 0, len(raw.Accounts))
	for i, a := range raw.Accounts {
		a.Handle = NormalizeHandle(a.Handle)
		if a.Handle == "" {
			return nil, fmt.Errorf("%w: accounts[%d] has no handle", ErrInvalid, i)
		}
		if j, dup := seen[a.Handle]; dup {
			return nil, fmt.Errorf("%w: handle %q listed at %d and %d", ErrInvalid, a.Handle, j, i)
		}
		seen[a.Handle] = i
		out = append(out, a)
	}
	return out, nil
}

// SelectAccounts narrows accounts to the given handles, preserving roster
// order. Unknown handles are added at the end with no metadata.
func SelectAccounts(accounts []Account, handles []string) []Account {
	if len(handles) == 0 {
		return accounts
	}
	want := make(map[string]bool, len(handles))
	order := make([]string, 0, len(handles))
	for _, h := range handles {
		h = NormalizeHandle(h)
		if h != "" && !want[h] {
			want[h] = true
			order = append(order, h)
		}
	}

	var out []Account
	for _, a := range accounts {
		if want[a.Handle] {
			out = append(out, a)
			delete(want, a.Handle)
		}
	}
	for _, h := range order {
		if want[h] {
			out = append(out, Account{Handle: h})
		}
	}
	return out
}
