package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// SavedQueries maps short names to Gmail search expressions
type SavedQueries map[string]string

// LoadSavedQueries loads a saved-query file:
//
//	queries:
//	  triage: "in:inbox -is:muted"
//	  waiting: "label:tm/waiting"
//
// A missing path yields an empty set; a present but malformed file is an error.
func LoadSavedQueries(path string) (SavedQueries, error) {
	if path == "" {
		return SavedQueries{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SavedQueries{}, nil
		}
		return nil, fmt.Errorf("failed to read queries file: %w", err)
	}

	var file struct {
		Queries map[string]string `yaml:"queries"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse queries file: %w", err)
	}
	if file.Queries == nil {
		return SavedQueries{}, nil
	}
	return SavedQueries(file.Queries), nil
}

// Resolve returns the saved query for name, or name itself when it is not a
// saved-query name (treated as a raw Gmail query)
func (q SavedQueries) Resolve(name string) string {
	if query, ok := q[name]; ok {
		return query
	}
	return name
}

// Names returns the saved-query names sorted alphabetically
func (q SavedQueries) Names() []string {
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
