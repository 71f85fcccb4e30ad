// Package profiles loads named LLM provider/model bundles from a TOML
// file and resolves them by name or by model for the Agent's /model
// slash-command.
package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Profile is one [profiles.<name>] entry.
type Profile struct {
	Name      string `toml:"-"`
	Model     string `toml:"model"`
	Provider  string `toml:"provider"`
	APIURL    string `toml:"api_url"`
	APIKey    string `toml:"api_key"`
	APIKeyEnv string `toml:"api_key_env"`
}

// ResolvedAPIKey returns APIKey if set, else the value of the environment
// variable named by APIKeyEnv.
func (p Profile) ResolvedAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}

type fileSchema struct {
	Profiles map[string]Profile `toml:"profiles"`
}

// Set is the loaded, lower-case-keyed collection of profiles.
type Set struct {
	byName map[string]Profile
}

// DefaultPath resolves ACP_MODEL_PROFILES_FILE (absolute or repo-root
// relative) or <repoRoot>/model-profiles.toml.
func DefaultPath(repoRoot string) string {
	if raw := os.Getenv("ACP_MODEL_PROFILES_FILE"); raw != "" {
		if filepath.IsAbs(raw) {
			return raw
		}
		return filepath.Join(repoRoot, raw)
	}
	return filepath.Join(repoRoot, "model-profiles.toml")
}

// Load parses the TOML profiles file at path. A missing file yields an
// empty, valid Set rather than an error, since profiles are optional.
func Load(path string) (*Set, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Set{byName: map[string]Profile{}}, nil
	}

	var schema fileSchema
	if _, err := toml.DecodeFile(path, &schema); err != nil {
		return nil, fmt.Errorf("profiles: parsing %s: %w", path, err)
	}

	byName := make(map[string]Profile, len(schema.Profiles))
	for name, p := range schema.Profiles {
		if p.Model == "" {
			return nil, fmt.Errorf("profiles: %s: profile %q is missing required field model", path, name)
		}
		p.Name = name
		byName[strings.ToLower(name)] = p
	}

	return &Set{byName: byName}, nil
}

// AmbiguousModelError is returned when two or more profiles share a model
// string and the lookup cannot disambiguate.
type AmbiguousModelError struct {
	Model      string
	Candidates []string
}

func (e *AmbiguousModelError) Error() string {
	return fmt.Sprintf("profiles: model %q matches multiple profiles: %s", e.Model, strings.Join(e.Candidates, ", "))
}

// Resolve looks up a profile first by exact lower-case name, then by a
// disambiguated match on its model string.
func (s *Set) Resolve(nameOrModel string) (Profile, error) {
	key := strings.ToLower(nameOrModel)
	if p, ok := s.byName[key]; ok {
		return p, nil
	}

	var matches []Profile
	for _, p := range s.byName {
		if p.Model == nameOrModel {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return Profile{}, fmt.Errorf("profiles: no profile named or modeled %q", nameOrModel)
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = m.Name
		}
		return Profile{}, &AmbiguousModelError{Model: nameOrModel, Candidates: candidates}
	}
}
