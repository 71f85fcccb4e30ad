package profiles

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "model-profiles.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_MissingFileYieldsEmptySet(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := set.Resolve("anything"); err == nil {
		t.Errorf("expected resolve against empty set to fail")
	}
}

func TestLoad_ResolveByNameAndModel(t *testing.T) {
	path := writeProfiles(t, `
[profiles.fast]
model = "gpt-4o-mini"
provider = "openai"

[profiles.quality]
model = "gpt-4o"
`)
	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	byName, err := set.Resolve("Fast")
	if err != nil || byName.Model != "gpt-4o-mini" {
		t.Fatalf("Resolve(Fast) = %v, %v", byName, err)
	}

	byModel, err := set.Resolve("gpt-4o")
	if err != nil || byModel.Name != "quality" {
		t.Fatalf("Resolve(gpt-4o) = %v, %v", byModel, err)
	}
}

func TestLoad_AmbiguousModelRejected(t *testing.T) {
	path := writeProfiles(t, `
[profiles.a]
model = "shared"

[profiles.b]
model = "shared"
`)
	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err = set.Resolve("shared")
	if err == nil {
		t.Fatal("expected ambiguous model error")
	}
	if _, ok := err.(*AmbiguousModelError); !ok {
		t.Errorf("expected *AmbiguousModelError, got %T", err)
	}
}

func TestLoad_MissingModelFieldRejected(t *testing.T) {
	path := writeProfiles(t, `
[profiles.broken]
provider = "openai"
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for profile missing required model field")
	}
}

func TestResolvedAPIKey_FallsBackToEnv(t *testing.T) {
	t.Setenv("TEST_PROFILE_KEY", "secret-value")
	p := Profile{APIKeyEnv: "TEST_PROFILE_KEY"}
	if p.ResolvedAPIKey() != "secret-value" {
		t.Errorf("expected env fallback to resolve api key")
	}
}
