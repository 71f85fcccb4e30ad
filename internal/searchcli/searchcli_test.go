package searchcli

import (
	"strings"
	"testing"

	"github.com/codecompass/core/internal/models"
)

func TestNormalizeSnippet(t *testing.T) {
	got := normalizeSnippet("line one\n\n  line  two  ", 300)
	if got != "line one line two" {
		t.Errorf("got %q", got)
	}

	long := strings.Repeat("x", 310)
	truncated := normalizeSnippet(long, 300)
	if len(truncated) != 300 || !strings.HasSuffix(truncated, "...") {
		t.Errorf("expected 300-char truncation with ellipsis, got len=%d", len(truncated))
	}
}

func TestBuildAskArguments_ScopeVariants(t *testing.T) {
	repoArgs := BuildAskArguments(models.AskInput{Query: "q", Scope: models.Scope{Type: "repo", Repo: "a"}})
	if scope, ok := repoArgs["scope"].(map[string]any); !ok || scope["repo"] != "a" {
		t.Errorf("expected repo scope, got %v", repoArgs["scope"])
	}

	reposArgs := BuildAskArguments(models.AskInput{Query: "q", Scope: models.Scope{Type: "repos", Repos: []string{"a", "b"}}})
	if scope, ok := reposArgs["scope"].(map[string]any); !ok || len(scope["repos"].([]string)) != 2 {
		t.Errorf("expected repos scope, got %v", reposArgs["scope"])
	}

	allArgs := BuildAskArguments(models.AskInput{Query: "q"})
	if scope, ok := allArgs["scope"].(map[string]any); !ok || scope["type"] != "all" {
		t.Errorf("expected all scope by default, got %v", allArgs["scope"])
	}
}

func TestBuildAskArguments_OptionalFieldsOmittedWhenZero(t *testing.T) {
	args := BuildAskArguments(models.AskInput{Query: "q"})
	for _, key := range []string{"topK", "minScore", "llmModel", "pathPrefix", "language", "grounded", "contentType", "strict"} {
		if _, present := args[key]; present {
			t.Errorf("expected %q to be omitted on zero-value input", key)
		}
	}
}

func TestFormatResults_Empty(t *testing.T) {
	if FormatResults(nil) != "no results" {
		t.Errorf("expected sentinel for empty results")
	}
}
