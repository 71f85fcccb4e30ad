package classifier

import (
	"testing"

	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/pkg/config"
)

func TestClassify(t *testing.T) {
	cfg, err := config.ResolveRuntimeConfig()
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	c := New(cfg)

	tests := []struct {
		path string
		want models.ContentType
	}{
		{"src/main.go", models.ContentTypeCode},
		{"docs/guide.md", models.ContentTypeDocs},
		{"README.md", models.ContentTypeDocs},
		{"internal/api/handler.go", models.ContentTypeCode},
		{"CONTRIBUTING.md", models.ContentTypeDocs},
		{"adr/0001-use-grpc.md", models.ContentTypeDocs},
	}

	for _, tt := range tests {
		got, _ := c.Classify(tt.path)
		if got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
