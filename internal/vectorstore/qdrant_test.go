package vectorstore

import (
	"strings"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestDistanceOf(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"cosine", false},
		{"euclid", false},
		{"dot", false},
		{"manhattan", false},
		{"bogus", true},
	}

	for _, tt := range tests {
		_, err := distanceOf(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("distanceOf(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
	}
}

func TestBuildFilter(t *testing.T) {
	f := SearchFilters{PathPrefix: "src/", ContentType: "code", Repos: []string{"a", "b"}}
	filter := buildFilter(f)
	if filter == nil {
		t.Fatal("expected a non-nil filter")
	}
	if len(filter.Must) != 3 {
		t.Errorf("expected 3 must-clauses, got %d", len(filter.Must))
	}

	if buildFilter(SearchFilters{}) != nil {
		t.Errorf("empty filters should lower to nil")
	}
}

func TestFromQdrantValue_ZeroAndFalseValuesSurvive(t *testing.T) {
	tests := []struct {
		name string
		in   *qdrant.Value
		want any
	}{
		{"zero integer", qdrant.NewValueInt(0), int64(0)},
		{"nonzero integer", qdrant.NewValueInt(3), int64(3)},
		{"zero double", qdrant.NewValueDouble(0), float64(0)},
		{"false bool", qdrant.NewValueBool(false), false},
		{"true bool", qdrant.NewValueBool(true), true},
		{"empty string", qdrant.NewValueString(""), ""},
		{"nil value", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fromQdrantValue(tt.in)
			if got != tt.want {
				t.Errorf("fromQdrantValue(%v) = %#v (%T), want %#v (%T)", tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestCollectionMismatchError(t *testing.T) {
	err := &CollectionMismatchError{Collection: "x", ExistingDim: 768, RequestedDim: 3584}
	msg := err.Error()
	if !strings.Contains(msg, "768") || !strings.Contains(msg, "3584") {
		t.Errorf("error message must cite both dims, got: %s", msg)
	}
}
