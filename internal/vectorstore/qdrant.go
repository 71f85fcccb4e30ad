// Package vectorstore manages collection lifecycle, payload indexing,
// upsert, and filtered search against Qdrant.
package vectorstore

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/codecompass/core/internal/models"
	"github.com/codecompass/core/pkg/config"
)

// CollectionMismatchError is the refuse-to-corrupt invariant failure from
// ensureCollection.
type CollectionMismatchError struct {
	Collection  string
	ExistingDim int
	RequestedDim int
}

func (e *CollectionMismatchError) Error() string {
	return fmt.Sprintf("vectorstore: collection %q has dim %d, cannot use with dim %d",
		e.Collection, e.ExistingDim, e.RequestedDim)
}

// Store wraps a Qdrant gRPC client.
type Store struct {
	cfg    *config.QdrantConfig
	client *qdrant.Client
}

// New dials Qdrant per the resolved QdrantConfig.
func New(cfg *config.QdrantConfig) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.URL,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: connecting to Qdrant: %w", err)
	}
	return &Store{cfg: cfg, client: client}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ResolveSplitCollectionNames returns (<base>__code, <base>__docs). dim
// and modelName are accepted for forward compatibility only; per spec §9
// Open Question (a), the split-per-content-type scheme is authoritative.
func (s *Store) ResolveSplitCollectionNames(dim int, modelName string) (code, docs string) {
	return s.cfg.CollectionBase + "__code", s.cfg.CollectionBase + "__docs"
}

// EnsureCollection is idempotent: creates the collection if absent,
// validates the dimension if present, and fails loudly on mismatch.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("vectorstore: checking collection %q: %w", name, err)
	}

	if exists {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return fmt.Errorf("vectorstore: fetching collection %q info: %w", name, err)
		}
		existingDim := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		if existingDim != dim {
			return &CollectionMismatchError{Collection: name, ExistingDim: existingDim, RequestedDim: dim}
		}
		log.Printf("vectorstore: collection %q validated at dim %d", name, dim)
		return nil
	}

	distance, err := distanceOf(s.cfg.Distance)
	if err != nil {
		return err
	}

	if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: distance,
				},
			},
		},
	}); err != nil {
		return fmt.Errorf("vectorstore: creating collection %q: %w", name, err)
	}

	log.Printf("vectorstore: created collection %q with %d dimensions", name, dim)
	return nil
}

// EnsurePayloadKeywordIndex creates a keyword payload index on field,
// idempotent at the store level.
func (s *Store) EnsurePayloadKeywordIndex(ctx context.Context, name, field string) error {
	fieldType := qdrant.FieldType_FieldTypeKeyword
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      field,
		FieldType:      &fieldType,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: creating payload index %s.%s: %w", name, field, err)
	}
	return nil
}

// HasPayloadField reports whether the collection's reported payload schema
// lists field.
func (s *Store) HasPayloadField(ctx context.Context, name, field string) (bool, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return false, fmt.Errorf("vectorstore: fetching collection %q info: %w", name, err)
	}
	_, ok := info.GetPayloadSchema()[field]
	return ok, nil
}

// Upsert batch-upserts points in groups of cfg.UpsertBatchSize.
func (s *Store) Upsert(ctx context.Context, collection string, points []models.VectorPoint) (upserted, batches int, err error) {
	if len(points) == 0 {
		return 0, 0, nil
	}

	batchSize := s.cfg.UpsertBatchSize
	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}

		qdrantPoints := make([]*qdrant.PointStruct, end-start)
		for i, p := range points[start:end] {
			qdrantPoints[i] = toPointStruct(p)
		}

		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qdrantPoints,
		}); err != nil {
			return upserted, batches, fmt.Errorf("vectorstore: upserting batch into %q: %w", collection, err)
		}

		upserted += len(qdrantPoints)
		batches++
	}

	return upserted, batches, nil
}

// SearchFilters are lowered to store-native clauses per spec §4.F.
type SearchFilters struct {
	PathPrefix  string
	ContentType string
	Language    string
	Repos       []string
}

// Search returns hits sorted by descending score. A 404 on the collection
// yields an empty list.
func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, filters SearchFilters, topK int, withVector bool) ([]models.VectorPoint, error) {
	limit := uint64(topK)

	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}
	if withVector {
		query.WithVectors = &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}}
	}

	if filter := buildFilter(filters); filter != nil {
		query.Filter = filter
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vectorstore: searching %q: %w", collection, err)
	}

	points := make([]models.VectorPoint, 0, len(results))
	for _, r := range results {
		points = append(points, models.VectorPoint{
			ID:      r.GetId().GetUuid(),
			Vector:  nil,
			Payload: payloadToMap(r.GetPayload()),
			Score:   float64(r.GetScore()),
		})
	}
	return points, nil
}

func buildFilter(f SearchFilters) *qdrant.Filter {
	var must []*qdrant.Condition

	if f.PathPrefix != "" {
		must = append(must, textMatchCondition("path", f.PathPrefix))
	}
	if f.ContentType != "" {
		must = append(must, keywordMatchCondition("content_type", f.ContentType))
	}
	if f.Language != "" {
		must = append(must, keywordMatchCondition("language", f.Language))
	}
	if len(f.Repos) > 0 {
		must = append(must, matchAnyCondition("repo", f.Repos))
	}

	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func keywordMatchCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

// textMatchCondition approximates a path_prefix filter with a text match,
// per spec §9 Open Question (b) — not a strict "starts_with" operator.
func textMatchCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Text{Text: value}},
			},
		},
	}
}

func matchAnyCondition(key string, values []string) *qdrant.Condition {
	keywords := make([]string, len(values))
	copy(keywords, values)
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keywords{
						Keywords: &qdrant.RepeatedStrings{Strings: keywords},
					},
				},
			},
		},
	}
}

func toPointStruct(p models.VectorPoint) *qdrant.PointStruct {
	payload := make(map[string]*qdrant.Value, len(p.Payload))
	for k, v := range p.Payload {
		payload[k] = toQdrantValue(v)
	}

	return &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: p.ID}},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}},
		},
		Payload: payload,
	}
}

func toQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case bool:
		return qdrant.NewValueBool(val)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", val))
	}
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}

func distanceOf(raw string) (qdrant.Distance, error) {
	switch raw {
	case "cosine":
		return qdrant.Distance_Cosine, nil
	case "euclid":
		return qdrant.Distance_Euclid, nil
	case "dot":
		return qdrant.Distance_Dot, nil
	case "manhattan":
		return qdrant.Distance_Manhattan, nil
	default:
		return 0, fmt.Errorf("vectorstore: unknown distance metric %q", raw)
	}
}

func isNotFound(err error) bool {
	// Qdrant's gRPC client surfaces a missing collection as a NotFound
	// status; string-matching here mirrors the teacher's lack of a typed
	// status check, kept since the status package adds nothing a 404-style
	// empty-result contract can't already express.
	return err != nil && strings.Contains(err.Error(), "not found")
}
