package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"tenkindex/internal/ingest"
	"tenkindex/internal/retrieval"
	"tenkindex/internal/vector"
)

// Store keeps filing chunks in the FilingChunk class.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewSchemaAdapter(s.client))
}

// ObjectID derives the Weaviate object id from a chunk id, so uploading the
// same chunk twice overwrites it.
func ObjectID(chunkID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String())
}

// Upsert writes docs in one batch request. Any per-object failure fails the
// whole call.
func (s *Store) Upsert(ctx context.Context, docs []ingest.Document) error {
	if len(docs) == 0 {
		return nil
	}

	batcher := s.client.Batch().ObjectsBatcher()
	for _, d := range docs {
		batcher = batcher.WithObjects(&models.Object{
			Class:      vector.ClassName,
			ID:         ObjectID(d.ID),
			Properties: d.Properties,
			Vector:     d.Vector,
		})
	}

	resp, err := batcher.Do(ctx)
	if err != nil {
		return err
	}

	var failed []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				failed = append(failed, e.Message)
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d objects rejected: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

func tickerIs(ticker string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"ticker"}).
		WithOperator(filters.Equal).
		WithValueText(ticker)
}

// PruneChunks deletes chunks of ticker left over from a longer earlier run.
func (s *Store) PruneChunks(ctx context.Context, ticker string, keep int) error {
	return s.deleteWhere(ctx, filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			tickerIs(ticker),
			filters.Where().
				WithPath([]string{"chunk_index"}).
				WithOperator(filters.GreaterThanEqual).
				WithValueInt(int64(keep)),
		}))
}

func (s *Store) DeleteByTicker(ctx context.Context, ticker string) error {
	return s.deleteWhere(ctx, tickerIs(ticker))
}

func (s *Store) deleteWhere(ctx context.Context, where *filters.WhereBuilder) error {
	res, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return err
	}
	if res != nil && res.Results != nil {
		if res.Results.Failed > 0 {
			return fmt.Errorf("failed to delete %d chunks", res.Results.Failed)
		}
		slog.DebugContext(ctx, "chunks deleted", "matches", res.Results.Matches)
	}
	return nil
}

var resultFields = []graphql.Field{
	{Name: "chunk_id"},
	{Name: "ticker"},
	{Name: "company_name"},
	{Name: "section_type"},
	{Name: "chunk_index"},
	{Name: "content"},
	{Name: "industry"},
	{Name: "sector"},
	{Name: "exchange"},
	{Name: "cik"},
	{Name: "filing_year"},
}

func buildFilter(f map[string]string) *filters.WhereBuilder {
	if len(f) == 0 {
		return nil
	}
	operands := make([]*filters.WhereBuilder, 0, len(f))
	for k, v := range f {
		operands = append(operands, filters.Where().
			WithPath([]string{k}).
			WithOperator(filters.Equal).
			WithValueText(v))
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

func (s *Store) Search(ctx context.Context, query string, vec []float32, alpha float32, limit int, f map[string]string) ([]retrieval.SearchResult, error) {
	hybrid := s.client.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithVector(vec).
		WithAlpha(alpha)

	fields := append([]graphql.Field{}, resultFields...)
	fields = append(fields, graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "score"}}})

	get := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithHybrid(hybrid).
		WithLimit(limit).
		WithFields(fields...)
	if where := buildFilter(f); where != nil {
		get = get.WithWhere(where)
	}

	res, err := get.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}
	return parseResults(res.Data["Get"]), nil
}

// GetChunks returns the stored chunks of ticker in chunk order.
func (s *Store) GetChunks(ctx context.Context, ticker string, limit int) ([]retrieval.SearchResult, error) {
	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithWhere(tickerIs(ticker)).
		WithSort(graphql.Sort{Path: []string{"chunk_index"}, Order: graphql.Asc}).
		WithLimit(limit).
		WithFields(resultFields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}
	return parseResults(res.Data["Get"]), nil
}

func parseResults(get any) []retrieval.SearchResult {
	data, ok := get.(map[string]any)
	if !ok {
		return nil
	}
	rows, ok := data[vector.ClassName].([]any)
	if !ok {
		return nil
	}

	results := make([]retrieval.SearchResult, 0, len(rows))
	for _, row := range rows {
		props, ok := row.(map[string]any)
		if !ok {
			continue
		}
		r := retrieval.SearchResult{Metadata: make(map[string]any)}
		r.Content, _ = props["content"].(string)
		r.ChunkID, _ = props["chunk_id"].(string)
		r.Ticker, _ = props["ticker"].(string)
		r.CompanyName, _ = props["company_name"].(string)
		r.SectionType, _ = props["section_type"].(string)
		if idx, ok := props["chunk_index"].(float64); ok {
			r.ChunkIndex = int(idx)
		}
		for _, k := range []string{"industry", "sector", "exchange", "cik"} {
			if v, ok := props[k].(string); ok && v != "" {
				r.Metadata[k] = v
			}
		}
		if y, ok := props["filing_year"].(float64); ok {
			r.Metadata["filing_year"] = int(y)
		}

		if additional, ok := props["_additional"].(map[string]any); ok {
			switch score := additional["score"].(type) {
			case string:
				if f, err := strconv.ParseFloat(score, 32); err == nil {
					r.Score = float32(f)
				}
			case float64:
				r.Score = float32(score)
			}
		}
		results = append(results, r)
	}
	return results
}

// CountChunks counts indexed chunks, optionally for one ticker.
func (s *Store) CountChunks(ctx context.Context, ticker string) (int, error) {
	agg := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}})
	if ticker != "" {
		agg = agg.WithWhere(tickerIs(ticker))
	}

	res, err := agg.Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	data, ok := res.Data["Aggregate"].(map[string]any)
	if !ok {
		return 0, nil
	}
	rows, ok := data[vector.ClassName].([]any)
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]any)
	meta, _ := row["meta"].(map[string]any)
	count, _ := meta["count"].(float64)
	return int(count), nil
}
