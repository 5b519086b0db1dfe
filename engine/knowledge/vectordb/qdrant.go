package vectordb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"

	"github.com/compozy/vachanamrut/engine/core"
	"github.com/compozy/vachanamrut/engine/knowledge"
	"github.com/compozy/vachanamrut/pkg/logger"
)

type qdrantStore struct {
	client     *resty.Client
	collection string
	dimension  int
	metric     string
	maxRetries uint64
	backoff    time.Duration
}

// qdrantSearchResult captures the fields returned by Qdrant search responses.
type qdrantSearchResult struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

const (
	qdrantDefaultTimeout = 10 * time.Second
	qdrantDefaultTopK    = 5
	qdrantRetryBase      = 100 * time.Millisecond
	payloadTextKey       = "text"
	payloadRecordIDKey   = "record_id"
)

func newQdrantStore(ctx context.Context, cfg *Config) (*qdrantStore, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, errors.New("qdrant: url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = qdrantDefaultTimeout
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	store := &qdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		metric:     chooseMetric(cfg.Metric),
		maxRetries: cfg.MaxRetries,
		backoff:    qdrantRetryBase,
	}
	if cfg.EnsureCollection {
		if err := store.ensureCollection(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func chooseMetric(metric string) string {
	switch strings.ToLower(strings.TrimSpace(metric)) {
	case "euclid", "euclidean", "l2":
		return "Euclid"
	case "dot", "dotproduct":
		return "Dot"
	default:
		return "Cosine"
	}
}

func (q *qdrantStore) collectionPath(suffix string) string {
	return "/collections/" + q.collection + suffix
}

// Ping checks that the collection exists and the server answers.
func (q *qdrantStore) Ping(ctx context.Context) error {
	return q.do(ctx, "ping", http.MethodGet, q.collectionPath(""), nil, nil)
}

func (q *qdrantStore) ensureCollection(ctx context.Context) error {
	err := q.Ping(ctx)
	if err == nil {
		return nil
	}
	var missing *OperationError
	if !errors.As(err, &missing) || missing.StatusCode != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.dimension,
			"distance": q.metric,
		},
	}
	logger.FromContext(ctx).Info("Creating vector collection", "collection", q.collection, "dimension", q.dimension)
	return q.do(ctx, "create_collection", http.MethodPut, q.collectionPath(""), body, nil)
}

// buildQdrantFilter translates a structured filter into Qdrant must clauses.
func buildQdrantFilter(filter *knowledge.Filter) (map[string]any, error) {
	clauses := filter.Clauses()
	if len(clauses) == 0 {
		return nil, nil
	}
	must := make([]any, 0, len(clauses))
	for _, c := range clauses {
		if strings.TrimSpace(c.Field) == "" {
			return nil, opErr("filter_translate", OperationErrorValidation, "filter field is empty", nil)
		}
		value, ok := qdrantMatchValue(c.Value)
		if !ok {
			return nil, opErr(
				"filter_translate",
				OperationErrorUnsupported,
				fmt.Sprintf("field %q has unsupported value %v (%T)", c.Field, c.Value, c.Value),
				nil,
			)
		}
		must = append(must, map[string]any{
			"key":   c.Field,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}, nil
}

// qdrantMatchValue accepts keyword, integer and boolean values.
func qdrantMatchValue(v any) (any, bool) {
	switch n := v.(type) {
	case string:
		return n, strings.TrimSpace(n) != ""
	case bool:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, false
		}
		return int64(n), true
	default:
		return nil, false
	}
}

// mapQdrantResults converts Qdrant search results into the internal Match slice.
func mapQdrantResults(results []qdrantSearchResult, minScore float64) []Match {
	matches := make([]Match, 0, len(results))
	for _, res := range results {
		if res.Score < minScore {
			continue
		}
		payload := core.CloneMap(res.Payload)
		if payload == nil {
			payload = make(map[string]any)
		}
		id := fmt.Sprint(res.ID)
		if raw, ok := payload[payloadRecordIDKey].(string); ok && raw != "" {
			id = raw
			delete(payload, payloadRecordIDKey)
		}
		text := ""
		if raw, ok := payload[payloadTextKey].(string); ok {
			text = raw
			delete(payload, payloadTextKey)
		}
		matches = append(matches, Match{
			ID:       id,
			Score:    res.Score,
			Text:     text,
			Metadata: payload,
		})
	}
	return matches
}

// pointID maps record IDs onto the identifiers Qdrant accepts: unsigned
// integers and UUIDs. Other IDs get a stable name-based UUID.
func pointID(id string) any {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return n
	}
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}

func (q *qdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]any, 0, len(records))
	for i := range records {
		rec := records[i]
		if len(rec.Embedding) != q.dimension {
			e := dimensionErr("upsert", len(rec.Embedding), q.dimension)
			e.Message = fmt.Sprintf("record %q %s", rec.ID, e.Message)
			return e
		}
		payload := core.CloneMap(rec.Metadata)
		if payload == nil {
			payload = make(map[string]any)
		}
		payload[payloadTextKey] = rec.Text
		payload[payloadRecordIDKey] = rec.ID
		points = append(points, map[string]any{
			"id":      pointID(rec.ID),
			"vector":  rec.Embedding,
			"payload": payload,
		})
	}
	body := map[string]any{"points": points}
	return q.do(ctx, "upsert", http.MethodPut, q.collectionPath("/points?wait=true"), body, nil)
}

func (q *qdrantStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if len(query) != q.dimension {
		return nil, dimensionErr("search", len(query), q.dimension)
	}
	limit := opts.TopK
	if limit <= 0 {
		limit = qdrantDefaultTopK
	}
	request := map[string]any{
		"vector":       query,
		"limit":        limit,
		"with_payload": true,
	}
	filter, err := buildQdrantFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	if filter != nil {
		request["filter"] = filter
	}
	var response struct {
		Result []qdrantSearchResult `json:"result"`
	}
	start := time.Now()
	backoff := retry.WithMaxRetries(q.maxRetries, retry.NewExponential(q.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := q.do(ctx, "search", http.MethodPost, q.collectionPath("/points/search"), request, &response)
		if oe, ok := IsOperationError(err); ok && oe.Retryable() {
			logger.FromContext(ctx).Debug("Retrying vector search", "error", core.RedactError(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		recordVectorError(ctx, "search", errorLabel(err))
		return nil, err
	}
	matches := mapQdrantResults(response.Result, opts.MinScore)
	recordVectorSearch(ctx, string(ProviderQdrant), limit, time.Since(start), len(matches))
	return matches, nil
}

func (q *qdrantStore) Close(context.Context) error {
	return nil
}

func (q *qdrantStore) do(ctx context.Context, op, method, path string, body any, out any) error {
	req := q.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return opErr(op, OperationErrorTransport, "request failed", err)
	}
	if resp.IsError() {
		return remoteErr(op, resp.StatusCode(), remoteMessage(resp.Body()))
	}
	return nil
}

// remoteMessage extracts the error text from a Qdrant error document.
func remoteMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "status.error"); msg.Exists() {
		return msg.String()
	}
	if msg := gjson.GetBytes(body, "status"); msg.Type == gjson.String {
		return msg.String()
	}
	return "request rejected"
}

func errorLabel(err error) string {
	if oe, ok := IsOperationError(err); ok {
		return string(oe.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "context"
	}
	return labelUnknownValue
}
