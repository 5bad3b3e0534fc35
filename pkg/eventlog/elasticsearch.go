package eventlog

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"

	stringtools "github.com/madeneat/wplogify/pkg/stringTools"
)

// maxIndexedValue caps the rendered values copied into search documents.
// Raw keeps the full event.
const maxIndexedValue = 256

// ElasticsearchRepository is the search index for saved events. It is a
// secondary store: documents are keyed by the primary store's event id.
type ElasticsearchRepository struct {
	client *elasticsearch.Client
	config *ElasticsearchConfig
}

// NewElasticsearchRepository connects to the cluster and checks it answers.
func NewElasticsearchRepository(config *ElasticsearchConfig) (*ElasticsearchRepository, error) {
	if config == nil {
		return nil, fmt.Errorf("elasticsearch config cannot be nil")
	}

	if len(config.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch addresses must be specified")
	}

	escfg := elasticsearch.Config{
		Addresses:  config.Addresses,
		Username:   config.Username,
		Password:   config.Password,
		APIKey:     config.APIKey,
		MaxRetries: config.MaxRetries,
	}

	if config.InsecureSkipVerify {
		escfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := elasticsearch.NewClient(escfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	repo := &ElasticsearchRepository{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), repo.timeout())
	defer cancel()
	if err := repo.Health(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}

	return repo, nil
}

func (r *ElasticsearchRepository) timeout() time.Duration {
	if r.config.RequestTimeout > 0 {
		return r.config.RequestTimeout
	}
	return 10 * time.Second
}

// searchDocument flattens an event for querying. Raw carries the full
// event so hits decode losslessly.
type searchDocument struct {
	ID          int64          `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	EventType   string         `json:"event_type"`
	UserID      int64          `json:"user_id"`
	UserName    string         `json:"user_name"`
	UserRole    string         `json:"user_role"`
	UserIP      string         `json:"user_ip,omitempty"`
	SubjectKind string         `json:"subject_kind,omitempty"`
	SubjectKey  string         `json:"subject_key,omitempty"`
	SubjectName string         `json:"subject_name,omitempty"`
	Changes     []searchChange `json:"changes,omitempty"`
	Metas       []searchChange `json:"metas,omitempty"`
	Raw         string         `json:"raw"`
}

type searchChange struct {
	Key string `json:"key"`
	Old string `json:"old,omitempty"`
	New string `json:"new,omitempty"`
}

func newSearchDocument(e *Event) (searchDocument, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return searchDocument{}, fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	doc := searchDocument{
		ID:         e.id,
		OccurredAt: e.occurredAt.UTC(),
		EventType:  e.eventType,
		UserID:     e.actor.UserID,
		UserName:   e.actor.DisplayName,
		UserRole:   e.actor.Role,
		UserIP:     e.actor.IP,
		Raw:        string(raw),
	}
	if e.subject != nil {
		doc.SubjectKind = string(e.subject.kind)
		doc.SubjectKey = e.subject.key.String()
		doc.SubjectName = e.subject.String()
	}
	for _, p := range e.properties.All() {
		c := searchChange{Key: p.Key, Old: stringtools.Ellipsis(p.OldValue.String(), maxIndexedValue)}
		if p.NewValue != nil {
			c.New = stringtools.Ellipsis(p.NewValue.String(), maxIndexedValue)
		}
		doc.Changes = append(doc.Changes, c)
	}
	for _, m := range e.metas.All() {
		doc.Metas = append(doc.Metas, searchChange{Key: m.Key, New: stringtools.Ellipsis(m.Value.String(), maxIndexedValue)})
	}
	return doc, nil
}

// Index writes one saved event.
func (r *ElasticsearchRepository) Index(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrNilEvent
	}
	id, ok := event.ID()
	if !ok {
		return fmt.Errorf("eventlog: only saved events can be indexed")
	}

	doc, err := newSearchDocument(event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      r.config.GetIndexName(event.occurredAt),
		DocumentID: strconv.FormatInt(id, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	return responseError(res)
}

// IndexBatch writes saved events through the bulk API.
func (r *ElasticsearchRepository) IndexBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, event := range events {
		id, ok := event.ID()
		if !ok {
			return fmt.Errorf("eventlog: only saved events can be indexed")
		}

		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": r.config.GetIndexName(event.occurredAt),
				"_id":    strconv.FormatInt(id, 10),
			},
		}
		doc, err := newSearchDocument(event)
		if err != nil {
			return err
		}

		metaBytes, _ := json.Marshal(meta)
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		buf.Write(metaBytes)
		buf.WriteString("\n")
		buf.Write(docBytes)
		buf.WriteString("\n")
	}

	req := esapi.BulkRequest{Body: &buf}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return fmt.Errorf("failed to execute bulk request: %w", err)
	}
	defer res.Body.Close()

	if err := responseError(res); err != nil {
		return err
	}

	var bulkRes struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkRes); err != nil {
		return fmt.Errorf("failed to parse bulk response: %w", err)
	}
	if bulkRes.Errors {
		return fmt.Errorf("bulk request had errors, check Elasticsearch logs for details")
	}

	return nil
}

// Search runs q against the index. text, when set, is matched against
// event types, names and changed values.
func (r *ElasticsearchRepository) Search(ctx context.Context, q *EventQuery, text string) (*EventQueryResult, error) {
	if q == nil {
		q = &EventQuery{}
	}

	searchBody, err := json.Marshal(r.buildQuery(q, text))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	limit := q.limit()
	offset := q.offset()
	trackTotal := true
	req := esapi.SearchRequest{
		Index:          []string{r.config.SearchPattern()},
		Body:           bytes.NewReader(searchBody),
		Size:           &limit,
		From:           &offset,
		TrackTotalHits: trackTotal,
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if err := responseError(res); err != nil {
		return nil, err
	}

	var esRes struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source searchDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esRes); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	result := &EventQueryResult{
		Total:  esRes.Hits.Total.Value,
		Limit:  limit,
		Offset: offset,
		Events: make([]*Event, 0, len(esRes.Hits.Hits)),
	}
	for _, hit := range esRes.Hits.Hits {
		event := &Event{}
		if err := json.Unmarshal([]byte(hit.Source.Raw), event); err != nil {
			return nil, fmt.Errorf("failed to decode indexed event %d: %w", hit.Source.ID, err)
		}
		result.Events = append(result.Events, event)
	}
	return result, nil
}

// buildQuery constructs an Elasticsearch query from EventQuery parameters.
func (r *ElasticsearchRepository) buildQuery(q *EventQuery, text string) map[string]interface{} {
	must := []map[string]interface{}{}

	if len(q.EventTypes) > 0 {
		must = append(must, map[string]interface{}{
			"terms": map[string]interface{}{"event_type.keyword": q.EventTypes},
		})
	}
	if q.ActorID != nil {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"user_id": *q.ActorID},
		})
	}
	if q.SubjectKind != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"subject_kind.keyword": string(q.SubjectKind)},
		})
	}
	if q.SubjectKey != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"subject_key.keyword": q.SubjectKey},
		})
	}
	if !q.StartDate.IsZero() || !q.EndDate.IsZero() {
		rangeQuery := map[string]interface{}{}
		if !q.StartDate.IsZero() {
			rangeQuery["gte"] = q.StartDate.UTC()
		}
		if !q.EndDate.IsZero() {
			rangeQuery["lte"] = q.EndDate.UTC()
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"occurred_at": rangeQuery},
		})
	}
	if text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"event_type", "user_name", "subject_name", "changes.old", "changes.new", "metas.new"},
			},
		})
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(must) > 0 {
		query = map[string]interface{}{"bool": map[string]interface{}{"must": must}}
	}

	return map[string]interface{}{
		"query": query,
		"sort": []map[string]interface{}{
			{"occurred_at": map[string]interface{}{"order": "desc"}},
			{"id": map[string]interface{}{"order": "desc"}},
		},
	}
}

// DeleteOlderThan removes indexed events that occurred before date.
func (r *ElasticsearchRepository) DeleteOlderThan(ctx context.Context, date time.Time) (int64, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"occurred_at": map[string]interface{}{"lt": date.UTC()},
			},
		},
	}
	queryBytes, _ := json.Marshal(query)

	req := esapi.DeleteByQueryRequest{
		Index: []string{r.config.SearchPattern()},
		Body:  bytes.NewReader(queryBytes),
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return 0, fmt.Errorf("failed to execute delete by query: %w", err)
	}
	defer res.Body.Close()

	if err := responseError(res); err != nil {
		return 0, err
	}

	var delRes struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&delRes); err != nil {
		return 0, fmt.Errorf("failed to parse delete response: %w", err)
	}
	return delRes.Deleted, nil
}

// Health checks if the cluster is reachable.
func (r *ElasticsearchRepository) Health(ctx context.Context) error {
	res, err := r.client.Info(r.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch health check error, status code: %d", res.StatusCode)
	}
	return nil
}

func responseError(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	return fmt.Errorf("elasticsearch returned error: %s", string(body))
}

// IndexingRepository saves through a primary Repository and mirrors saved
// events into Elasticsearch. Index failures are logged, never returned.
type IndexingRepository struct {
	Repository
	index  *ElasticsearchRepository
	logger *slog.Logger
}

func NewIndexingRepository(primary Repository, index *ElasticsearchRepository, logger *slog.Logger) *IndexingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexingRepository{Repository: primary, index: index, logger: logger}
}

func (r *IndexingRepository) Save(ctx context.Context, event *Event) (*Event, error) {
	saved, err := r.Repository.Save(ctx, event)
	if err != nil {
		return nil, err
	}
	r.mirror(ctx, saved)
	return saved, nil
}

func (r *IndexingRepository) UpdateMetas(ctx context.Context, id int64, metas *MetaSet) (*Event, error) {
	updated, err := r.Repository.UpdateMetas(ctx, id, metas)
	if err != nil {
		return nil, err
	}
	r.mirror(ctx, updated)
	return updated, nil
}

func (r *IndexingRepository) DeleteOlderThan(ctx context.Context, date time.Time) (int64, error) {
	n, err := r.Repository.DeleteOlderThan(ctx, date)
	if err != nil {
		return n, err
	}
	if _, err := r.index.DeleteOlderThan(ctx, date); err != nil {
		r.logger.WarnContext(ctx, "failed to prune search index", slog.Any("error", err))
	}
	return n, nil
}

// Search queries the index.
func (r *IndexingRepository) Search(ctx context.Context, q *EventQuery, text string) (*EventQueryResult, error) {
	return r.index.Search(ctx, q, text)
}

// Reindex copies every stored event matching q into the index in pages of
// batchSize and reports how many were indexed.
func (r *IndexingRepository) Reindex(ctx context.Context, q EventQuery, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = defaultQueryLimit
	}
	q.Limit = batchSize
	q.Offset = 0

	var indexed int64
	for {
		page, err := r.Repository.Query(ctx, &q)
		if err != nil {
			return indexed, err
		}
		if len(page.Events) == 0 {
			return indexed, nil
		}
		if err := r.index.IndexBatch(ctx, page.Events); err != nil {
			return indexed, err
		}
		indexed += int64(len(page.Events))
		q.Offset += len(page.Events)
	}
}

func (r *IndexingRepository) mirror(ctx context.Context, event *Event) {
	if err := r.index.Index(ctx, event); err != nil {
		id, _ := event.ID()
		r.logger.WarnContext(ctx, "failed to index event",
			slog.Int64("event_id", id),
			slog.Any("error", err),
		)
	}
}
