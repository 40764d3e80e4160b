package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"
	"talento-local/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
)

// Result is one page of matching jobs.
type Result struct {
	Jobs      []models.Job `json:"jobs"`
	TotalHits int64        `json:"totalHits"`
	Took      int64        `json:"took"`
}

// JobIndex keeps job documents in one Elasticsearch index.
type JobIndex struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewJobIndex(client *elasticsearch.Client, index string, log logger.Logger) *JobIndex {
	return &JobIndex{client: client, index: index, logger: log}
}

// EnsureIndex creates the index with its mapping if it does not exist.
func (x *JobIndex) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{x.index}}.Do(ctx, x.client)
	if err != nil {
		return errors.NewExternalServiceError("elasticsearch", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := json.Marshal(indexMapping)
	res, err = esapi.IndicesCreateRequest{Index: x.index, Body: bytes.NewReader(body)}.Do(ctx, x.client)
	if err != nil {
		return errors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("create index %s: %s", x.index, res.String()))
	}

	x.logger.Info("search index created", map[string]interface{}{"index": x.index})
	return nil
}

// IndexJob upserts the job document. Jobs that left active stay indexed with
// their status so searches filter them out.
func (x *JobIndex) IndexJob(ctx context.Context, job *models.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return errors.NewParseError(err)
	}

	res, err := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: job.ID.String(),
		Body:       bytes.NewReader(body),
	}.Do(ctx, x.client)
	if err != nil {
		return errors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("index job %s: %s", job.ID, res.String()))
	}
	return nil
}

// DeleteJob removes the job document. A missing document is not an error.
func (x *JobIndex) DeleteJob(ctx context.Context, id uuid.UUID) error {
	res, err := esapi.DeleteRequest{Index: x.index, DocumentID: id.String()}.Do(ctx, x.client)
	if err != nil {
		return errors.NewExternalServiceError("elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return errors.NewExternalServiceError("elasticsearch", fmt.Errorf("delete job %s: %s", id, res.String()))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.Job `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns active jobs matching q.
func (x *JobIndex) Search(ctx context.Context, q Query) (*Result, error) {
	req, err := BuildSearchRequest(x.index, q)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError("job_search", err)
	}

	start := time.Now()
	res, err := req.Do(ctx, x.client)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("elasticsearch", err)
		}
		return nil, errors.NewSearchQueryFailedError("job_search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewSearchQueryFailedError("job_search", fmt.Errorf("search failed: %s", res.String()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, errors.NewSearchQueryFailedError("job_search", err)
	}

	jobs := make([]models.Job, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		jobs = append(jobs, hit.Source)
	}

	return &Result{
		Jobs:      jobs,
		TotalHits: r.Hits.Total.Value,
		Took:      time.Since(start).Milliseconds(),
	}, nil
}
