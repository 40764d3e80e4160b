package search

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ErrMissingIndex = errors.New("index name is required")

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Query filters active jobs. Zero values are ignored.
type Query struct {
	Text       string   `json:"text,omitempty"`
	Category   string   `json:"category,omitempty"`
	City       string   `json:"city,omitempty"`
	Department string   `json:"department,omitempty"`
	MinBudget  *float64 `json:"minBudget,omitempty"`
	MaxBudget  *float64 `json:"maxBudget,omitempty"`
	Limit      int      `json:"limit,omitempty"`
	Offset     int      `json:"offset,omitempty"`
}

// normalize clamps pagination into range.
func (q Query) normalize() Query {
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// BuildSearchRequest builds the search request for q against index.
func BuildSearchRequest(index string, q Query) (*esapi.SearchRequest, error) {
	if index == "" {
		return nil, ErrMissingIndex
	}
	q = q.normalize()

	body, err := json.Marshal(buildJobSearchQuery(q))
	if err != nil {
		return nil, err
	}

	from, size := q.Offset, q.Limit
	return &esapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}, nil
}

func buildJobSearchQuery(q Query) map[string]interface{} {
	mustClauses := []interface{}{}
	filterClauses := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"status": "active"},
		},
	}

	if q.Text != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"title^3", "description^2", "category"},
				"type":   "best_fields",
			},
		})
	}

	for field, value := range map[string]string{
		"category":            q.Category,
		"location.city":       q.City,
		"location.department": q.Department,
	} {
		if value != "" {
			filterClauses = append(filterClauses, map[string]interface{}{
				"term": map[string]interface{}{field: value},
			})
		}
	}

	budget := map[string]interface{}{}
	if q.MinBudget != nil {
		budget["gte"] = *q.MinBudget
	}
	if q.MaxBudget != nil {
		budget["lte"] = *q.MaxBudget
	}
	if len(budget) > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"range": map[string]interface{}{"budget.amount": budget},
		})
	}

	boolQuery := map[string]interface{}{"filter": filterClauses}
	if len(mustClauses) > 0 {
		boolQuery["must"] = mustClauses
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
	}
	if q.Text == "" {
		query["sort"] = []interface{}{
			map[string]interface{}{"publishedAt": map[string]interface{}{"order": "desc"}},
		}
	}
	return query
}

// indexMapping keeps the filter fields as keywords so term queries match exactly.
var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":          map[string]interface{}{"type": "keyword"},
			"clientId":    map[string]interface{}{"type": "keyword"},
			"title":       map[string]interface{}{"type": "text"},
			"description": map[string]interface{}{"type": "text"},
			"category":    map[string]interface{}{"type": "keyword"},
			"status":      map[string]interface{}{"type": "keyword"},
			"urgency":     map[string]interface{}{"type": "keyword"},
			"budget": map[string]interface{}{
				"properties": map[string]interface{}{
					"amount": map[string]interface{}{"type": "double"},
					"type":   map[string]interface{}{"type": "keyword"},
				},
			},
			"location": map[string]interface{}{
				"properties": map[string]interface{}{
					"address":    map[string]interface{}{"type": "text"},
					"city":       map[string]interface{}{"type": "keyword"},
					"department": map[string]interface{}{"type": "keyword"},
				},
			},
			"publishedAt": map[string]interface{}{"type": "date"},
			"createdAt":   map[string]interface{}{"type": "date"},
		},
	},
}
