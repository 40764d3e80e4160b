package api

import "talento-local/internal/common/validation"

var submitApplicationSchema = validation.MustCompile("submit_application", map[string]interface{}{
	"type":     "object",
	"required": []string{"jobId"},
	"properties": map[string]interface{}{
		"jobId":          map[string]interface{}{"type": "string", "format": "uuid"},
		"message":        map[string]interface{}{"type": "string", "maxLength": 2000},
		"proposedBudget": map[string]interface{}{"type": "number", "minimum": 0},
	},
	"additionalProperties": false,
})

var createJobSchema = validation.MustCompile("create_job", map[string]interface{}{
	"type":     "object",
	"required": []string{"title"},
	"properties": map[string]interface{}{
		"title":       map[string]interface{}{"type": "string", "minLength": 3, "maxLength": 200},
		"description": map[string]interface{}{"type": "string", "maxLength": 5000},
		"category":    map[string]interface{}{"type": "string", "maxLength": 100},
		"budget": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"amount": map[string]interface{}{"type": "number", "minimum": 0},
				"type":   map[string]interface{}{"type": "string", "enum": []string{"fixed", "hourly", "negotiable"}},
			},
			"additionalProperties": false,
		},
		"location": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"address":    map[string]interface{}{"type": "string", "maxLength": 300},
				"city":       map[string]interface{}{"type": "string", "maxLength": 100},
				"department": map[string]interface{}{"type": "string", "maxLength": 100},
				"latitude":   map[string]interface{}{"type": "number", "minimum": -90, "maximum": 90},
				"longitude":  map[string]interface{}{"type": "number", "minimum": -180, "maximum": 180},
			},
			"additionalProperties": false,
		},
		"urgency":    map[string]interface{}{"type": "string", "enum": []string{"low", "normal", "high", "urgent"}},
		"neededDate": map[string]interface{}{"type": "string", "format": "date-time"},
		"status":     map[string]interface{}{"type": "string", "enum": []string{"draft", "active"}},
	},
	"additionalProperties": false,
})

var updateJobStatusSchema = validation.MustCompile("update_job_status", map[string]interface{}{
	"type":     "object",
	"required": []string{"status"},
	"properties": map[string]interface{}{
		"status": map[string]interface{}{
			"type": "string",
			"enum": []string{"draft", "active", "in_progress", "completed", "cancelled"},
		},
	},
	"additionalProperties": false,
})
