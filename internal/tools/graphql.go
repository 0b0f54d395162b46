package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/machinebox/graphql"
)

// GraphQLTool executes a fixed GraphQL query against a data-source endpoint,
// taking its variables from the structured tool input.
type GraphQLTool struct {
	name        string
	description string
	query       string
	schema      map[string]any
	client      *graphql.Client
	apiKey      string
}

// GraphQLConfig configures the shared flows endpoint for GraphQL tools.
type GraphQLConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

func newGraphQLClient(cfg GraphQLConfig) *graphql.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return graphql.NewClient(cfg.Endpoint,
		graphql.WithHTTPClient(&http.Client{Timeout: timeout}))
}

// NewGraphQLTool creates a tool backed by a single GraphQL query.
func NewGraphQLTool(cfg GraphQLConfig, name, description, query string, schema map[string]any) *GraphQLTool {
	return &GraphQLTool{
		name:        name,
		description: description,
		query:       query,
		schema:      schema,
		client:      newGraphQLClient(cfg),
		apiKey:      cfg.APIKey,
	}
}

// Name returns the tool name.
func (t *GraphQLTool) Name() string { return t.name }

// Description returns the tool description shown to the model.
func (t *GraphQLTool) Description() string { return t.description }

// InputSchema returns the JSON schema of the tool input.
func (t *GraphQLTool) InputSchema() map[string]any { return t.schema }

// Call runs the query with the input fields as variables and returns the
// response data as JSON.
func (t *GraphQLTool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var vars map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &vars); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
	}

	req := graphql.NewRequest(t.query)
	for k, v := range vars {
		req.Var(k, v)
	}
	if t.apiKey != "" {
		req.Header.Set("Authorization", "apikey "+t.apiKey)
	}

	var resp map[string]any
	if err := t.client.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	return out, nil
}

// NewYouTubeTranscript returns the youtube_transcript tool.
func NewYouTubeTranscript(cfg GraphQLConfig) *GraphQLTool {
	return NewGraphQLTool(cfg,
		"youtube_transcript",
		"Fetch the transcript of a YouTube video by URL.",
		`query transcript($videoUrl: String!, $langCode: String!) {
			transcript(videoUrl: $videoUrl, langCode: $langCode) {
				title
				captions { text start dur }
			}
		}`,
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"videoUrl": map[string]any{
					"type":        "string",
					"description": "Full YouTube video URL",
				},
				"langCode": map[string]any{
					"type":        "string",
					"description": "Caption language code, e.g. \"en\"",
					"default":     "en",
				},
			},
			"required": []string{"videoUrl", "langCode"},
		})
}

// NewGoogleBooks returns the google_books search tool.
func NewGoogleBooks(cfg GraphQLConfig) *GraphQLTool {
	return NewGraphQLTool(cfg,
		"google_books",
		"Search Google Books by free-text query.",
		`query books($q: String!, $maxResults: Int) {
			books(q: $q, maxResults: $maxResults) {
				volumeId
				title
				authors
			}
		}`,
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"q": map[string]any{
					"type":        "string",
					"description": "Search terms",
				},
				"maxResults": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results",
					"default":     5,
				},
			},
			"required": []string{"q"},
		})
}

// NewAppointmentData returns the appointment_data lookup tool. With an id
// it fetches one appointment; without, all of them.
func NewAppointmentData(cfg GraphQLConfig) *GraphQLTool {
	return NewGraphQLTool(cfg,
		"appointment_data",
		"Fetch appointment details, one by id or all when id is omitted.",
		`query appointments($id: ID) {
			appointmentQuery(id: $id) {
				id customerName email phone status
				selectedDate selectedTime message isForSelf
				createdAt updatedAt
				service { id title description }
				user { id name email phone }
			}
		}`,
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "Appointment id; omit to retrieve all appointments",
				},
			},
		})
}

// DefaultCatalog returns the deployment's standard tool set.
func DefaultCatalog(cfg GraphQLConfig) *Catalog {
	return NewCatalog(
		NewYouTubeTranscript(cfg),
		NewGoogleBooks(cfg),
		NewAppointmentData(cfg),
	)
}
