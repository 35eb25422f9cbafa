package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// New builds the MCP server exposing the memory store as agent tools over
// a stdio transport. Tool payloads never include stored embeddings.
func New(uc *memory.UseCase, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "engram",
		Version: version,
	}, nil)

	h := &handler{uc: uc}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a short memory record (subject + content) with optional tags, importance and TTL in days",
	}, h.remember)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recall",
		Description: "Retrieve stored memories ranked by text match, semantic similarity, recency and importance. Both query and limit are optional.",
		InputSchema: recallSchema(),
	}, h.recall)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_memory",
		Description: "Fetch a single memory record by its ID",
	}, h.get)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_memory",
		Description: "Partially update a memory record; only supplied fields change",
	}, h.update)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "forget",
		Description: "Delete a memory record by its ID",
	}, h.forget)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_memories",
		Description: "List stored memories, most recently updated first",
	}, h.list)

	return server
}

type handler struct {
	uc *memory.UseCase
}

type rememberParams struct {
	Subject    string   `json:"subject" jsonschema:"Short subject line of the memory (max 160 chars)"`
	Content    string   `json:"content" jsonschema:"Body of the memory"`
	Tags       []string `json:"tags,omitempty" jsonschema:"Optional tags (max 32)"`
	Importance *float64 `json:"importance,omitempty" jsonschema:"Ranking weight between 0 and 1, default 0.5"`
	TTLDays    *float64 `json:"ttl_days,omitempty" jsonschema:"Retention in days; the memory expires after this window"`
}

func (h *handler) remember(ctx context.Context, req *mcp.CallToolRequest, params *rememberParams) (*mcp.CallToolResult, any, error) {
	stored, err := h.uc.Insert(ctx, memory.InsertInput{
		Subject:    params.Subject,
		Content:    params.Content,
		Tags:       params.Tags,
		Importance: params.Importance,
		TTLDays:    params.TTLDays,
	})
	if err != nil {
		return nil, nil, err
	}

	return textResult(stored)
}

type recallParams struct {
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (h *handler) recall(ctx context.Context, req *mcp.CallToolRequest, params *recallParams) (*mcp.CallToolResult, any, error) {
	results, err := h.uc.Search(ctx, memory.SearchInput{
		Query: params.Query,
		Limit: params.Limit,
	})
	if err != nil {
		return nil, nil, err
	}

	return textResult(results)
}

type getParams struct {
	ID string `json:"id" jsonschema:"ID of the memory record"`
}

func (h *handler) get(ctx context.Context, req *mcp.CallToolRequest, params *getParams) (*mcp.CallToolResult, any, error) {
	found, err := h.uc.Get(ctx, model.MemoryID(params.ID))
	if err != nil {
		return nil, nil, err
	}
	if found == nil {
		return notFoundResult(params.ID)
	}

	return textResult(found)
}

type updateParams struct {
	ID         string    `json:"id" jsonschema:"ID of the memory record"`
	Subject    *string   `json:"subject,omitempty" jsonschema:"New subject (max 160 chars)"`
	Content    *string   `json:"content,omitempty" jsonschema:"New content"`
	Tags       *[]string `json:"tags,omitempty" jsonschema:"Replacement tag list (max 32)"`
	Importance *float64  `json:"importance,omitempty" jsonschema:"New ranking weight between 0 and 1"`
	TTLDays    *float64  `json:"ttl_days,omitempty" jsonschema:"New retention window in days, relative to now"`
	ExpiresAt  *string   `json:"expires_at,omitempty" jsonschema:"Absolute expiry timestamp (RFC3339); overrides ttl_days"`
}

func (h *handler) update(ctx context.Context, req *mcp.CallToolRequest, params *updateParams) (*mcp.CallToolResult, any, error) {
	input := memory.UpdateInput{
		Subject:    params.Subject,
		Content:    params.Content,
		Tags:       params.Tags,
		Importance: params.Importance,
		TTLDays:    params.TTLDays,
	}
	if params.ExpiresAt != nil {
		parsed, err := time.Parse(time.RFC3339, *params.ExpiresAt)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "invalid expires_at timestamp",
				goerr.V("value", *params.ExpiresAt))
		}
		input.ExpiresAt = &parsed
	}

	updated, err := h.uc.Update(ctx, model.MemoryID(params.ID), input)
	if err != nil {
		return nil, nil, err
	}
	if updated == nil {
		return notFoundResult(params.ID)
	}

	return textResult(updated)
}

type forgetParams struct {
	ID string `json:"id" jsonschema:"ID of the memory record"`
}

func (h *handler) forget(ctx context.Context, req *mcp.CallToolRequest, params *forgetParams) (*mcp.CallToolResult, any, error) {
	if err := h.uc.Delete(ctx, model.MemoryID(params.ID)); err != nil {
		return nil, nil, err
	}

	return textResult(map[string]string{"deleted": params.ID})
}

type listParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of records to return"`
}

func (h *handler) list(ctx context.Context, req *mcp.CallToolRequest, params *listParams) (*mcp.CallToolResult, any, error) {
	results, err := h.uc.List(ctx, params.Limit)
	if err != nil {
		return nil, nil, err
	}

	return textResult(results)
}

// recallSchema declares the recall input explicitly: the inferred schema
// cannot express the limit bounds.
func recallSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: "Free-text query; leave empty to browse recent memories",
			},
			"limit": {
				Type:        "integer",
				Description: "Maximum number of results",
				Minimum:     ptr(1.0),
				Maximum:     ptr(float64(model.MaxSearchLimit)),
			},
		},
	}
}

func ptr[T any](v T) *T {
	return &v
}

func textResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to encode tool result")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil, nil
}

func notFoundResult(id string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "no such memory: " + id},
		},
	}, nil, nil
}
