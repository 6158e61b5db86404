package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/config"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/ops"
)

// Computer builds the compute step for a URL. *pipeline.Pipeline implements it.
type Computer interface {
	Compute(url string) cache.ComputeFunc
}

// Handlers serves the transcript_* tools.
type Handlers struct {
	db   *sql.DB
	svc  *cache.Service
	cfg  *config.Config
	pipe Computer
}

// NewHandlers wires the tools to a database, cache service and pipeline.
func NewHandlers(db *sql.DB, svc *cache.Service, cfg *config.Config, pipe Computer) *Handlers {
	return &Handlers{db: db, svc: svc, cfg: cfg, pipe: pipe}
}

// AddressRequest identifies a transcript by url or key.
type AddressRequest struct {
	URL string `json:"url,omitempty"`
	Key string `json:"key,omitempty"`
}

// LookupRequest adds the optional analytics switch to an address.
type LookupRequest struct {
	AddressRequest
	Analytics bool `json:"analytics,omitempty"`
}

// ProcessRequest represents the arguments for process.
type ProcessRequest struct {
	URL string `json:"url"`
}

// ListRequest pages through stored transcripts.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// RenderRequest represents the arguments for render.
type RenderRequest struct {
	AddressRequest
	Format string `json:"format,omitempty"`
}

// ExportRequest names the export destination.
type ExportRequest struct {
	Path     string `json:"path,omitempty"`
	Compress bool   `json:"compress,omitempty"`
}

// ImportRequest names the file to load and the conflict mode.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// HandleLookup handles the lookup tool call.
func (h *Handlers) HandleLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LookupRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Lookup(ctx, h.svc, ops.LookupInput{URL: input.URL, Key: input.Key, Analytics: input.Analytics})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleProcess handles the process tool call.
func (h *Handlers) HandleProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProcessRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var compute cache.ComputeFunc
	if h.pipe != nil {
		compute = h.pipe.Compute(input.URL)
	}

	result, err := ops.Process(ctx, h.svc, ops.ProcessInput{URL: input.URL, Compute: compute})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList serves transcript_list.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleForget handles the forget tool call.
func (h *Handlers) HandleForget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddressRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Forget(ctx, h.db, ops.ForgetInput{URL: input.URL, Key: input.Key})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleStats handles the stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Stats(ctx, h.db, h.svc)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleRender handles the render tool call. The rendered body is returned
// as plain text content.
func (h *Handlers) HandleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RenderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	format, err := ops.ParseFormat(input.Format)
	if err != nil {
		return errorResult(err), nil
	}
	found, err := ops.Lookup(ctx, h.svc, ops.LookupInput{URL: input.URL, Key: input.Key})
	if err != nil {
		return errorResult(err), nil
	}
	body, err := ops.RenderTranscript(found.Record, format)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// HandleExport serves transcript_export.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{Path: input.Path, Compress: input.Compress})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport serves transcript_import.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{Path: input.Path, Mode: ops.ImportMode(input.Mode)})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// errorResult renders err as an isError tool result carrying a JSON error object.
// INTERNAL errors never carry details, which may hold paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var e *errors.Error
	if stderrors.As(err, &e) {
		msg := e.Message
		// Keep wrapper context such as "lookup: " in front of the message.
		if prefix := strings.TrimSuffix(err.Error(), e.Error()); prefix != err.Error() {
			msg = prefix + msg
		}
		errorObj := map[string]any{
			"code":    e.Code,
			"message": msg,
			"status":  e.Status,
		}
		if e.Code != errors.ErrInternal && e.Details != nil {
			errorObj["details"] = e.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult renders data as the JSON body of a tool result.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
