// CLAUDE:SUMMARY Registers zap MCP tools: toggle, mode query, event dispatch, synthesize, match listing.
package zap

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/darkzap/kit"
	"github.com/hazyhaar/darkzap/selector"
)

// RegisterMCP registers zap tools on an MCP server.
func (h *Host) RegisterMCP(srv *mcp.Server) {
	h.registerPagesTool(srv)
	h.registerToggleTool(srv)
	h.registerModeTool(srv)
	h.registerDispatchTool(srv)
	h.registerSynthesizeTool(srv)
	h.registerMatchTool(srv)
}

func (h *Host) toolMiddleware(name string) []kit.Middleware {
	return []kit.Middleware{kit.Logging(h.logger, name), kit.Recovery(h.logger)}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var pageProp = map[string]any{"type": "string", "description": "Page id"}

func decodeInto[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var v T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &v); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &v}, nil
}

// --- pages ---

type pagesRequest struct{}

func (h *Host) registerPagesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zap_pages",
		Description: "List open pages with their zap mode status.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		out := []Status{}
		for _, id := range h.Pages() {
			st, err := h.Status(id)
			if errors.Is(err, ErrUnknownPage) {
				continue
			}
			out = append(out, st)
		}
		return out, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[pagesRequest], h.toolMiddleware(tool.Name)...)
}

// --- toggle ---

type toggleRequest struct {
	Page   string `json:"page"`
	Active *bool  `json:"active,omitempty"`
}

func (h *Host) registerToggleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zap_toggle",
		Description: "Toggle zap mode on a page, or force it with active=true/false.",
		InputSchema: inputSchema(map[string]any{
			"page":   pageProp,
			"active": map[string]any{"type": "boolean", "description": "Force the mode instead of flipping it"},
		}, []string{"page"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		rr := req.(*toggleRequest)
		if rr.Active != nil {
			if err := h.SetActive(rr.Page, *rr.Active); err != nil {
				return nil, err
			}
		} else if _, err := h.Toggle(rr.Page); err != nil {
			return nil, err
		}
		return h.Status(rr.Page)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[toggleRequest], h.toolMiddleware(tool.Name)...)
}

// --- mode ---

type modeRequest struct {
	Page string `json:"page"`
}

type modeResponse struct {
	Page   string `json:"page"`
	Active bool   `json:"active"`
}

func (h *Host) registerModeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zap_mode",
		Description: "Report whether zap mode is active on a page.",
		InputSchema: inputSchema(map[string]any{"page": pageProp}, []string{"page"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		rr := req.(*modeRequest)
		active, err := h.Mode(rr.Page)
		if err != nil {
			return nil, err
		}
		return modeResponse{Page: rr.Page, Active: active}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[modeRequest], h.toolMiddleware(tool.Name)...)
}

// --- dispatch ---

type dispatchRequest struct {
	Page   string  `json:"page"`
	Events []Event `json:"events"`
}

func (h *Host) registerDispatchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "zap_dispatch",
		Description: "Deliver user events to a page in order: pointermove/click (x,y), keydown (key), " +
			"scroll/drag (dx,dy), input (text), specificity (level), submit, close. Returns the final status.",
		InputSchema: inputSchema(map[string]any{
			"page": pageProp,
			"events": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type":  map[string]any{"type": "string", "enum": []any{"pointermove", "click", "keydown", "scroll", "input", "specificity", "submit", "close", "drag"}},
						"x":     map[string]any{"type": "number"},
						"y":     map[string]any{"type": "number"},
						"dx":    map[string]any{"type": "number"},
						"dy":    map[string]any{"type": "number"},
						"key":   map[string]any{"type": "string"},
						"text":  map[string]any{"type": "string"},
						"level": map[string]any{"type": "integer", "minimum": 0, "maximum": 9},
					},
					"required": []string{"type"},
				},
			},
		}, []string{"page", "events"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*dispatchRequest)
		st, err := h.Status(rr.Page)
		if err != nil {
			return nil, err
		}
		for _, ev := range rr.Events {
			if st, err = h.Dispatch(ctx, rr.Page, ev); err != nil {
				return nil, err
			}
		}
		return st, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[dispatchRequest], h.toolMiddleware(tool.Name)...)
}

// --- synthesize ---

type synthesizeRequest struct {
	Page   string          `json:"page"`
	Target string          `json:"target,omitempty"`
	X      float64         `json:"x,omitempty"`
	Y      float64         `json:"y,omitempty"`
	Level  *selector.Level `json:"level,omitempty"`
}

func (r *synthesizeRequest) level() selector.Level {
	if r.Level == nil {
		return selector.DefaultLevel
	}
	return r.Level.Clamp()
}

func (h *Host) registerSynthesizeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zap_synthesize",
		Description: "Build a validated CSS selector for an element, picked by CSS target or by viewport point, at a specificity level 0-9 (default 8).",
		InputSchema: inputSchema(map[string]any{
			"page":   pageProp,
			"target": map[string]any{"type": "string", "description": "CSS selector; its first match is the picked element"},
			"x":      map[string]any{"type": "number", "description": "Viewport x when no target is given"},
			"y":      map[string]any{"type": "number", "description": "Viewport y when no target is given"},
			"level":  map[string]any{"type": "integer", "minimum": 0, "maximum": 9},
		}, []string{"page"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		rr := req.(*synthesizeRequest)
		if rr.Target != "" {
			return h.Commit(rr.Page, rr.Target, rr.level())
		}
		return h.CommitAt(rr.Page, rr.X, rr.Y, rr.level())
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[synthesizeRequest], h.toolMiddleware(tool.Name)...)
}

// --- match ---

type matchRequest struct {
	Page     string `json:"page"`
	Selector string `json:"selector,omitempty"`
	Preview  bool   `json:"preview,omitempty"`
}

func (h *Host) registerMatchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "zap_match",
		Description: "List the elements a selector matches on a page (the current editor selection when empty), with boxes and optional markdown previews.",
		InputSchema: inputSchema(map[string]any{
			"page":     pageProp,
			"selector": map[string]any{"type": "string"},
			"preview":  map[string]any{"type": "boolean"},
		}, []string{"page"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		rr := req.(*matchRequest)
		return h.Matches(rr.Page, rr.Selector, rr.Preview)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[matchRequest], h.toolMiddleware(tool.Name)...)
}
