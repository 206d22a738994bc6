// CLAUDE:SUMMARY Registers darkmode MCP tools: site toggle, site list, blacklist read/save, stylesheet.
package darkmode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/darkzap/kit"
)

// RegisterMCP registers darkmode tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerToggleSiteTool(srv)
	s.registerSitesTool(srv)
	s.registerBlacklistTool(srv)
	s.registerSaveBlacklistTool(srv)
	s.registerStylesheetTool(srv)
}

func (s *Service) toolMiddleware(name string) []kit.Middleware {
	return []kit.Middleware{kit.Logging(s.logger, name), kit.Recovery(s.logger)}
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

var hostProp = map[string]any{"type": "string", "description": "Page host, with port when not default"}

// resolveHost accepts either a host or a page URL.
func resolveHost(host, rawURL string) (string, error) {
	if host != "" {
		return host, ValidHost(host)
	}
	if rawURL != "" {
		return HostOf(rawURL)
	}
	return "", fmt.Errorf("%w: host or url required", ErrInvalidHost)
}

// --- toggle_site ---

type toggleSiteRequest struct {
	Host string `json:"host"`
	URL  string `json:"url"`
}

type siteResponse struct {
	Host    string `json:"host"`
	Enabled bool   `json:"enabled"`
}

func (s *Service) registerToggleSiteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "darkmode_toggle_site",
		Description: "Enable or disable dark mode on a host (given directly or as a page URL). Returns the new state.",
		InputSchema: inputSchema(map[string]any{
			"host": hostProp,
			"url":  map[string]any{"type": "string", "description": "Page URL, used when host is empty"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*toggleSiteRequest)
		host, err := resolveHost(r.Host, r.URL)
		if err != nil {
			return nil, err
		}
		enabled, err := s.ToggleSite(ctx, host)
		if err != nil {
			return nil, err
		}
		return siteResponse{Host: host, Enabled: enabled}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r toggleSiteRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}, s.toolMiddleware(tool.Name)...)
}

// --- sites ---

type sitesRequest struct {
	Text *string `json:"text,omitempty"`
}

type sitesResponse struct {
	Sites []string `json:"sites"`
}

func (s *Service) registerSitesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "darkmode_sites",
		Description: "List the hosts dark mode is enabled on. With text, first replace the list by its lines.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "One host per line; replaces the list"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*sitesRequest)
		var (
			sites []string
			err   error
		)
		if r.Text != nil {
			sites, err = s.SaveSitesFromText(ctx, *r.Text)
		} else {
			sites, err = s.Sites(ctx)
		}
		if err != nil {
			return nil, err
		}
		return sitesResponse{Sites: sites}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r sitesRequest
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}, s.toolMiddleware(tool.Name)...)
}

// --- blacklist ---

type blacklistRequest struct {
	Host string `json:"host"`
	URL  string `json:"url"`
}

type blacklistResponse struct {
	Host      string   `json:"host"`
	Selectors []string `json:"selectors"`
	Text      string   `json:"text"`
}

func (s *Service) registerBlacklistTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "darkmode_blacklist",
		Description: "Return the selectors exempted from dark mode on a host, as a list and as text-area content.",
		InputSchema: inputSchema(map[string]any{
			"host": hostProp,
			"url":  map[string]any{"type": "string"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*blacklistRequest)
		host, err := resolveHost(r.Host, r.URL)
		if err != nil {
			return nil, err
		}
		return s.blacklistResponse(ctx, host)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r blacklistRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}, s.toolMiddleware(tool.Name)...)
}

func (s *Service) blacklistResponse(ctx context.Context, host string) (blacklistResponse, error) {
	list, err := s.Blacklist(ctx, host)
	if err != nil {
		return blacklistResponse{}, err
	}
	return blacklistResponse{Host: host, Selectors: list, Text: FormatList(list)}, nil
}

// --- save_blacklist ---

type saveBlacklistRequest struct {
	Host      string   `json:"host"`
	URL       string   `json:"url"`
	Selectors []string `json:"selectors,omitempty"`
	Text      *string  `json:"text,omitempty"`
	Append    string   `json:"append,omitempty"`
}

func (s *Service) registerSaveBlacklistTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name: "darkmode_save_blacklist",
		Description: "Write the blacklist of a host: append one selector, replace it from text-area content, " +
			"or replace it with a selector list. Duplicates keep their first position.",
		InputSchema: inputSchema(map[string]any{
			"host":      hostProp,
			"url":       map[string]any{"type": "string"},
			"selectors": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"text":      map[string]any{"type": "string", "description": "One selector per line"},
			"append":    map[string]any{"type": "string", "description": "Selector added at the end"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*saveBlacklistRequest)
		host, err := resolveHost(r.Host, r.URL)
		if err != nil {
			return nil, err
		}
		switch {
		case r.Append != "":
			_, err = s.AppendBlacklist(ctx, host, r.Append)
		case r.Text != nil:
			_, err = s.SaveBlacklistFromText(ctx, host, *r.Text)
		default:
			err = s.SaveBlacklist(ctx, host, r.Selectors)
		}
		if err != nil {
			return nil, err
		}
		return s.blacklistResponse(ctx, host)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r saveBlacklistRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}, s.toolMiddleware(tool.Name)...)
}

// --- stylesheet ---

type stylesheetRequest struct {
	Host      string `json:"host"`
	URL       string `json:"url"`
	OverlayID string `json:"overlay_id"`
}

type stylesheetResponse struct {
	Host    string `json:"host"`
	Enabled bool   `json:"enabled"`
	CSS     string `json:"css"`
}

func (s *Service) registerStylesheetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "darkmode_stylesheet",
		Description: "Compose the dark-mode stylesheet of a host. Empty when dark mode is off there.",
		InputSchema: inputSchema(map[string]any{
			"host":       hostProp,
			"url":        map[string]any{"type": "string"},
			"overlay_id": map[string]any{"type": "string", "description": "Element id of the zap overlay host"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*stylesheetRequest)
		host, err := resolveHost(r.Host, r.URL)
		if err != nil {
			return nil, err
		}
		css, err := s.Stylesheet(ctx, host, r.OverlayID)
		if err != nil {
			return nil, err
		}
		return stylesheetResponse{Host: host, Enabled: css != "", CSS: css}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r stylesheetRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}, s.toolMiddleware(tool.Name)...)
}
