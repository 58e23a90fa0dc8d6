package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecshop/internal/domain"
	"github.com/kailas-cloud/vecshop/internal/domain/search/match"
	"github.com/kailas-cloud/vecshop/internal/logger"
	"github.com/kailas-cloud/vecshop/internal/version"
)

// Tool names.
const (
	ToolProductSearch      = "product_search"
	ToolProductImageSearch = "product_image_search"
)

// DefaultTopN is used when a tool call omits top_n.
const DefaultTopN = 10

// Searcher runs product similarity searches.
type Searcher interface {
	SearchByText(ctx context.Context, text string, topN int) ([]match.Match, error)
	SearchByImage(ctx context.Context, data []byte, contentType string, topN int) ([]match.Match, error)
}

// Options configures the MCP server.
type Options struct {
	DefaultTopN int
	Logger      *zap.Logger
}

// Product is a ranked product in a tool result.
type Product struct {
	ID             string  `json:"id"`
	DisplayName    string  `json:"display_name"`
	MasterCategory string  `json:"master_category"`
	SubCategory    string  `json:"sub_category"`
	BaseColour     string  `json:"base_colour"`
	Similarity     float64 `json:"similarity"`
}

// SearchResult is the structured content of both search tools.
type SearchResult struct {
	Results []Product `json:"results"`
}

// Server exposes product search as MCP tools.
type Server struct {
	search      Searcher
	defaultTopN int
	logger      *zap.Logger
}

// New returns an MCP server exposing product_search and product_image_search.
func New(search Searcher, opts Options) *server.MCPServer {
	srv := newServer(search, opts)

	s := server.NewMCPServer(
		"vecshop",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.AddTool(newProductSearchTool(srv.defaultTopN), srv.handleProductSearch)
	s.AddTool(newProductImageSearchTool(srv.defaultTopN), srv.handleProductImageSearch)
	return s
}

func newServer(search Searcher, opts Options) *Server {
	srv := &Server{search: search, defaultTopN: opts.DefaultTopN, logger: opts.Logger}
	if srv.defaultTopN <= 0 {
		srv.defaultTopN = DefaultTopN
	}
	if srv.logger == nil {
		srv.logger = zap.NewNop()
	}
	return srv
}

func newProductSearchTool(defaultTopN int) mcp.Tool {
	return mcp.NewTool(
		ToolProductSearch,
		mcp.WithDescription("Find catalog products similar to a natural language description"),
		mcp.WithString("query", mcp.Description("What to look for, e.g. \"red running shoes\""), mcp.Required()),
		mcp.WithNumber("top_n", mcp.Description("Number of products to return"),
			mcp.DefaultNumber(float64(defaultTopN)), mcp.Min(1)),
	)
}

func newProductImageSearchTool(defaultTopN int) mcp.Tool {
	return mcp.NewTool(
		ToolProductImageSearch,
		mcp.WithDescription("Find catalog products that look like an image"),
		mcp.WithString("image_base64",
			mcp.Description("Image bytes as standard base64 or a data: URL"), mcp.Required()),
		mcp.WithString("content_type", mcp.Description("Image MIME type, e.g. image/jpeg")),
		mcp.WithNumber("top_n", mcp.Description("Number of products to return"),
			mcp.DefaultNumber(float64(defaultTopN)), mcp.Min(1)),
	)
}

func (srv *Server) handleProductSearch(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	topN := req.GetInt("top_n", srv.defaultTopN)

	ctx = logger.ContextWithLogger(ctx, srv.logger.With(zap.String("tool", ToolProductSearch)))
	matches, err := srv.search.SearchByText(ctx, query, topN)
	if err != nil {
		return srv.toolError(ctx, err), nil
	}
	return mcp.NewToolResultStructuredOnly(toResult(matches)), nil
}

func (srv *Server) handleProductImageSearch(
	ctx context.Context,
	req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	encoded, err := req.RequireString("image_base64")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, dataURLType, err := decodeImage(encoded)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid_argument: %v", err)), nil
	}
	contentType := req.GetString("content_type", dataURLType)
	topN := req.GetInt("top_n", srv.defaultTopN)

	ctx = logger.ContextWithLogger(ctx, srv.logger.With(zap.String("tool", ToolProductImageSearch)))
	matches, err := srv.search.SearchByImage(ctx, data, contentType, topN)
	if err != nil {
		return srv.toolError(ctx, err), nil
	}
	return mcp.NewToolResultStructuredOnly(toResult(matches)), nil
}

// decodeImage accepts plain base64 or a data URL and returns the bytes and
// the URL's declared media type, if any.
func decodeImage(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	contentType := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", errors.New("data URL must be base64 encoded")
		}
		contentType = strings.TrimSuffix(meta, ";base64")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return data, contentType, nil
}

// toolError reports a failed search as a tool error prefixed with its kind.
// Caller mistakes keep their detail; embedding and backend failures carry only
// the sentinel text so provider bodies and store errors stay in the logs.
func (srv *Server) toolError(ctx context.Context, err error) *mcp.CallToolResult {
	code := errorCode(err)
	log := logger.FromContext(ctx)
	if code == "internal_error" {
		log.Error("tool call failed", zap.Error(err))
	} else {
		log.Warn("tool call failed", zap.String("code", code), zap.Error(err))
	}
	return mcp.NewToolResultError(code + ": " + errorMessage(code, err))
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, domain.ErrEmbeddingDimensionMismatch):
		return "embedding_dimension_mismatch"
	case errors.Is(err, domain.ErrEmbeddingFailed):
		return "embedding_failed"
	case errors.Is(err, domain.ErrSearchBackendFailed):
		return "search_backend_failed"
	default:
		return "internal_error"
	}
}

func errorMessage(code string, err error) string {
	switch code {
	case "invalid_argument", "empty_input":
		return err.Error()
	case "embedding_dimension_mismatch":
		var dim *domain.DimensionMismatchError
		if errors.As(err, &dim) {
			return dim.Error()
		}
		return domain.ErrEmbeddingDimensionMismatch.Error()
	case "embedding_failed":
		return domain.ErrEmbeddingFailed.Error()
	case "search_backend_failed":
		return domain.ErrSearchBackendFailed.Error()
	default:
		return "internal error"
	}
}

func toResult(matches []match.Match) SearchResult {
	items := make([]Product, len(matches))
	for i := range matches {
		m := &matches[i]
		items[i] = Product{
			ID:             m.ProductID(),
			DisplayName:    m.DisplayName(),
			MasterCategory: m.Category(),
			SubCategory:    m.SubCategory(),
			BaseColour:     m.Colour(),
			Similarity:     m.Similarity(),
		}
	}
	return SearchResult{Results: items}
}
