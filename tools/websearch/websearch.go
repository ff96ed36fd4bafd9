// Package websearch implements a web search tool backed by the Tavily API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/papermind-ai/papermind/mcp"
	"github.com/papermind-ai/papermind/pkg/llmutils"
	"github.com/papermind-ai/papermind/pkg/schema"
	"github.com/papermind-ai/papermind/tools"
)

const ToolName = "web_search"

// TokenEnvVarName holds the Tavily API key.
const TokenEnvVarName = "TAVILY_API_KEY" //nolint:gosec

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query string `json:"query" yaml:"query" jsonschema:"title=query,description=The query to search the web for."`
}

// SearchResult represents the structure for a search response.
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results" jsonschema:"title=results,description=The results from a web search."`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty" jsonschema:"title=answer,description=The aggregated answer from a web search."`
}

// Tool is a tool that provides web search functionality.
type Tool struct {
	name        string
	description string
	funcParams  any

	baseURL    string
	httpClient *http.Client
}

var _ tools.MCPTool[SearchRequest] = (*Tool)(nil)

// New creates the web search tool. The Tavily API key is read from the
// TAVILY_API_KEY environment variable at call time.
func New() (*Tool, error) {
	if os.Getenv(TokenEnvVarName) == "" {
		return nil, errors.Errorf("%s is not set", TokenEnvVarName)
	}

	sc, err := schema.New(reflect.TypeOf(SearchRequest{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &Tool{
		name:        ToolName,
		description: "Search the web and return relevant results with an aggregated answer.",
		httpClient:  http.DefaultClient,
		funcParams:  sc.Parameters,
	}, nil
}

// WithBaseURL overrides the Tavily API endpoint.
func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = baseURL
	return t
}

// WithHTTPClient overrides the HTTP client used for Tavily requests.
func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return t.description
}

func (t *Tool) Parameters() any {
	return t.funcParams
}

func (t *Tool) Run(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	apikey := os.Getenv(TokenEnvVarName)
	if apikey == "" {
		return nil, errors.Errorf("%s is not set", TokenEnvVarName)
	}

	client := tavilygo.NewClient(apikey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	searchReq := tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	}

	searchResp, err := tavilygo.Search(client, searchReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search")
	}

	return &SearchResult{
		Results: searchResp.Results,
		Answer:  searchResp.Answer,
	}, nil
}

func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	var req SearchRequest
	if err := json.Unmarshal(llmutils.CleanJSON([]byte(input)), &req); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal input")
	}
	out, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	return llmutils.ToJSON(out), nil
}

// RunMCP executes the tool and formats the result as tool content.
func (t *Tool) RunMCP(ctx context.Context, req *SearchRequest) (*mcp.ToolResponse, error) {
	out, err := t.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(out.String())), nil
}

// RegisterMCP registers the tool with an MCP server.
func (t *Tool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

func (r *SearchResult) String() string {
	var sb strings.Builder
	if r.Answer != "" {
		fmt.Fprintf(&sb, "ANSWER: %s\n", r.Answer)
	}

	for _, result := range r.Results {
		fmt.Fprintf(&sb, "- URL: %s\n", result.URL)
		fmt.Fprintf(&sb, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&sb, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&sb, "  CONTENT: %s\n", result.Content)
	}

	return sb.String()
}
