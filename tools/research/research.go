// Package research implements the arXiv paper tools: searching for papers by
// topic, storing their metadata on disk, and extracting saved metadata. It
// also provides the papers:// resources and the search prompt exposed by the
// research MCP server.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/papermind-ai/papermind/mcp"
	"github.com/papermind-ai/papermind/pkg/llmutils"
	"github.com/papermind-ai/papermind/pkg/schema"
	"github.com/papermind-ai/papermind/tools"
)

const (
	SearchToolName  = "search_papers"
	ExtractToolName = "extract_info"

	// DefaultMaxResults bounds a search when the caller does not ask for a
	// specific number of papers.
	DefaultMaxResults = 5

	FoldersResourceURI  = "papers://folders"
	TopicResourcePrefix = "papers://"
)

// SearchRequest is the input of the search_papers tool.
type SearchRequest struct {
	Topic      string `json:"topic" yaml:"topic" jsonschema:"title=topic,description=The topic to search for."`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty" jsonschema:"title=max_results,description=Maximum number of results to retrieve."`
}

// SearchResult is the output of the search_papers tool.
type SearchResult struct {
	PaperIDs []string `json:"paper_ids" yaml:"paper_ids" jsonschema:"title=paper_ids,description=The arXiv IDs of the papers found."`
	Path     string   `json:"path,omitempty" yaml:"path,omitempty" jsonschema:"title=path,description=Where the paper metadata was saved."`
}

// SearchTool searches arXiv for papers on a topic and saves their metadata.
type SearchTool struct {
	name        string
	description string
	funcParams  any

	client *ArxivClient
	store  *Store
}

var _ tools.MCPTool[SearchRequest] = (*SearchTool)(nil)

// NewSearchTool creates the search_papers tool backed by the given store.
func NewSearchTool(store *Store) (*SearchTool, error) {
	sc, err := schema.New(reflect.TypeOf(SearchRequest{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &SearchTool{
		name:        SearchToolName,
		description: "Search for papers on arXiv based on a topic and store their information.",
		funcParams:  sc.Parameters,
		client:      NewArxivClient(),
		store:       store,
	}, nil
}

// WithBaseURL overrides the arXiv API endpoint.
func (t *SearchTool) WithBaseURL(baseURL string) *SearchTool {
	t.client.BaseURL = baseURL
	return t
}

// WithHTTPClient overrides the HTTP client used for arXiv requests.
func (t *SearchTool) WithHTTPClient(client *http.Client) *SearchTool {
	t.client.HTTPClient = client
	return t
}

func (t *SearchTool) Name() string {
	return t.name
}

func (t *SearchTool) Description() string {
	return t.description
}

func (t *SearchTool) Parameters() any {
	return t.funcParams
}

func (t *SearchTool) Run(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Topic == "" {
		return nil, errors.New("invalid request: empty topic")
	}

	maxResults := values.NumbersCoalesce(req.MaxResults, DefaultMaxResults)
	papers, err := t.client.Search(ctx, req.Topic, maxResults)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to search arxiv")
	}

	path, err := t.store.SavePapers(req.Topic, papers)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to save papers")
	}

	res := &SearchResult{
		PaperIDs: make([]string, 0, len(papers)),
		Path:     path,
	}
	for _, paper := range papers {
		res.PaperIDs = append(res.PaperIDs, paper.ID)
	}
	return res, nil
}

func (t *SearchTool) Call(ctx context.Context, input string) (string, error) {
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

// RunMCP executes the tool and formats the result as tool content: the found
// paper IDs as a comma-separated list.
func (t *SearchTool) RunMCP(ctx context.Context, req *SearchRequest) (*mcp.ToolResponse, error) {
	out, err := t.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(strings.Join(out.PaperIDs, ", "))), nil
}

// RegisterMCP registers the tool with an MCP server.
func (t *SearchTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// ExtractRequest is the input of the extract_info tool.
type ExtractRequest struct {
	PaperID string `json:"paper_id" yaml:"paper_id" jsonschema:"title=paper_id,description=The ID of the paper to look for."`
}

// ExtractTool looks up saved metadata of a paper across all topics.
type ExtractTool struct {
	name        string
	description string
	funcParams  any

	store *Store
}

var _ tools.MCPTool[ExtractRequest] = (*ExtractTool)(nil)

// NewExtractTool creates the extract_info tool backed by the given store.
func NewExtractTool(store *Store) (*ExtractTool, error) {
	sc, err := schema.New(reflect.TypeOf(ExtractRequest{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &ExtractTool{
		name:        ExtractToolName,
		description: "Search for information about a specific paper across all topic directories.",
		funcParams:  sc.Parameters,
		store:       store,
	}, nil
}

func (t *ExtractTool) Name() string {
	return t.name
}

func (t *ExtractTool) Description() string {
	return t.description
}

func (t *ExtractTool) Parameters() any {
	return t.funcParams
}

// Run returns the paper metadata as indented JSON, or a not-found message.
// A missing paper is not an error: the model is expected to see the message
// and react to it.
func (t *ExtractTool) Run(ctx context.Context, req *ExtractRequest) (*string, error) {
	if req.PaperID == "" {
		return nil, errors.New("invalid request: empty paper_id")
	}

	info, ok := t.store.FindPaper(req.PaperID)
	if !ok {
		info = fmt.Sprintf("There's no saved information related to paper %s.", req.PaperID)
	}
	return &info, nil
}

func (t *ExtractTool) Call(ctx context.Context, input string) (string, error) {
	var req ExtractRequest
	if err := json.Unmarshal(llmutils.CleanJSON([]byte(input)), &req); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal input")
	}
	out, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	return *out, nil
}

// RunMCP executes the tool and wraps the result as tool content.
func (t *ExtractTool) RunMCP(ctx context.Context, req *ExtractRequest) (*mcp.ToolResponse, error) {
	out, err := t.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(*out)), nil
}

// RegisterMCP registers the tool with an MCP server.
func (t *ExtractTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}
