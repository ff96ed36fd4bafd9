package research_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/papermind-ai/papermind/mcp"
	"github.com/papermind-ai/papermind/mcp/transport/localtransport"
	"github.com/papermind-ai/papermind/pkg/llmutils"
	"github.com/papermind-ai/papermind/tools/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArxivServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(arxivFeed))
	}))
	t.Cleanup(server.Close)
	return server
}

func Test_SearchTool(t *testing.T) {
	arxiv := newArxivServer(t)
	store := research.NewStore(t.TempDir())

	tool, err := research.NewSearchTool(store)
	require.NoError(t, err)
	tool.WithBaseURL(arxiv.URL).WithHTTPClient(arxiv.Client())

	assert.Equal(t, research.SearchToolName, tool.Name())
	assert.Contains(t, tool.Description(), "arXiv")
	require.NotNil(t, tool.Parameters())
	assert.Contains(t, llmutils.ToJSON(tool.Parameters()), `"topic"`)

	ctx := context.Background()

	out, err := tool.Run(ctx, &research.SearchRequest{Topic: "quantum computing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2301.12345v1", "2302.00001v2"}, out.PaperIDs)
	assert.NotEmpty(t, out.Path)

	// The metadata landed in the store.
	info, ok := store.FindPaper("2301.12345v1")
	require.True(t, ok)
	assert.Contains(t, info, "Attention For Everyone")

	// MCP content is the comma-joined ID list.
	resp, err := tool.RunMCP(ctx, &research.SearchRequest{Topic: "quantum computing"})
	require.NoError(t, err)
	assert.Equal(t, "2301.12345v1, 2302.00001v2", resp.Text())

	_, err = tool.Run(ctx, &research.SearchRequest{})
	assert.EqualError(t, err, "invalid request: empty topic")

	_, err = tool.Call(ctx, "plain string")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal input")
}

func Test_ExtractTool(t *testing.T) {
	store := research.NewStore(t.TempDir())
	_, err := store.SavePapers("quantum computing", []research.Paper{
		{ID: "2301.12345v1", Title: "Attention For Everyone", Authors: []string{"A. Author"}},
	})
	require.NoError(t, err)

	tool, err := research.NewExtractTool(store)
	require.NoError(t, err)

	assert.Equal(t, research.ExtractToolName, tool.Name())
	require.NotNil(t, tool.Parameters())

	ctx := context.Background()

	out, err := tool.Run(ctx, &research.ExtractRequest{PaperID: "2301.12345v1"})
	require.NoError(t, err)
	assert.Contains(t, *out, "Attention For Everyone")

	// Missing papers are reported in-band, not as errors.
	out, err = tool.Run(ctx, &research.ExtractRequest{PaperID: "9999.0v1"})
	require.NoError(t, err)
	assert.Equal(t, "There's no saved information related to paper 9999.0v1.", *out)

	resp, err := tool.RunMCP(ctx, &research.ExtractRequest{PaperID: "2301.12345v1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text(), "Attention For Everyone")

	_, err = tool.Run(ctx, &research.ExtractRequest{})
	assert.EqualError(t, err, "invalid request: empty paper_id")
}

// Test_ResearchServer wires the tools, resources and prompt onto a real MCP
// server and exercises them through a client, like the chatbot does.
func Test_ResearchServer(t *testing.T) {
	arxiv := newArxivServer(t)
	store := research.NewStore(t.TempDir())

	searchTool, err := research.NewSearchTool(store)
	require.NoError(t, err)
	searchTool.WithBaseURL(arxiv.URL).WithHTTPClient(arxiv.Client())

	extractTool, err := research.NewExtractTool(store)
	require.NoError(t, err)

	clientEnd, serverEnd := localtransport.NewPipe()
	server := mcp.NewServer(serverEnd, mcp.WithName("research"))

	require.NoError(t, searchTool.RegisterMCP(server))
	require.NoError(t, extractTool.RegisterMCP(server))
	require.NoError(t, research.RegisterResources(server, store))
	require.NoError(t, research.RegisterPrompts(server))
	require.NoError(t, server.Serve())

	ctx := context.Background()
	client := mcp.NewClient(clientEnd)
	require.NoError(t, client.Connect(ctx))
	defer func() { _ = client.Close() }()

	// Both tools are advertised with schemas.
	tools := client.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, research.ExtractToolName, tools[0].Name)
	assert.Equal(t, research.SearchToolName, tools[1].Name)
	require.NotNil(t, tools[1].InputSchema)

	// Search stores papers and returns their IDs.
	resp, err := client.CallTool(ctx, research.SearchToolName, research.SearchRequest{Topic: "quantum computing"})
	require.NoError(t, err)
	require.False(t, resp.IsError)
	assert.Equal(t, "2301.12345v1, 2302.00001v2", resp.Text())

	// Extract reads them back.
	resp, err = client.CallTool(ctx, research.ExtractToolName, research.ExtractRequest{PaperID: "2301.12345v1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text(), "Attention For Everyone")

	// The folders resource lists the topic.
	res, err := client.ReadResource(ctx, research.FoldersResourceURI)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "Quantum Computing")

	// The topic resource is served through the template fallback.
	res, err = client.ReadResource(ctx, "papers://quantum_computing")
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "# Papers on quantum computing")
	assert.Contains(t, res.Contents[0].Text, "Total papers: 2")

	// The search prompt renders with defaults.
	prompt, err := client.GetPrompt(ctx, research.GenerateSearchPromptName, map[string]string{"topic": "llm agents"})
	require.NoError(t, err)
	require.Len(t, prompt.Messages, 1)
	assert.Contains(t, prompt.Messages[0].Content.TextContent.Text, "Search for 5 academic papers about 'llm agents'")

	// Validation failures come back in-band for the model to see.
	resp, err = client.CallTool(ctx, research.SearchToolName, research.SearchRequest{})
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Contains(t, resp.Text(), "empty topic")
}

func TestFoldersMarkdown(t *testing.T) {
	store := research.NewStore(t.TempDir())
	assert.Contains(t, research.FoldersMarkdown(store), "No research topics available yet.")

	_, err := store.SavePapers("machine learning", []research.Paper{{ID: "1.1v1", Title: "x"}})
	require.NoError(t, err)
	_, err = store.SavePapers("quantum computing", []research.Paper{{ID: "2.2v1", Title: "y"}})
	require.NoError(t, err)

	md := research.FoldersMarkdown(store)
	assert.Contains(t, md, "# Available Topics")
	assert.Contains(t, md, "- Machine Learning")
	assert.Contains(t, md, "- Quantum Computing")
	assert.Contains(t, md, "Use @machine_learning to access papers in that topic.")
}

func TestTopicMarkdown(t *testing.T) {
	store := research.NewStore(t.TempDir())

	md := research.TopicMarkdown(store, "unknown_topic")
	assert.Contains(t, md, "# No papers found for topic: unknown_topic")

	_, err := store.SavePapers("machine learning", []research.Paper{{
		ID:        "2301.12345v1",
		Title:     "Attention For Everyone",
		Authors:   []string{"A. Author", "B. Writer"},
		Summary:   "A summary.",
		PdfURL:    "http://arxiv.org/pdf/2301.12345v1",
		Published: "2023-01-30",
	}})
	require.NoError(t, err)

	md = research.TopicMarkdown(store, "machine_learning")
	assert.Contains(t, md, "# Papers on machine learning")
	assert.Contains(t, md, "Total papers: 1")
	assert.Contains(t, md, "## Attention For Everyone")
	assert.Contains(t, md, "- **Paper ID**: 2301.12345v1")
	assert.Contains(t, md, "- **Authors**: A. Author, B. Writer")
	assert.Contains(t, md, "- **Published**: 2023-01-30")
	assert.Contains(t, md, "- **PDF URL**: http://arxiv.org/pdf/2301.12345v1")
	assert.Contains(t, md, "### Summary\nA summary.")
}

func TestSearchPromptText(t *testing.T) {
	text := research.SearchPromptText("llm agents", 7)
	assert.Contains(t, text, "Search for 7 academic papers about 'llm agents'")
	assert.Contains(t, text, "search_papers(topic='llm agents', max_results=7)")
	assert.Contains(t, text, "current state of research in 'llm agents'")
}
