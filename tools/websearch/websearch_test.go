package websearch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/papermind-ai/papermind/pkg/llmutils"
	"github.com/papermind-ai/papermind/tools/websearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTavilyServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req tavilyModels.SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "basic", req.SearchDepth)
		assert.True(t, req.IncludeAnswer)

		resp := tavilyModels.SearchResponse{
			Answer: "Paris",
			Results: []tavilyModels.SearchResult{
				{
					Title:   "Capital of France",
					URL:     "https://en.wikipedia.org/wiki/Paris",
					Content: "Paris is the capital of France.",
					Score:   0.9,
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)
	return server
}

func Test_WebSearch(t *testing.T) {
	t.Setenv(websearch.TokenEnvVarName, "testkey")

	server := newTavilyServer(t)

	tool, err := websearch.New()
	require.NoError(t, err)
	tool.WithBaseURL(server.URL).WithHTTPClient(server.Client())

	assert.Equal(t, websearch.ToolName, tool.Name())
	assert.Contains(t, tool.Description(), "Search the web")
	require.NotNil(t, tool.Parameters())
	assert.Contains(t, llmutils.ToJSON(tool.Parameters()), `"query"`)

	ctx := context.Background()

	out, err := tool.Run(ctx, &websearch.SearchRequest{Query: "capital of France"})
	require.NoError(t, err)
	assert.Equal(t, "Paris", out.Answer)
	require.Len(t, out.Results, 1)

	exp := `ANSWER: Paris
- URL: https://en.wikipedia.org/wiki/Paris
  TITLE: Capital of France
  SCORE: 0.900000
  CONTENT: Paris is the capital of France.
`
	assert.Equal(t, exp, out.String())

	resp, err := tool.RunMCP(ctx, &websearch.SearchRequest{Query: "capital of France"})
	require.NoError(t, err)
	assert.Equal(t, exp, resp.Text())

	res, err := tool.Call(ctx, `{"query": "capital of France"}`)
	require.NoError(t, err)
	assert.Contains(t, res, `"answer":"Paris"`)

	_, err = tool.Run(ctx, &websearch.SearchRequest{})
	assert.EqualError(t, err, "invalid request: empty query")

	_, err = tool.Call(ctx, "not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal input")
}

func Test_WebSearchNoToken(t *testing.T) {
	t.Setenv(websearch.TokenEnvVarName, "")

	_, err := websearch.New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAVILY_API_KEY is not set")
}

func Test_WebSearchAPIError(t *testing.T) {
	t.Setenv(websearch.TokenEnvVarName, "testkey")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	tool, err := websearch.New()
	require.NoError(t, err)
	tool.WithBaseURL(server.URL).WithHTTPClient(server.Client())

	_, err = tool.Run(context.Background(), &websearch.SearchRequest{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to perform search")
}
