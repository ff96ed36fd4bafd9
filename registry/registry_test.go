package registry_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/papermind-ai/papermind/mcp"
	"github.com/papermind-ai/papermind/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	name  string
	calls []string
}

func (f *fakeCaller) CallTool(ctx context.Context, name string, arguments any) (*mcp.ToolResponse, error) {
	f.calls = append(f.calls, name)
	return mcp.NewToolResponse(mcp.NewTextContent("from " + f.name)), nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := registry.New()
	caller := &fakeCaller{name: "research"}

	reg.Register("research", caller, []mcp.Tool{
		{Name: "search_papers", Description: "Search arXiv"},
		{Name: "extract_info", Description: "Look up a saved paper"},
	})

	require.Equal(t, 2, reg.Len())

	resolved, err := reg.Resolve("search_papers")
	require.NoError(t, err)
	resp, err := resolved.CallTool(context.Background(), "search_papers", nil)
	require.NoError(t, err)
	assert.Equal(t, "from research", resp.Text())

	session, err := reg.Session("extract_info")
	require.NoError(t, err)
	assert.Equal(t, "research", session)
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := registry.New()

	_, err := reg.Resolve("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrUnknownTool))
	assert.Contains(t, err.Error(), "missing")

	_, err = reg.Session("missing")
	assert.True(t, errors.Is(err, registry.ErrUnknownTool))
}

func TestRegistry_LastWriteWins(t *testing.T) {
	reg := registry.New()
	first := &fakeCaller{name: "first"}
	second := &fakeCaller{name: "second"}

	reg.Register("first", first, []mcp.Tool{{Name: "web_search"}})
	reg.Register("second", second, []mcp.Tool{{Name: "web_search"}})

	require.Equal(t, 1, reg.Len())

	session, err := reg.Session("web_search")
	require.NoError(t, err)
	assert.Equal(t, "second", session)

	resolved, err := reg.Resolve("web_search")
	require.NoError(t, err)
	resp, err := resolved.CallTool(context.Background(), "web_search", nil)
	require.NoError(t, err)
	assert.Equal(t, "from second", resp.Text())
}

func TestRegistry_OrderIsRegistrationOrder(t *testing.T) {
	reg := registry.New()
	caller := &fakeCaller{name: "s"}

	reg.Register("s", caller, []mcp.Tool{
		{Name: "zeta"},
		{Name: "alpha"},
	})
	reg.Register("s2", caller, []mcp.Tool{
		{Name: "mid"},
		// Re-registration of an existing name keeps its original position.
		{Name: "zeta"},
	})

	tools := reg.Tools()
	require.Len(t, tools, 3)
	assert.Equal(t, "zeta", tools[0].Name)
	assert.Equal(t, "alpha", tools[1].Name)
	assert.Equal(t, "mid", tools[2].Name)

	descriptors := reg.Descriptors()
	require.Len(t, descriptors, 3)
	assert.Equal(t, "function", descriptors[0].Type)
	require.NotNil(t, descriptors[0].Function)
	assert.Equal(t, "zeta", descriptors[0].Function.Name)
}

func TestRegistry_Deregister(t *testing.T) {
	reg := registry.New()
	a := &fakeCaller{name: "a"}
	b := &fakeCaller{name: "b"}

	reg.Register("a", a, []mcp.Tool{{Name: "t1"}, {Name: "t2"}})
	reg.Register("b", b, []mcp.Tool{{Name: "t2"}, {Name: "t3"}})

	// Session a lost t2 to session b; deregistering a must not remove it.
	reg.Deregister("a")

	require.Equal(t, 2, reg.Len())

	_, err := reg.Resolve("t1")
	assert.True(t, errors.Is(err, registry.ErrUnknownTool))

	session, err := reg.Session("t2")
	require.NoError(t, err)
	assert.Equal(t, "b", session)

	_, err = reg.Resolve("t3")
	assert.NoError(t, err)

	tools := reg.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "t2", tools[0].Name)
	assert.Equal(t, "t3", tools[1].Name)
}
