package intent

import (
	"context"
	"testing"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, r Resolver, content string) Decision {
	t.Helper()
	store, sess := testutil.SeededStore("s1")
	pc := testutil.Context(store, sess, content)
	d, err := r.Resolve(context.Background(), pc)
	require.NoError(t, err)
	return d
}

func TestKeywordResolver_FirstMatchWins(t *testing.T) {
	r := NewKeywordResolver(
		Rule{Tool: "first", Keywords: []string{"alpha"}},
		Rule{Tool: "second", Keywords: []string{"beta", "alpha"}},
	)

	d := resolve(t, r, "this mentions alpha and beta")
	assert.Equal(t, "first", d.Tool, "rule priority beats keyword position")
}

func TestKeywordResolver_CaseFolded(t *testing.T) {
	r := NewKeywordResolver(Rule{Tool: "t", Keywords: []string{"Password"}})
	d := resolve(t, r, "I forgot my PASSWORD")
	assert.Equal(t, "t", d.Tool)
}

func TestKeywordResolver_NoMatchPlainText(t *testing.T) {
	r := NewKeywordResolver(Rule{Tool: "t", Keywords: []string{"billing"}})
	d := resolve(t, r, "just saying hello")
	assert.False(t, d.IsToolCall())
	assert.Empty(t, d.Text)
}

func TestKeywordResolver_ArgsBuilder(t *testing.T) {
	r := NewKeywordResolver(Rule{
		Tool:     "echo",
		Keywords: []string{"say"},
		Args: func(pc *core.PipelineContext) map[string]any {
			return map[string]any{"query": pc.Inbound.Content}
		},
	})

	d := resolve(t, r, "say something")
	require.True(t, d.IsToolCall())
	assert.Equal(t, "say something", d.Arguments["query"])
}

func TestKeywordResolver_NilArgsBuilder(t *testing.T) {
	r := NewKeywordResolver(Rule{Tool: "t", Keywords: []string{"go"}})
	d := resolve(t, r, "go now")
	require.True(t, d.IsToolCall())
	assert.NotNil(t, d.Arguments)
	assert.Empty(t, d.Arguments)
}

func TestKeywordResolver_Empty(t *testing.T) {
	d := resolve(t, NewKeywordResolver(), "anything at all")
	assert.False(t, d.IsToolCall())
}
