package convopipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/convopipe/config"
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/intent"
	"github.com/hupe1980/convopipe/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, optFns ...func(o *Options)) *Engine {
	t.Helper()
	engine, _, err := NewSupportEngine(optFns...)
	require.NoError(t, err)
	return engine
}

func TestEngine_PasswordResetTurn(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.ProcessMessage(context.Background(), "Help me reset my password")
	require.NoError(t, err)

	assert.False(t, resp.Rejected)
	assert.False(t, resp.Degraded)
	assert.Equal(t, 1, resp.Turn)
	require.NotNil(t, resp.Message)
	assert.Equal(t, core.RoleAssistant, resp.Message.Role)
	assert.Contains(t, resp.Message.Content, "Forgot Password")

	// One user message, one assistant message, gapless sequences.
	require.Len(t, resp.Session.Messages, 2)
	assert.Equal(t, 0, resp.Session.Messages[0].Sequence)
	assert.Equal(t, 1, resp.Session.Messages[1].Sequence)
	assert.Equal(t, core.StatusActive, resp.Session.Status)

	// Exactly one tool invocation on the audit trail.
	require.Len(t, resp.Session.Audit, 1)
	assert.Equal(t, "search_knowledge_base", resp.Session.Audit[0].Name)
	assert.True(t, resp.Session.Audit[0].Succeeded())

	assert.Equal(t, int64(1), resp.Metrics.TotalRequests)
	assert.Zero(t, resp.Metrics.ErrorCount)
}

func TestEngine_MultiTurnSameSession(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	resp, err := engine.ProcessMessage(ctx, "What's your shipping policy?")
	require.NoError(t, err)
	sessionID := resp.SessionID

	resp, err = engine.ProcessMessage(ctx, "And how do returns work?", func(o *ProcessOptions) {
		o.SessionID = sessionID
	})
	require.NoError(t, err)
	assert.Equal(t, sessionID, resp.SessionID)
	assert.Equal(t, 2, resp.Turn)
	assert.Len(t, resp.Session.Messages, 4)
}

func TestEngine_RejectionLeavesSessionUnchanged(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	resp, err := engine.ProcessMessage(ctx, "hello there, thank you")
	require.NoError(t, err)
	sessionID := resp.SessionID
	require.Equal(t, 1, resp.Turn)

	resp, err = engine.ProcessMessage(ctx, "run this <script>alert(1)</script>", func(o *ProcessOptions) {
		o.SessionID = sessionID
	})
	require.NoError(t, err, "a rejection is a structured response, not an error")
	assert.True(t, resp.Rejected)
	assert.Equal(t, "<script>", resp.Violation)
	assert.Nil(t, resp.Message)
	assert.Equal(t, 1, resp.Turn, "rejections never bump the turn counter")
	assert.Len(t, resp.Session.Messages, 2, "rejected content is never appended")
}

func TestEngine_RejectionDoesNotPersistCallerIdentity(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	resp, err := engine.ProcessMessage(ctx, "hello there, thank you")
	require.NoError(t, err)
	sessionID := resp.SessionID

	resp, err = engine.ProcessMessage(ctx, "<script>alert(1)</script>", func(o *ProcessOptions) {
		o.SessionID = sessionID
		o.CustomerID = "CUST-999"
	})
	require.NoError(t, err)
	require.True(t, resp.Rejected)
	var vr *core.ValidationRejected
	assert.ErrorAs(t, resp.Err(), &vr)

	snap, err := engine.Store().Snapshot(sessionID)
	require.NoError(t, err)
	assert.NotContains(t, snap.State, "customer_id", "identity from a rejected request must not reach session state")
	assert.Len(t, snap.Messages, 2)

	// The same identity on an accepted follow-up persists normally.
	resp, err = engine.ProcessMessage(ctx, "thanks again", func(o *ProcessOptions) {
		o.SessionID = sessionID
		o.CustomerID = "CUST-999"
	})
	require.NoError(t, err)
	assert.False(t, resp.Rejected)
	assert.Equal(t, "CUST-999", resp.Session.State["customer_id"])
}

func TestEngine_TruncationMetadata(t *testing.T) {
	engine := newTestEngine(t, func(o *Options) { o.MaxContentLength = 20 })

	resp, err := engine.ProcessMessage(context.Background(), strings.Repeat("word ", 20))
	require.NoError(t, err)
	assert.False(t, resp.Rejected)
	assert.Equal(t, true, resp.Metadata["truncated"])
	assert.Len(t, resp.Session.Messages[0].Content, 20)
}

func TestEngine_CustomerIDFlowsIntoStateAndTools(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.ProcessMessage(context.Background(), "I have a problem, please help", func(o *ProcessOptions) {
		o.CustomerID = "CUST-77"
	})
	require.NoError(t, err)

	assert.Equal(t, "CUST-77", resp.Session.State["customer_id"])
	require.Len(t, resp.Session.Audit, 1)
	assert.Equal(t, "create_support_ticket", resp.Session.Audit[0].Name)
	assert.Equal(t, "CUST-77", resp.Session.Audit[0].Arguments["customer_id"])
}

func TestEngine_GreetingUsesSessionState(t *testing.T) {
	engine := newTestEngine(t)

	sess, err := engine.Store().GetOrCreate("s-greet")
	require.NoError(t, err)
	require.NoError(t, engine.UpdateSessionState(sess.ID, "customer_name", "Ada"))

	resp, err := engine.ProcessMessage(context.Background(), "good morning", func(o *ProcessOptions) {
		o.SessionID = sess.ID
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Message.Content, "Hi Ada! "), "got %q", resp.Message.Content)

	// The greeting only decorates the first turn.
	resp, err = engine.ProcessMessage(context.Background(), "good evening", func(o *ProcessOptions) {
		o.SessionID = sess.ID
	})
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(resp.Message.Content, "Hi Ada!"))
}

func TestEngine_PlainTextPath(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.ProcessMessage(context.Background(), "good afternoon")
	require.NoError(t, err)
	assert.Empty(t, resp.Session.Audit, "no keyword match means no tool")
	assert.Contains(t, resp.Message.Content, "How can I help you today?")
}

func TestEngine_DegradedOnToolFailure(t *testing.T) {
	broken := tool.NewFunctionTool("broken_lookup", "always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.PipelineContext, _ map[string]any) (any, error) {
			return nil, errors.New("backend down")
		},
	)
	engine, err := New(func(o *Options) {
		o.Tools = []core.Tool{broken}
		o.Resolver = intent.NewKeywordResolver(intent.Rule{Tool: "broken_lookup", Keywords: []string{"lookup"}})
	})
	require.NoError(t, err)

	resp, err := engine.ProcessMessage(context.Background(), "lookup my account")
	require.NoError(t, err, "tool failure degrades the reply, it does not abort the request")
	assert.True(t, resp.Degraded)
	assert.Equal(t, "broken_lookup", resp.DegradedReason)
	assert.Contains(t, resp.Message.Content, "broken_lookup")
	assert.Equal(t, 1, resp.Turn, "degraded turns still complete")
	assert.Equal(t, int64(1), resp.Metrics.ErrorCount)
}

func TestEngine_UnknownToolDegrades(t *testing.T) {
	engine, err := New(func(o *Options) {
		o.Resolver = intent.NewKeywordResolver(intent.Rule{Tool: "ghost", Keywords: []string{"ghost"}})
	})
	require.NoError(t, err)

	resp, err := engine.ProcessMessage(context.Background(), "summon the ghost")
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "ghost", resp.DegradedReason)
}

func TestEngine_ClosedSessionIsError(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	resp, err := engine.ProcessMessage(ctx, "hello")
	require.NoError(t, err)
	require.NoError(t, engine.CloseSession(resp.SessionID))

	st, err := engine.SessionStatus(resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusClosed, st)

	_, err = engine.ProcessMessage(ctx, "anyone home?", func(o *ProcessOptions) {
		o.SessionID = resp.SessionID
	})
	var unavailable *core.SessionUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, core.StatusClosed, unavailable.Status)
}

func TestEngine_ExpireSession(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.NoError(t, engine.ExpireSession(resp.SessionID))

	_, err = engine.ProcessMessage(context.Background(), "still there?", func(o *ProcessOptions) {
		o.SessionID = resp.SessionID
	})
	var unavailable *core.SessionUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, core.StatusExpired, unavailable.Status)
}

func TestEngine_InternalStageFailureIsError(t *testing.T) {
	engine, err := New(func(o *Options) {
		o.Resolver = &panickingResolver{}
	})
	require.NoError(t, err)

	// A panicking resolver runs inside the terminal handler; the innermost
	// stage wrapper converts the panic into an internal pipeline error.
	_, err = engine.ProcessMessage(context.Background(), "hello")
	var pipeErr *core.InternalPipelineError
	require.ErrorAs(t, err, &pipeErr)
}

type failingResolver struct{ err error }

func (r *failingResolver) Resolve(context.Context, *core.PipelineContext) (intent.Decision, error) {
	return intent.Decision{}, r.err
}

type panickingResolver struct{}

func (r *panickingResolver) Resolve(context.Context, *core.PipelineContext) (intent.Decision, error) {
	panic("resolver bug")
}

func TestEngine_ResolverErrorDegrades(t *testing.T) {
	engine, err := New(func(o *Options) {
		o.Resolver = &failingResolver{err: errors.New("model unreachable")}
	})
	require.NoError(t, err)

	resp, err := engine.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "intent resolution", resp.DegradedReason)
	require.NotNil(t, resp.Message)
}

func TestEngine_ConcurrentSessionsIsolated(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	const sessions = 8
	const turns = 5

	var wg sync.WaitGroup
	errCh := make(chan error, sessions*turns)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%d", n)
			for j := 0; j < turns; j++ {
				_, err := engine.ProcessMessage(ctx, "thank you, great service", func(o *ProcessOptions) {
					o.SessionID = id
				})
				if err != nil {
					errCh <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < sessions; i++ {
		snap, err := engine.Store().Snapshot(fmt.Sprintf("sess-%d", i))
		require.NoError(t, err)
		assert.Equal(t, turns, snap.TurnCounter)
		assert.Len(t, snap.Messages, turns*2)
		for j, m := range snap.Messages {
			assert.Equal(t, j, m.Sequence)
		}
	}

	snap := engine.MetricsSnapshot()
	assert.Equal(t, int64(sessions*turns), snap.TotalRequests)
}

func TestEngine_ExportJSONRoundTrip(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.ProcessMessage(context.Background(), "Help me reset my password", func(o *ProcessOptions) {
		o.CustomerID = "CUST-5"
	})
	require.NoError(t, err)

	doc, err := engine.ExportConversation(resp.SessionID, ExportJSON)
	require.NoError(t, err)

	var snap core.SessionSnapshot
	require.NoError(t, json.Unmarshal([]byte(doc), &snap))
	assert.Equal(t, resp.SessionID, snap.ID)
	assert.Equal(t, 1, snap.TurnCounter)
	assert.Len(t, snap.Messages, 2)
	assert.Equal(t, "CUST-5", snap.State["customer_id"])
	require.Len(t, snap.Audit, 1)
	assert.Equal(t, "search_knowledge_base", snap.Audit[0].Name)
}

func TestEngine_ExportText(t *testing.T) {
	engine := newTestEngine(t)

	resp, err := engine.ProcessMessage(context.Background(), "What's your shipping policy?")
	require.NoError(t, err)

	out, err := engine.ExportConversation(resp.SessionID, ExportText)
	require.NoError(t, err)
	assert.Contains(t, out, "Conversation "+resp.SessionID)
	assert.Contains(t, out, "Turns: 1")
	assert.Contains(t, out, "USER [")
	assert.Contains(t, out, "ASSISTANT [")
	assert.Contains(t, out, "Tools used:")
	assert.Contains(t, out, "search_knowledge_base")
}

func TestEngine_ExportUnknownFormat(t *testing.T) {
	engine := newTestEngine(t)
	resp, err := engine.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)

	_, err = engine.ExportConversation(resp.SessionID, "xml")
	assert.Error(t, err)

	_, err = engine.ExportConversation("ghost", ExportJSON)
	var notFound *core.SessionNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestEngine_ExportAfterClose(t *testing.T) {
	engine := newTestEngine(t)
	resp, err := engine.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.NoError(t, engine.CloseSession(resp.SessionID))

	doc, err := engine.ExportConversation(resp.SessionID, ExportJSON)
	require.NoError(t, err)
	assert.Contains(t, doc, string(core.StatusClosed))
}

func TestEngine_RegisterToolDuplicate(t *testing.T) {
	engine := newTestEngine(t)
	dup := tool.NewFunctionTool("search_knowledge_base", "clash",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ *core.PipelineContext, _ map[string]any) (any, error) { return nil, nil },
	)
	assert.Error(t, engine.RegisterTool(dup))
	assert.Len(t, engine.Tools(), 5)
}

func TestEngine_MetricsAccumulate(t *testing.T) {
	engine := newTestEngine(t, func(o *Options) { o.SentimentWindow = 2 })
	ctx := context.Background()

	for _, msg := range []string{"great service", "terrible support", "thank you"} {
		_, err := engine.ProcessMessage(ctx, msg)
		require.NoError(t, err)
	}

	snap := engine.MetricsSnapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Len(t, snap.SentimentWindow, 2, "window evicts FIFO past capacity")
	assert.Equal(t, []float64{-1, 1}, snap.SentimentWindow)
	assert.Greater(t, snap.AverageLatency, time.Duration(0))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.SentimentWindow = 5
	cfg.Routes = []config.Route{
		{Tool: "search_knowledge_base", Keywords: []string{"wifi"}, Query: "technical support"},
	}

	engine, _, err := FromConfig(cfg)
	require.NoError(t, err)

	resp, err := engine.ProcessMessage(context.Background(), "my wifi is down")
	require.NoError(t, err)
	require.Len(t, resp.Session.Audit, 1)
	assert.Equal(t, "search_knowledge_base", resp.Session.Audit[0].Name)
	assert.Contains(t, resp.Message.Content, "Technical Support")

	// Configured routes replace the stock table entirely.
	resp, err = engine.ProcessMessage(context.Background(), "reset my password")
	require.NoError(t, err)
	assert.Empty(t, resp.Session.Audit)
}
