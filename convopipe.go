// Package convopipe is a conversation-processing engine: inbound messages
// pass through an interceptor pipeline (logging, validation, enrichment,
// analytics) wrapped around intent resolution and tool dispatch, with
// session state, metrics and conversation export handled by the engine.
//
// Basic usage:
//
//	engine, toolset, err := convopipe.NewSupportEngine()
//	if err != nil { ... }
//	resp, err := engine.ProcessMessage(ctx, "Help me reset my password")
//
// The engine serializes turns per session; distinct sessions process fully
// in parallel. Everything is held in memory; durability beyond process
// lifetime is out of scope.
package convopipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/convopipe/config"
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/intent"
	"github.com/hupe1980/convopipe/internal/util"
	"github.com/hupe1980/convopipe/logging"
	"github.com/hupe1980/convopipe/metrics"
	"github.com/hupe1980/convopipe/pipeline"
	"github.com/hupe1980/convopipe/session"
	"github.com/hupe1980/convopipe/support"
	"github.com/hupe1980/convopipe/tool"
)

// Export formats accepted by ExportConversation.
const (
	ExportJSON = "json"
	ExportText = "text"
)

// DefaultPlainReply is the assistant text for the plain-text path when the
// resolver supplied none. Rendered as a template over session state.
const DefaultPlainReply = "Thank you for your message. How can I help you today?"

// DefaultGreeting is prefixed to the first reply of a session. Rendered as a
// template over session state, so a stored customer_name personalizes it.
const DefaultGreeting = "{{if .customer_name}}Hi {{.customer_name}}! {{end}}"

// Options configures an Engine. Zero values fall back to in-memory
// collaborators and the documented defaults.
type Options struct {
	// Logger receives engine, pipeline and tool events. Defaults to NoOpLogger.
	Logger logging.Logger
	// Store holds sessions. Defaults to session.NewInMemoryStore.
	Store core.SessionStore
	// Resolver maps requests to tool decisions. Defaults to an empty keyword
	// resolver (every request takes the plain-text path).
	Resolver intent.Resolver
	// Aggregator collects metrics. Defaults to a fresh aggregator sized by
	// SentimentWindow.
	Aggregator *metrics.Aggregator
	// Tools are registered at construction. Duplicate names fail New.
	Tools []core.Tool
	// DenyList overrides the validation deny substrings.
	DenyList []string
	// MaxContentLength overrides the truncation limit.
	MaxContentLength int
	// SentimentWindow overrides the rolling window capacity.
	SentimentWindow int
	// ToolTimeout bounds a single tool invocation.
	ToolTimeout time.Duration
	// PlainReply overrides the plain-text path reply template.
	PlainReply string
	// Greeting overrides the first-turn greeting template.
	Greeting string
}

// Engine is the conversation engine façade. Construct once with New and
// share across goroutines; all methods are safe for concurrent use.
type Engine struct {
	store      core.SessionStore
	registry   *tool.Registry
	dispatcher *tool.Dispatcher
	resolver   intent.Resolver
	aggregator *metrics.Aggregator
	pipeline   *pipeline.Pipeline
	logger     logging.Logger
	plainReply string
	greeting   string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs an engine with the given option overrides. Tool
// registration failures (duplicate or empty names) surface here.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Logger:           logging.NoOpLogger{},
		DenyList:         pipeline.DefaultDenyList(),
		MaxContentLength: pipeline.DefaultMaxContentLength,
		SentimentWindow:  metrics.DefaultSentimentWindow,
		ToolTimeout:      tool.DefaultTimeout,
		PlainReply:       DefaultPlainReply,
		Greeting:         DefaultGreeting,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Store == nil {
		opts.Store = session.NewInMemoryStore()
	}
	if opts.Aggregator == nil {
		opts.Aggregator = metrics.NewAggregator(opts.SentimentWindow)
	}
	if opts.Resolver == nil {
		opts.Resolver = intent.NewKeywordResolver()
	}

	registry := tool.NewRegistry()
	for _, t := range opts.Tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("register tool: %w", err)
		}
	}

	dispatcher := tool.NewDispatcher(registry, func(o *tool.DispatcherOptions) {
		o.Timeout = opts.ToolTimeout
		o.Logger = opts.Logger
	})

	chain := pipeline.New(opts.Logger,
		pipeline.NewLoggingStage(opts.Logger, opts.Aggregator.RequestLog()),
		pipeline.NewValidationStage(opts.DenyList, opts.MaxContentLength, opts.Logger),
		pipeline.NewEnrichmentStage(),
		pipeline.NewAnalyticsStage(opts.Aggregator),
	)

	return &Engine{
		store:      opts.Store,
		registry:   registry,
		dispatcher: dispatcher,
		resolver:   opts.Resolver,
		aggregator: opts.Aggregator,
		pipeline:   chain,
		logger:     opts.Logger,
		plainReply: opts.PlainReply,
		greeting:   opts.Greeting,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// NewSupportEngine constructs an engine wired with the stock support
// collaborators: the five support tools backed by the returned toolset and
// the keyword resolver over the stock route table.
func NewSupportEngine(optFns ...func(o *Options)) (*Engine, *support.Toolset, error) {
	toolset := support.NewToolset()
	base := func(o *Options) {
		o.Tools = toolset.Tools()
		o.Resolver = intent.NewKeywordResolver(support.DefaultRules()...)
	}
	engine, err := New(append([]func(o *Options){base}, optFns...)...)
	if err != nil {
		return nil, nil, err
	}
	return engine, toolset, nil
}

// FromConfig builds a support engine from a loaded configuration. Configured
// routes replace the stock rule table; everything else maps onto Options.
func FromConfig(cfg config.Config, optFns ...func(o *Options)) (*Engine, *support.Toolset, error) {
	base := func(o *Options) {
		o.Logger = logging.NewLogger(&logging.LoggerConfig{
			Level:  logging.ParseLevel(cfg.LogLevel),
			Format: "json",
		})
		if len(cfg.DenyList) > 0 {
			o.DenyList = cfg.DenyList
		}
		if cfg.MaxContentLength > 0 {
			o.MaxContentLength = cfg.MaxContentLength
		}
		if cfg.SentimentWindow > 0 {
			o.SentimentWindow = cfg.SentimentWindow
		}
		if cfg.ToolTimeout > 0 {
			o.ToolTimeout = cfg.ToolTimeout.Std()
		}
		if len(cfg.Routes) > 0 {
			o.Resolver = intent.NewKeywordResolver(support.RulesFromRoutes(cfg.Routes)...)
		}
	}
	return NewSupportEngine(append([]func(o *Options){base}, optFns...)...)
}

// ProcessOptions carries per-request overrides for ProcessMessage.
type ProcessOptions struct {
	// SessionID targets an existing session; empty starts a new one.
	SessionID string
	// CustomerID is persisted into session state and made available to tools.
	CustomerID string
	// Caller is externally supplied context merged into the request metadata
	// bag by the enrichment stage.
	Caller map[string]any
}

// ProcessMessage runs one inbound message through the pipeline and returns
// the structured response. Rejections and tool degradation are response
// fields, not errors; a terminal session or an internal stage failure is an
// error. Turns on the same session are serialized, distinct sessions run in
// parallel.
func (e *Engine) ProcessMessage(ctx context.Context, content string, optFns ...func(o *ProcessOptions)) (*core.Response, error) {
	var opts ProcessOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	sess, err := e.store.GetOrCreate(opts.SessionID)
	if err != nil {
		return nil, err
	}
	if st := sess.CurrentStatus(); st.Terminal() {
		return nil, &core.SessionUnavailable{ID: sess.ID, Status: st}
	}

	lock := e.sessionLock(sess.ID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the turn lock: a concurrent Close may have won.
	if st := sess.CurrentStatus(); st.Terminal() {
		return nil, &core.SessionUnavailable{ID: sess.ID, Status: st}
	}

	pc := core.NewPipelineContext(ctx, sess, e.store, core.NewMessage(core.RoleUser, content))
	pc.Caller = callerBag(opts)

	res, err := e.pipeline.Run(pc, e.terminal)
	if err != nil {
		return nil, err
	}

	// Response metadata is the request bag overlaid with result annotations.
	md := make(map[string]any, len(pc.Metadata)+len(res.Metadata))
	for k, v := range pc.Metadata {
		md[k] = v
	}
	for k, v := range res.Metadata {
		md[k] = v
	}

	snap := sess.Snapshot()
	resp := &core.Response{
		RequestID:   pc.RequestID,
		SessionID:   sess.ID,
		Turn:        snap.TurnCounter,
		Session:     snap,
		Metrics:     e.aggregator.Snapshot(),
		Metadata:    md,
		ProcessedAt: time.Now().UTC(),
	}
	if res.Rejected {
		resp.Rejected = true
		resp.Violation = res.Violation
		return resp, nil
	}
	resp.Degraded = res.Degraded
	resp.DegradedReason = res.DegradedReason
	if n := len(snap.Messages); n > 0 {
		resp.Message = &snap.Messages[n-1]
	}
	return resp, nil
}

func callerBag(opts ProcessOptions) map[string]any {
	if opts.CustomerID == "" {
		return opts.Caller
	}
	bag := make(map[string]any, len(opts.Caller)+1)
	for k, v := range opts.Caller {
		bag[k] = v
	}
	bag[support.StateCustomerID] = opts.CustomerID
	return bag
}

// terminal is the innermost handler: it persists the user message, resolves
// intent, dispatches at most one tool and assembles the reply. Runs with the
// full interceptor chain wrapped around it.
func (e *Engine) terminal(pc *core.PipelineContext) (*core.Result, error) {
	firstTurn := pc.Session.Snapshot().TurnCounter == 0

	// Caller identity reaches session state only here, after validation has
	// accepted the request; a rejected request never writes state.
	if id, ok := pc.Metadata[support.StateCustomerID].(string); ok && id != "" {
		if err := pc.Store.UpdateState(pc.Session.ID, support.StateCustomerID, id); err != nil {
			return nil, err
		}
	}

	if _, err := pc.Store.Append(pc.Session.ID, pc.Inbound); err != nil {
		return nil, err
	}

	res := &core.Result{Metadata: map[string]any{}}

	decision, err := e.resolver.Resolve(pc.Context, pc)
	if err != nil {
		e.logger.Warn("engine.resolve.failed", "request_id", pc.RequestID, "error", err.Error())
		res.Degraded = true
		res.DegradedReason = "intent resolution"
		decision = intent.Decision{}
	}

	var reply string
	switch {
	case decision.IsToolCall():
		reply = e.dispatch(pc, res, decision)
	case decision.Text != "":
		reply = decision.Text
	default:
		reply = e.render(pc, e.plainReply)
	}

	if firstTurn {
		reply = e.render(pc, e.greeting) + reply
	}
	res.Reply = reply

	assistant := core.NewMessage(core.RoleAssistant, reply)
	if inv := pc.Invocation(); inv != nil {
		assistant = assistant.WithMetadata("tool", inv.Name)
	}
	if _, err := pc.Store.Append(pc.Session.ID, assistant); err != nil {
		return nil, err
	}
	if _, err := pc.Store.CompleteTurn(pc.Session.ID); err != nil {
		return nil, err
	}
	return res, nil
}

// dispatch invokes the decided tool and converts the outcome into reply
// text. Tool failures degrade the response instead of aborting the turn.
func (e *Engine) dispatch(pc *core.PipelineContext, res *core.Result, decision intent.Decision) string {
	inv, err := e.dispatcher.Invoke(pc, decision.Tool, decision.Arguments)
	if inv != nil {
		res.Invocation = inv
	}
	if err == nil {
		return formatToolReply(inv)
	}

	var already *core.AlreadyInvoked
	if errors.As(err, &already) {
		res.Annotate("already_invoked", already.Name)
		if first := pc.Invocation(); first != nil && first.Succeeded() {
			res.Invocation = first
			return formatToolReply(first)
		}
	}

	res.Degraded = true
	res.DegradedReason = decision.Tool
	return fmt.Sprintf("I'm sorry, the %s capability is temporarily unavailable. Please try again shortly.", decision.Tool)
}

// render substitutes session state into a reply template, falling back to
// the raw text when rendering fails.
func (e *Engine) render(pc *core.PipelineContext, text string) string {
	snap := pc.Session.Snapshot()
	rendered, err := util.RenderTemplate(text, snap.State)
	if err != nil {
		e.logger.Warn("engine.template.failed", "request_id", pc.RequestID, "error", err.Error())
		return text
	}
	return rendered
}

// formatToolReply turns a tool result into assistant text: string results
// pass through, maps prefer their message field, anything else is rendered
// as JSON.
func formatToolReply(inv *core.ToolInvocation) string {
	switch v := inv.Result.(type) {
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	}
	data, err := json.Marshal(inv.Result)
	if err != nil {
		return fmt.Sprintf("%v", inv.Result)
	}
	return string(data)
}

// ExportConversation renders a session snapshot in the requested format:
// ExportJSON round-trips into the snapshot shapes, ExportText renders a
// human-readable transcript. Terminal sessions remain exportable.
func (e *Engine) ExportConversation(id, format string) (string, error) {
	snap, err := e.store.Snapshot(id)
	if err != nil {
		return "", err
	}
	switch format {
	case ExportJSON:
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case ExportText:
		return renderTranscript(snap), nil
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}
}

func renderTranscript(snap *core.SessionSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation %s\n", snap.ID)
	fmt.Fprintf(&b, "Status: %s | Turns: %d | Messages: %d\n", snap.Status, snap.TurnCounter, len(snap.Messages))
	if len(snap.State) > 0 {
		b.WriteString("State:")
		for _, k := range sortedKeys(snap.State) {
			fmt.Fprintf(&b, " %s=%v", k, snap.State[k])
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for _, msg := range snap.Messages {
		fmt.Fprintf(&b, "%s [%s]: %s\n", strings.ToUpper(string(msg.Role)), msg.Timestamp.Format(time.RFC3339), msg.Content)
	}
	if len(snap.Audit) > 0 {
		b.WriteString("\nTools used:\n")
		for _, inv := range snap.Audit {
			outcome := "ok"
			if !inv.Succeeded() {
				outcome = "error: " + inv.Error
			}
			fmt.Fprintf(&b, "- %s (%s)\n", inv.Name, outcome)
		}
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetricsSnapshot returns a consistent read-only view of all counters, the
// sentiment window and the average request latency.
func (e *Engine) MetricsSnapshot() core.MetricsSnapshot {
	return e.aggregator.Snapshot()
}

// RegisterTool adds a tool to the engine's registry. Intended for startup
// wiring; duplicate names fail loudly.
func (e *Engine) RegisterTool(t core.Tool) error {
	return e.registry.Register(t)
}

// Tools returns the registered tool names.
func (e *Engine) Tools() []string { return e.registry.Names() }

// Store exposes the session store for state seeding and snapshots.
func (e *Engine) Store() core.SessionStore { return e.store }

// UpdateSessionState sets a session state key. Last write wins.
func (e *Engine) UpdateSessionState(id, key string, value any) error {
	return e.store.UpdateState(id, key, value)
}

// CloseSession transitions the session to CLOSED. Terminal.
func (e *Engine) CloseSession(id string) error { return e.store.Close(id) }

// ExpireSession transitions the session to EXPIRED. Called by an external
// TTL sweep; the engine never schedules expiry itself. Terminal.
func (e *Engine) ExpireSession(id string) error { return e.store.Expire(id) }

// SessionStatus reports the session's lifecycle state.
func (e *Engine) SessionStatus(id string) (core.Status, error) { return e.store.Status(id) }

// sessionLock returns the per-session turn mutex, creating it on first use.
// Lock entries live as long as the engine; sessions are cheap and bounded by
// process lifetime anyway.
func (e *Engine) sessionLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}
