// Package testutil provides small builders shared by the test suites.
package testutil

import (
	"context"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/session"
)

// UserMessage builds an unsequenced user message.
func UserMessage(content string) core.Message {
	return core.NewMessage(core.RoleUser, content)
}

// AssistantMessage builds an unsequenced assistant message.
func AssistantMessage(content string) core.Message {
	return core.NewMessage(core.RoleAssistant, content)
}

// SeededStore returns an in-memory store holding one session with the given
// user messages already appended, plus the session itself.
func SeededStore(id string, contents ...string) (*session.InMemoryStore, *core.Session) {
	store := session.NewInMemoryStore()
	sess, _ := store.GetOrCreate(id)
	for _, c := range contents {
		_, _ = store.Append(sess.ID, UserMessage(c))
	}
	return store, sess
}

// Context builds a pipeline context over sess backed by store.
func Context(store core.SessionStore, sess *core.Session, content string) *core.PipelineContext {
	return core.NewPipelineContext(context.Background(), sess, store, UserMessage(content))
}
