package pipeline

import (
	"strings"
	"testing"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidation(t *testing.T, stage *ValidationStage, content string) (*core.PipelineContext, *core.Result, error) {
	t.Helper()
	store, sess := testutil.SeededStore("s1")
	pc := testutil.Context(store, sess, content)
	res, err := stage.Handle(pc, func(pc *core.PipelineContext) (*core.Result, error) {
		return &core.Result{Reply: "ok"}, nil
	})
	return pc, res, err
}

func TestValidationStage_DenyList(t *testing.T) {
	stage := NewValidationStage(DefaultDenyList(), 0, nil)

	tests := []struct {
		name      string
		content   string
		violation string
	}{
		{"script tag", "hello <script>alert(1)</script>", "<script>"},
		{"sql drop", "how do I drop table users", "DROP TABLE"},
		{"sql delete", "DELETE FROM accounts WHERE 1=1", "DELETE FROM"},
		{"path traversal", "read ../../etc/passwd please", "../../"},
		{"case folded", "<SCRIPT>alert(1)</SCRIPT>", "<script>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res, err := runValidation(t, stage, tt.content)
			require.NoError(t, err)
			assert.True(t, res.Rejected)
			assert.Equal(t, tt.violation, res.Violation)
		})
	}
}

func TestValidationStage_CleanContentPasses(t *testing.T) {
	stage := NewValidationStage(DefaultDenyList(), 0, nil)
	pc, res, err := runValidation(t, stage, "Help me reset my password")
	require.NoError(t, err)
	assert.False(t, res.Rejected)
	assert.Equal(t, "ok", res.Reply)
	_, truncated := pc.GetMetadata(MetadataTruncated)
	assert.False(t, truncated)
}

func TestValidationStage_Truncation(t *testing.T) {
	stage := NewValidationStage(nil, 10, nil)
	pc, res, err := runValidation(t, stage, strings.Repeat("a", 25))
	require.NoError(t, err)
	assert.False(t, res.Rejected, "over-length content is truncated, not rejected")
	assert.Len(t, pc.Inbound.Content, 10)

	v, ok := pc.GetMetadata(MetadataTruncated)
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestValidationStage_TruncationCountsRunes(t *testing.T) {
	stage := NewValidationStage(nil, 4, nil)
	pc, _, err := runValidation(t, stage, "héllö wörld")
	require.NoError(t, err)
	assert.Equal(t, "héll", pc.Inbound.Content)
}

func TestValidationStage_DenyCheckBeforeTruncation(t *testing.T) {
	// The blocked pattern sits beyond the truncation limit; the deny-check
	// must still see it because it runs first on the full content.
	stage := NewValidationStage(DefaultDenyList(), 10, nil)
	_, res, err := runValidation(t, stage, strings.Repeat("x", 20)+"<script>")
	require.NoError(t, err)
	assert.True(t, res.Rejected)
}

func TestValidationStage_ExactLimitUntouched(t *testing.T) {
	stage := NewValidationStage(nil, 5, nil)
	pc, _, err := runValidation(t, stage, "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", pc.Inbound.Content)
	_, truncated := pc.GetMetadata(MetadataTruncated)
	assert.False(t, truncated)
}
