package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AssignsPendingStatusAndID(t *testing.T) {
	tk := New(TypeConvert, []Source{{Kind: SourceFile, Filename: "a.pdf", Base64: "Zm9v"}}, Options{}, Target{Kind: TargetInBody})
	require.NotEmpty(t, tk.ID)
	assert.Equal(t, StatusPending, tk.Status)
	assert.False(t, tk.CreatedAt.IsZero())
}

func TestMarkStarted_SetsStartedAtOnce(t *testing.T) {
	tk := New(TypeConvert, nil, Options{}, Target{})
	tk.MarkStarted()
	first := tk.StartedAt
	require.NotNil(t, first)

	tk.MarkStarted()
	assert.Same(t, first, tk.StartedAt, "a second MarkStarted must not move StartedAt")
}

func TestMarkSuccess_IsTerminalAndIdempotent(t *testing.T) {
	tk := New(TypeConvert, nil, Options{}, Target{})
	tk.MarkSuccess("handle-1")
	assert.Equal(t, StatusSuccess, tk.Status)
	assert.Equal(t, "handle-1", tk.ResultHandle)
	assert.True(t, tk.Status.IsTerminal())

	// Once terminal, further transitions are no-ops.
	tk.MarkFailure("should not apply")
	assert.Equal(t, StatusSuccess, tk.Status)
	assert.Empty(t, tk.ErrorMessage)
}

func TestMarkFailure_SetsErrorMessage(t *testing.T) {
	tk := New(TypeConvert, nil, Options{}, Target{})
	tk.MarkFailure("boom")
	assert.Equal(t, StatusFailure, tk.Status)
	assert.Equal(t, "boom", tk.ErrorMessage)
}

func TestMarkFailure_DefaultsEmptyMessage(t *testing.T) {
	tk := New(TypeConvert, nil, Options{}, Target{})
	tk.MarkFailure("")
	assert.NotEmpty(t, tk.ErrorMessage)
}

func TestProcessingMeta_InvariantHolds(t *testing.T) {
	var m ProcessingMeta
	m.NumDocs = 3
	m.IncSucceeded()
	m.IncFailed()
	m.IncSucceeded()
	assert.Equal(t, m.NumSucceeded+m.NumFailed, m.NumProcessed)
	assert.Equal(t, 2, m.NumSucceeded)
	assert.Equal(t, 1, m.NumFailed)
}

func TestSnapshot_IsIndependentOfOriginal(t *testing.T) {
	tk := New(TypeConvert, []Source{{Kind: SourceFile, Filename: "a.pdf"}}, Options{}, Target{})
	snap := tk.Snapshot()

	tk.MarkStarted()
	assert.Equal(t, StatusPending, snap.Status, "snapshot must not observe later mutation")

	snap.Sources[0].Filename = "mutated"
	assert.Equal(t, "a.pdf", tk.Sources[0].Filename, "snapshot's Sources slice must be a copy")
}

func TestSnapshot_Nil(t *testing.T) {
	var tk *Task
	assert.Nil(t, tk.Snapshot())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusStarted.IsTerminal())
	assert.True(t, StatusSuccess.IsTerminal())
	assert.True(t, StatusFailure.IsTerminal())
}
