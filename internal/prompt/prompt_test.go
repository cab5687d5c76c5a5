package prompt

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productivity/taskr/internal/models"
)

func TestPromptsRefuseWithoutTerminal(t *testing.T) {
	if Interactive() {
		t.Skip("running attached to a terminal")
	}

	_, err := Login("alice")
	assert.ErrorIs(t, err, ErrNotInteractive)

	_, err = Register()
	assert.ErrorIs(t, err, ErrNotInteractive)

	in := models.TaskInput{Title: "x"}
	out, err := Task("New task", in)
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.Equal(t, in, out)

	ok, err := Confirm("Delete?", true)
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.True(t, ok, "falls back to the default")

	ok, err = ConfirmDangerous("Delete?")
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.False(t, ok)
}

func TestSpinnerRunsWithoutTerminal(t *testing.T) {
	if Interactive() {
		t.Skip("running attached to a terminal")
	}
	res, err := NewSpinner("Waiting", nil).Run(func() (string, error) { return "done", nil })
	require.NoError(t, err)
	assert.Equal(t, "done", res)

	boom := errors.New("boom")
	_, err = NewSpinner("Waiting", nil).Run(func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestSpinnerModel(t *testing.T) {
	m := newSpinnerModel("Waiting for login")
	assert.Contains(t, m.View(), "Waiting for login")

	next, cmd := m.Update(spinnerDoneMsg{result: "Logged in"})
	require.NotNil(t, cmd)
	assert.Contains(t, next.View(), "Logged in")

	next, _ = m.Update(spinnerDoneMsg{err: errors.New("expired")})
	assert.Contains(t, next.View(), "expired")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, next.(spinnerModel).quitting)
	assert.Empty(t, next.View())
}

func TestRequired(t *testing.T) {
	assert.Error(t, required("  "))
	assert.NoError(t, required("x"))
}
