package prompt

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCanceled is returned when the user quits a spinner with q or ctrl+c.
var ErrCanceled = errors.New("canceled")

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1a73e8", Dark: "#8ab4f8"})
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1e8e3e", Dark: "#81c995"})
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#d93025", Dark: "#f28b82"})
)

type spinnerModel struct {
	spinner  spinner.Model
	message  string
	done     bool
	result   string
	err      error
	quitting bool
}

type spinnerDoneMsg struct {
	result string
	err    error
}

func newSpinnerModel(message string) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return spinnerModel{spinner: s, message: message}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case spinnerDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	switch {
	case m.quitting:
		return ""
	case m.done && m.err != nil:
		return failureStyle.Render("✗ "+m.err.Error()) + "\n"
	case m.done:
		return successStyle.Render("✓ "+m.result) + "\n"
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), m.message)
}

// Spinner shows an animated message while a function runs.
type Spinner struct {
	message string
	out     io.Writer
}

// NewSpinner creates a spinner. out receives the rendering (stderr when nil).
func NewSpinner(message string, out io.Writer) *Spinner {
	return &Spinner{message: message, out: out}
}

// Run executes fn while displaying the spinner. Without a terminal fn runs
// with no animation.
func (s *Spinner) Run(fn func() (string, error)) (string, error) {
	if !Interactive() {
		return fn()
	}
	opts := []tea.ProgramOption{}
	if s.out != nil {
		opts = append(opts, tea.WithOutput(s.out))
	}
	p := tea.NewProgram(newSpinnerModel(s.message), opts...)

	go func() {
		result, err := fn()
		time.Sleep(100 * time.Millisecond)
		p.Send(spinnerDoneMsg{result: result, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m := final.(spinnerModel) //nolint:errcheck // the program only ever holds a spinnerModel
	if m.quitting {
		return "", ErrCanceled
	}
	return m.result, m.err
}
