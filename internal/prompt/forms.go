// Package prompt provides the interactive forms shown in a terminal.
package prompt

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/x/term"

	"github.com/productivity/taskr/internal/dateparse"
	"github.com/productivity/taskr/internal/models"
)

// ErrNotInteractive is returned when a prompt is needed but stdin is not a terminal.
var ErrNotInteractive = errors.New("not an interactive terminal")

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return term.IsTerminal(os.Stdin.Fd()) && term.IsTerminal(os.Stdout.Fd())
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("this field is required")
	}
	return nil
}

// Credentials collects a username and password.
type Credentials struct {
	Username string
	Password string
}

// Login shows the login form. username pre-fills the first field.
func Login(username string) (Credentials, error) {
	if !Interactive() {
		return Credentials{}, ErrNotInteractive
	}
	c := Credentials{Username: username}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(&c.Username).
				Validate(required),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&c.Password).
				Validate(required),
		).Title("Log in to taskr"),
	)
	if err := form.Run(); err != nil {
		return Credentials{}, err
	}
	c.Username = strings.TrimSpace(c.Username)
	return c, nil
}

// Registration collects the fields of a new account.
type Registration struct {
	Username string
	Email    string
	Password string
}

// Register shows the sign-up form. The password is entered twice.
func Register() (Registration, error) {
	if !Interactive() {
		return Registration{}, ErrNotInteractive
	}
	var r Registration
	var confirm string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Username").Value(&r.Username).Validate(required),
			huh.NewInput().Title("Email").Value(&r.Email).Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter a valid email address")
				}
				return nil
			}),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&r.Password).Validate(required),
			huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&confirm).Validate(func(s string) error {
				if s != r.Password {
					return errors.New("passwords do not match")
				}
				return nil
			}),
		).Title("Create an account"),
	)
	if err := form.Run(); err != nil {
		return Registration{}, err
	}
	return r, nil
}

// Task shows the create/edit task form pre-filled from in.
func Task(title string, in models.TaskInput) (models.TaskInput, error) {
	if !Interactive() {
		return in, ErrNotInteractive
	}
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	if in.Category == "" {
		in.Category = models.CategoryWork
	}
	if in.State == "" {
		in.State = models.StateToDo
	}
	due := in.DueDate

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&in.Title).Validate(required),
			huh.NewText().Title("Description").Value(&in.Description),
			huh.NewInput().
				Title("Due date").
				Description("YYYY-MM-DD, today, tomorrow, friday, +3d").
				Value(&due).
				Validate(func(s string) error {
					if _, err := dateparse.Resolve(s); err != nil || strings.TrimSpace(s) == "" {
						return errors.New("enter a date such as 2026-05-01 or tomorrow")
					}
					return nil
				}),
		).Title(title),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Priority").Options(huh.NewOptions(models.Priorities...)...).Value(&in.Priority),
			huh.NewSelect[string]().Title("Category").Options(huh.NewOptions(models.Categories...)...).Value(&in.Category),
			huh.NewSelect[string]().Title("State").Options(huh.NewOptions(models.States...)...).Value(&in.State),
		),
	)
	if err := form.Run(); err != nil {
		return in, err
	}
	resolved, err := dateparse.Resolve(due)
	if err != nil {
		return in, err
	}
	in.DueDate = resolved
	return in, nil
}

// Confirm shows a yes/no confirmation prompt.
func Confirm(message string, defaultValue bool) (bool, error) {
	if !Interactive() {
		return defaultValue, ErrNotInteractive
	}
	result := defaultValue
	err := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&result).
		Run()
	if err != nil {
		return defaultValue, err
	}
	return result, nil
}

// ConfirmDangerous shows a confirmation prompt for destructive actions.
func ConfirmDangerous(message string) (bool, error) {
	if !Interactive() {
		return false, ErrNotInteractive
	}
	var result bool
	err := huh.NewConfirm().
		Title(message).
		Description("This action cannot be undone.").
		Affirmative("Yes, I'm sure").
		Negative("Cancel").
		Value(&result).
		Run()
	if err != nil {
		return false, err
	}
	return result, nil
}

// Input shows a required single-line text prompt.
func Input(title, placeholder string) (string, error) {
	if !Interactive() {
		return "", ErrNotInteractive
	}
	var result string
	err := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&result).
		Validate(required).
		Run()
	return strings.TrimSpace(result), err
}
