package completion

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/productivity/taskr/internal/config"
	"github.com/productivity/taskr/internal/hostutil"
	"github.com/productivity/taskr/internal/models"
)

// StoreFunc returns the cache store to read at completion time.
type StoreFunc func(cmd *cobra.Command) *Store

// DefaultStoreFunc resolves the origin from --host, then TASKR_BASE_URL, then
// the built-in default. Config files are not read: completions must be fast
// and PersistentPreRunE does not run during __complete.
func DefaultStoreFunc(cmd *cobra.Command) *Store {
	base := config.Default().BaseURL
	if v := os.Getenv("TASKR_BASE_URL"); v != "" {
		base = v
	}
	if root := cmd.Root(); root != nil {
		if flag := root.PersistentFlags().Lookup("host"); flag != nil && flag.Changed {
			base = hostutil.APIBase(flag.Value.String())
		}
	}
	return NewStore("", hostutil.Origin(base))
}

// Completer provides tab completion functions backed by the cache.
// It never builds the App or touches credentials.
type Completer struct {
	store StoreFunc
}

// NewCompleter creates a Completer. A nil fn means DefaultStoreFunc.
func NewCompleter(fn StoreFunc) *Completer {
	if fn == nil {
		fn = DefaultStoreFunc
	}
	return &Completer{store: fn}
}

// TaskCompletion completes task ID arguments, open tasks first.
func (c *Completer) TaskCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		tasks := rankTasks(c.store(cmd).Tasks())

		needle := strings.ToLower(strings.TrimPrefix(toComplete, "#"))
		var completions []cobra.Completion
		for _, t := range tasks {
			id := fmt.Sprintf("%d", t.ID)
			if strings.HasPrefix(id, needle) || strings.Contains(strings.ToLower(t.Title), needle) {
				desc := t.Title
				if t.State != "" {
					desc = fmt.Sprintf("%s [%s]", t.Title, t.State)
				}
				completions = append(completions, cobra.CompletionWithDesc(id, desc))
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// UserCompletion completes user ID arguments, sorted by username.
func (c *Completer) UserCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		users := append([]CachedUser(nil), c.store(cmd).Users()...)
		sort.Slice(users, func(i, j int) bool {
			return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
		})

		needle := strings.ToLower(toComplete)
		var completions []cobra.Completion
		for _, u := range users {
			id := fmt.Sprintf("%d", u.ID)
			name := strings.ToLower(u.Username)
			if strings.HasPrefix(id, needle) || strings.HasPrefix(name, needle) || strings.Contains(name, needle) {
				desc := u.Username
				if u.Email != "" {
					desc = fmt.Sprintf("%s <%s>", u.Username, u.Email)
				}
				completions = append(completions, cobra.CompletionWithDesc(id, desc))
			}
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	}
}

// EnumCompletion completes a fixed set of values, such as task states.
func EnumCompletion(values []string) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		var out []cobra.Completion
		for _, v := range values {
			if strings.HasPrefix(strings.ToLower(v), strings.ToLower(toComplete)) {
				out = append(out, cobra.Completion(v))
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}

var stateRank = map[string]int{
	models.StateInProgress: 0,
	models.StateToDo:       1,
	models.StateDone:       2,
}

var priorityRank = map[string]int{
	models.PriorityHigh:   0,
	models.PriorityMedium: 1,
	models.PriorityLow:    2,
}

// rankTasks orders tasks: in progress, to do, done; then by priority, then
// by title.
func rankTasks(tasks []CachedTask) []CachedTask {
	ranked := append([]CachedTask(nil), tasks...)
	rank := func(m map[string]int, k string) int {
		if r, ok := m[k]; ok {
			return r
		}
		return len(m)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ra, rb := rank(stateRank, a.State), rank(stateRank, b.State); ra != rb {
			return ra < rb
		}
		if ra, rb := rank(priorityRank, a.Priority), rank(priorityRank, b.Priority); ra != rb {
			return ra < rb
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
	return ranked
}
