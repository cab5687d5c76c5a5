package resources

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/productivity/taskr/internal/api"
	"github.com/productivity/taskr/internal/models"
	"github.com/productivity/taskr/internal/output"
)

// AccountService covers registration, profiles, user lookup and follows.
type AccountService struct {
	c *api.Client
}

// Registration is the sign-up payload.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. It does not log in.
func (s *AccountService) Register(ctx context.Context, r Registration) (*models.User, error) {
	if r.Username == "" || r.Password == "" {
		return nil, output.ErrUsage("Username and password are required")
	}
	var user *models.User
	err := track(ctx, s.c, "Accounts", "Register", true, 0, func(ctx context.Context) error {
		resp, err := s.c.Post(ctx, "/accounts/register/", r)
		if err != nil {
			return err
		}
		user, err = decode[models.User](resp)
		return err
	})
	return user, err
}

// Profile returns the signed-in user and their tasks.
func (s *AccountService) Profile(ctx context.Context) (*models.Profile, error) {
	var profile *models.Profile
	err := track(ctx, s.c, "Accounts", "Profile", false, 0, func(ctx context.Context) error {
		resp, err := s.c.Get(ctx, "/accounts/profile/")
		if err != nil {
			return err
		}
		profile, err = decode[models.Profile](resp)
		return err
	})
	return profile, err
}

// Users lists all accounts.
func (s *AccountService) Users(ctx context.Context) ([]models.User, error) {
	return s.listUsers(ctx, "Users", "/accounts/users/")
}

// Search finds users whose name matches q.
func (s *AccountService) Search(ctx context.Context, q string) ([]models.User, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []models.User{}, nil
	}
	return s.listUsers(ctx, "Search", "/accounts/search/?q="+url.QueryEscape(q))
}

func (s *AccountService) listUsers(ctx context.Context, operation, path string) ([]models.User, error) {
	var users []models.User
	err := track(ctx, s.c, "Accounts", operation, false, 0, func(ctx context.Context) error {
		resp, err := s.c.Get(ctx, path)
		if err != nil {
			return err
		}
		users, _, err = decodeList[models.User](resp)
		return err
	})
	return users, err
}

// UserTasks lists another user's tasks.
func (s *AccountService) UserTasks(ctx context.Context, userID int64) ([]models.Task, error) {
	return s.listTasks(ctx, "UserTasks", userID, fmt.Sprintf("/accounts/%d/tasks/", userID))
}

// FollowedTasks lists the tasks of every user the caller follows.
func (s *AccountService) FollowedTasks(ctx context.Context) ([]models.Task, error) {
	return s.listTasks(ctx, "FollowedTasks", 0, "/accounts/followed_tasks/")
}

func (s *AccountService) listTasks(ctx context.Context, operation string, id int64, path string) ([]models.Task, error) {
	var tasks []models.Task
	err := track(ctx, s.c, "Accounts", operation, false, id, func(ctx context.Context) error {
		resp, err := s.c.Get(ctx, path)
		if err != nil {
			return err
		}
		tasks, _, err = decodeList[models.Task](resp)
		return err
	})
	return tasks, err
}

// Follow starts following a user.
func (s *AccountService) Follow(ctx context.Context, userID int64) error {
	return track(ctx, s.c, "Accounts", "Follow", true, userID, func(ctx context.Context) error {
		_, err := s.c.Post(ctx, fmt.Sprintf("/accounts/%d/follow/", userID), nil)
		return err
	})
}

// Unfollow stops following a user.
func (s *AccountService) Unfollow(ctx context.Context, userID int64) error {
	return track(ctx, s.c, "Accounts", "Unfollow", true, userID, func(ctx context.Context) error {
		_, err := s.c.Delete(ctx, fmt.Sprintf("/accounts/%d/follow/", userID))
		return err
	})
}

// OwnerGroup is one owner's share of a followed-tasks listing.
type OwnerGroup struct {
	Owner string        `json:"owner"`
	Tasks []models.Task `json:"tasks"`
}

// GroupByOwner groups tasks by owner, owners sorted by name.
func GroupByOwner(tasks []models.Task) []OwnerGroup {
	idx := make(map[string]int)
	var groups []OwnerGroup
	for _, t := range tasks {
		i, ok := idx[t.Owner]
		if !ok {
			i = len(groups)
			idx[t.Owner] = i
			groups = append(groups, OwnerGroup{Owner: t.Owner})
		}
		groups[i].Tasks = append(groups[i].Tasks, t)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Owner < groups[b].Owner })
	return groups
}
