// Package testserver runs an in-memory task service for tests. It speaks the
// same REST dialect as the real backend: JWT login and refresh endpoints,
// paginated task listings, comments, follows and notifications.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/productivity/taskr/internal/models"
)

// PageSize is the number of tasks per listing page.
const PageSize = 10

// Prefix is where the API is mounted; Server.BaseURL includes it.
const Prefix = "/api"

var signingKey = []byte("testserver")

type account struct {
	models.User
	password string
	follows  map[int64]bool
}

// Server is a fake task service.
type Server struct {
	*httptest.Server

	// RefreshCalls counts requests to the refresh endpoint.
	RefreshCalls atomic.Int64
	// TTL is the lifetime written into issued access tokens.
	TTL time.Duration

	mu            sync.Mutex
	nextID        int64
	users         map[int64]*account
	access        map[string]int64
	refresh       map[string]int64
	tasks         map[int64]*models.Task
	owners        map[int64]int64
	comments      map[int64]*models.Comment
	notifications map[int64][]*models.Notification
	rotate        bool
	issued        int
}

// New starts a server. Call Close when done.
func New() *Server {
	s := &Server{
		TTL:           time.Hour,
		nextID:        100,
		users:         make(map[int64]*account),
		access:        make(map[string]int64),
		refresh:       make(map[string]int64),
		tasks:         make(map[int64]*models.Task),
		owners:        make(map[int64]int64),
		comments:      make(map[int64]*models.Comment),
		notifications: make(map[int64][]*models.Notification),
	}
	s.Server = httptest.NewServer(http.StripPrefix(Prefix, s.routes()))
	return s
}

// BaseURL is the API base for clients.
func (s *Server) BaseURL() string {
	return s.URL + Prefix
}

// AddUser creates an account and returns its ID.
func (s *Server) AddUser(username, password string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, username+"@example.com")
}

func (s *Server) addUserLocked(username, password, email string) int64 {
	s.nextID++
	id := s.nextID
	s.users[id] = &account{
		User:     models.User{ID: id, Username: username, Email: email, DateJoined: "2024-01-01"},
		password: password,
		follows:  make(map[int64]bool),
	}
	return id
}

// AddTask stores a task owned by userID and returns its ID.
func (s *Server) AddTask(userID int64, in models.TaskInput) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTaskLocked(userID, in)
}

func (s *Server) addTaskLocked(userID int64, in models.TaskInput) int64 {
	s.nextID++
	id := s.nextID
	s.tasks[id] = &models.Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Category:    in.Category,
		State:       in.State,
		Owner:       s.users[userID].Username,
	}
	s.owners[id] = userID
	return id
}

// Notify queues a notification for userID.
func (s *Server) Notify(userID int64, message string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	n := &models.Notification{ID: s.nextID, Message: message, Context: models.ContextMyTasks}
	s.notifications[userID] = append(s.notifications[userID], n)
	return n.ID
}

// ExpireAccess invalidates every issued access token, as if they had lapsed.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefresh invalidates every refresh token, so the next refresh fails.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// RotateRefresh makes the refresh endpoint issue a new refresh token too.
func (s *Server) RotateRefresh(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = on
}

// Tokens issues a credential pair for userID without going through login.
func (s *Server) Tokens(userID int64) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueAccessLocked(userID), s.issueRefreshLocked(userID)
}

func (s *Server) issueAccessLocked(userID int64) string {
	s.issued++
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(s.TTL).Unix(),
		"jti":     strconv.Itoa(s.issued),
	}).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	s.access[token] = userID
	return token
}

func (s *Server) issueRefreshLocked(userID int64) string {
	s.issued++
	token := fmt.Sprintf("refresh-%d-%d", userID, s.issued)
	s.refresh[token] = userID
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// authed wraps h with bearer-token checking.
func (s *Server) authed(h func(w http.ResponseWriter, r *http.Request, user *account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		id, valid := s.access[token]
		user := s.users[id]
		s.mu.Unlock()
		if !ok || !valid || user == nil {
			detail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		h(w, r, user)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// routes anchors every pattern with {$} so only exact paths match.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /token/{$}", s.handleLogin)
	mux.HandleFunc("POST /token/refresh/{$}", s.handleRefresh)
	mux.HandleFunc("POST /accounts/register/{$}", s.handleRegister)

	mux.HandleFunc("GET /accounts/profile/{$}", s.authed(s.handleProfile))
	mux.HandleFunc("GET /accounts/users/{$}", s.authed(s.handleUsers))
	mux.HandleFunc("GET /accounts/search/{$}", s.authed(s.handleUsers))
	mux.HandleFunc("GET /accounts/followed_tasks/{$}", s.authed(s.handleFollowedTasks))
	mux.HandleFunc("GET /accounts/{id}/tasks/{$}", s.authed(s.handleUserTasks))
	mux.HandleFunc("POST /accounts/{id}/follow/{$}", s.authed(s.handleFollow))
	mux.HandleFunc("DELETE /accounts/{id}/follow/{$}", s.authed(s.handleFollow))

	mux.HandleFunc("GET /tasks/tasks/{$}", s.authed(s.handleListTasks))
	mux.HandleFunc("POST /tasks/tasks/{$}", s.authed(s.handleCreateTask))
	mux.HandleFunc("GET /tasks/tasks/{id}/{$}", s.authed(s.handleTask))
	mux.HandleFunc("PUT /tasks/tasks/{id}/{$}", s.authed(s.handleTask))
	mux.HandleFunc("DELETE /tasks/tasks/{id}/{$}", s.authed(s.handleTask))

	mux.HandleFunc("GET /comments/{$}", s.authed(s.handleListComments))
	mux.HandleFunc("POST /comments/{$}", s.authed(s.handleCreateComment))
	mux.HandleFunc("PATCH /comments/{id}/{$}", s.authed(s.handleComment))
	mux.HandleFunc("DELETE /comments/{id}/{$}", s.authed(s.handleComment))

	mux.HandleFunc("GET /notifications/{$}", s.authed(s.handleNotifications))
	mux.HandleFunc("PATCH /notifications/{id}/{$}", s.authed(s.handleMarkRead))

	return mux
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Username == in.Username && u.password == in.Password {
			writeJSON(w, http.StatusOK, models.Tokens{
				Access:   s.issueAccessLocked(id),
				Refresh:  s.issueRefreshLocked(id),
				UserID:   id,
				Username: u.Username,
			})
			return
		}
	}
	detail(w, http.StatusUnauthorized, "No active account found with the given credentials")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.RefreshCalls.Add(1)
	var in struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refresh[in.Refresh]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	out := map[string]string{"access": s.issueAccessLocked(id)}
	if s.rotate {
		delete(s.refresh, in.Refresh)
		out["refresh"] = s.issueRefreshLocked(id)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == in.Username {
			writeJSON(w, http.StatusBadRequest, map[string][]string{
				"username": {"A user with that username already exists."},
			})
			return
		}
	}
	id := s.addUserLocked(in.Username, in.Password, in.Email)
	writeJSON(w, http.StatusCreated, s.users[id].User)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, models.Profile{User: user.User, Tasks: s.tasksOfLocked(user.ID)})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, user *account) {
	q := strings.ToLower(r.URL.Query().Get("q"))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	for _, u := range s.users {
		if u.ID != user.ID && strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, u.User)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) tasksOfLocked(userID int64) []models.Task {
	out := []models.Task{}
	for id, t := range s.tasks {
		if s.owners[id] == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) handleUserTasks(w http.ResponseWriter, r *http.Request, user *account) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[id] == nil {
		detail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, s.tasksOfLocked(id))
}

func (s *Server) handleFollowedTasks(w http.ResponseWriter, r *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Task{}
	for id := range user.follows {
		out = append(out, s.tasksOfLocked(id)...)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request, user *account) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[id] == nil {
		detail(w, http.StatusNotFound, "Not found.")
		return
	}
	if r.Method == http.MethodDelete {
		delete(user.follows, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	user.follows[id] = true
	writeJSON(w, http.StatusCreated, map[string]string{"status": "following"})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request, user *account) {
	q := r.URL.Query()
	page := 1
	if v := q.Get("page"); v != "" {
		page, _ = strconv.Atoi(v)
	}

	s.mu.Lock()
	all := s.tasksOfLocked(user.ID)
	s.mu.Unlock()

	var matched []models.Task
	for _, t := range all {
		if v := q.Get("state"); v != "" && t.State != v {
			continue
		}
		if v := q.Get("priority"); v != "" && t.Priority != v {
			continue
		}
		if v := q.Get("category"); v != "" && t.Category != v {
			continue
		}
		if v := strings.ToLower(q.Get("search")); v != "" &&
			!strings.Contains(strings.ToLower(t.Title+" "+t.Description), v) {
			continue
		}
		matched = append(matched, t)
	}

	start := (page - 1) * PageSize
	if page < 1 || (start >= len(matched) && page > 1) {
		detail(w, http.StatusNotFound, "Invalid page.")
		return
	}
	end := min(start+PageSize, len(matched))
	next := ""
	if end < len(matched) {
		next = fmt.Sprintf("%s/tasks/tasks/?page=%d", Prefix, page+1)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(matched),
		"next":    next,
		"results": append([]models.Task{}, matched[start:end]...),
	})
}

func decodeTask(r *http.Request) (models.TaskInput, error) {
	var in models.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, err
	}
	return in, in.Validate()
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request, user *account) {
	in, err := decodeTask(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {err.Error()}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.addTaskLocked(user.ID, in)
	writeJSON(w, http.StatusCreated, s.tasks[id])
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request, user *account) {
	id, _ := pathID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok || s.owners[id] != user.ID {
		detail(w, http.StatusNotFound, "No Task matches the given query.")
		return
	}

	switch r.Method {
	case http.MethodDelete:
		delete(s.tasks, id)
		delete(s.owners, id)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPut:
		in, err := decodeTask(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {err.Error()}})
			return
		}
		task.Title, task.Description, task.DueDate = in.Title, in.Description, in.DueDate
		task.Priority, task.Category, task.State = in.Priority, in.Category, in.State
		writeJSON(w, http.StatusOK, task)
	default:
		writeJSON(w, http.StatusOK, task)
	}
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request, user *account) {
	taskID, _ := strconv.ParseInt(r.URL.Query().Get("task"), 10, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Comment{}
	for _, c := range s.comments {
		if c.Task == taskID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request, user *account) {
	var in struct {
		Task    int64  `json:"task"`
		Content string `json:"content"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	if strings.TrimSpace(in.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"content": {"This field may not be blank."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[in.Task]; !ok {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"task": {"Invalid pk - object does not exist."}})
		return
	}
	s.nextID++
	c := &models.Comment{ID: s.nextID, Task: in.Task, Author: user.ID, AuthorUsername: user.Username, Content: in.Content}
	s.comments[c.ID] = c
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleComment(w http.ResponseWriter, r *http.Request, user *account) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		detail(w, http.StatusNotFound, "Not found.")
		return
	}
	if c.Author != user.ID {
		detail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	if r.Method == http.MethodDelete {
		delete(s.comments, id)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var in struct {
		Content string `json:"content"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	c.Content = in.Content
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Notification{}
	list := s.notifications[user.ID]
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, *list[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, user *account) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications[user.ID] {
		if n.ID == id {
			n.Read = true
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	detail(w, http.StatusNotFound, "Not found.")
}
