package demoapp

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/todo-e2e/internal/errs"
)

// MaxTitleLength bounds a todo title in runes.
const MaxTitleLength = 200

// Filter selects which todos a list view shows.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// ParseFilter maps a query value to a Filter, defaulting to FilterAll.
func ParseFilter(s string) Filter {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterActive:
		return FilterActive
	case FilterCompleted:
		return FilterCompleted
	default:
		return FilterAll
	}
}

func (f Filter) matches(t Todo) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Todo is one item on a user's list.
type Todo struct {
	ID        string
	Title     string
	Completed bool
	CreatedAt time.Time
}

// TodoStore keeps each user's todos in insertion order.
type TodoStore struct {
	mu     sync.Mutex
	lists  map[string][]Todo
	policy *bluemonday.Policy
}

func NewTodoStore() *TodoStore {
	return &TodoStore{
		lists:  make(map[string][]Todo),
		policy: bluemonday.StrictPolicy(),
	}
}

// cleanTitle strips markup and whitespace and enforces the length limit.
func (s *TodoStore) cleanTitle(title string) (string, error) {
	clean := strings.TrimSpace(s.policy.Sanitize(title))
	if clean == "" {
		return "", errs.New(errs.InvalidArgument, "todo title must not be empty")
	}
	if runes := []rune(clean); len(runes) > MaxTitleLength {
		clean = string(runes[:MaxTitleLength])
	}
	return clean, nil
}

// List returns a copy of the user's todos that match filter.
func (s *TodoStore) List(user string, filter Filter) []Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Todo
	for _, t := range s.lists[user] {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// Add appends a todo and returns it.
func (s *TodoStore) Add(user, title string) (Todo, error) {
	clean, err := s.cleanTitle(title)
	if err != nil {
		return Todo{}, err
	}
	todo := Todo{ID: uuid.NewString(), Title: clean, CreatedAt: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[user] = append(s.lists[user], todo)
	return todo, nil
}

// Toggle flips the completion state of a todo.
func (s *TodoStore) Toggle(user, id string) error {
	return s.update(user, id, func(t *Todo) { t.Completed = !t.Completed })
}

// Rename replaces a todo's title. An empty title deletes the todo.
func (s *TodoStore) Rename(user, id, title string) error {
	clean, err := s.cleanTitle(title)
	if errs.CodeOf(err) == errs.InvalidArgument {
		return s.Delete(user, id)
	}
	if err != nil {
		return err
	}
	return s.update(user, id, func(t *Todo) { t.Title = clean })
}

// Delete removes a todo.
func (s *TodoStore) Delete(user, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[user]
	for i := range list {
		if list[i].ID == id {
			s.lists[user] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return errs.New(errs.NotFound, "todo not found")
}

// ClearCompleted removes every completed todo and returns how many went.
func (s *TodoStore) ClearCompleted(user string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.lists[user][:0:0]
	for _, t := range s.lists[user] {
		if !t.Completed {
			kept = append(kept, t)
		}
	}
	removed := len(s.lists[user]) - len(kept)
	s.lists[user] = kept
	return removed
}

// Counts returns the number of active and completed todos.
func (s *TodoStore) Counts(user string) (active, completed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.lists[user] {
		if t.Completed {
			completed++
		} else {
			active++
		}
	}
	return active, completed
}

func (s *TodoStore) update(user, id string, fn func(*Todo)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[user]
	for i := range list {
		if list[i].ID == id {
			fn(&list[i])
			return nil
		}
	}
	return errs.New(errs.NotFound, "todo not found")
}
