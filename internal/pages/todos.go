package pages

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/todo-e2e/internal/selectors"
)

// Filter names match the filter-<name> test ids.
const (
	FilterAll       = "all"
	FilterActive    = "active"
	FilterCompleted = "completed"
)

var leadingCount = regexp.MustCompile(`^\s*(\d+)`)

// TodoPage drives the todo list. Every mutating action submits a form and
// returns once the resulting page has loaded.
type TodoPage struct {
	page playwright.Page
	url  string
}

// NewTodoPage wraps page; listURL is the absolute URL of the list.
func NewTodoPage(page playwright.Page, listURL string) *TodoPage {
	return &TodoPage{page: page, url: listURL}
}

// Goto navigates to the list and waits for the new-todo input.
func (p *TodoPage) Goto() error {
	if _, err := p.page.Goto(p.url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to %s: %w", p.url, err)
	}
	return p.waitReady()
}

func (p *TodoPage) waitReady() error {
	if err := p.page.Locator(selectors.TestID(selectors.TodoNew)).WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateVisible,
	}); err != nil {
		return fmt.Errorf("todo list did not render: %w", err)
	}
	return nil
}

// settle waits for the page a form submission navigated to.
func (p *TodoPage) settle(action string) error {
	if err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("%s: wait for reload: %w", action, err)
	}
	return p.waitReady()
}

// Add types a title into the new-todo input and submits it.
func (p *TodoPage) Add(title string) error {
	input := p.page.Locator(selectors.TestID(selectors.TodoNew))
	if err := input.Fill(title); err != nil {
		return fmt.Errorf("add %q: fill: %w", title, err)
	}
	if err := input.Press("Enter"); err != nil {
		return fmt.Errorf("add %q: submit: %w", title, err)
	}
	return p.settle("add")
}

// Items returns the visible todo titles in order.
func (p *TodoPage) Items() ([]string, error) {
	titles, err := p.page.Locator(selectors.Within(selectors.TodoList, selectors.TodoTitle)).AllInnerTexts()
	if err != nil {
		return nil, fmt.Errorf("read todo titles: %w", err)
	}
	for i := range titles {
		titles[i] = strings.TrimSpace(titles[i])
	}
	return titles, nil
}

// Count returns how many todos the current filter shows.
func (p *TodoPage) Count() (int, error) {
	return p.page.Locator(selectors.TestID(selectors.TodoItem)).Count()
}

// item locates the row whose title is exactly title.
func (p *TodoPage) item(title string) playwright.Locator {
	return p.page.Locator(selectors.TestID(selectors.TodoItem)).Filter(playwright.LocatorFilterOptions{
		Has: p.page.Locator(selectors.TestID(selectors.TodoTitle)).GetByText(title, playwright.LocatorGetByTextOptions{
			Exact: playwright.Bool(true),
		}),
	}).First()
}

// Completed reports whether the row for title is marked done.
func (p *TodoPage) Completed(title string) (bool, error) {
	pressed, err := p.item(title).Locator(selectors.TestID(selectors.TodoToggle)).GetAttribute("aria-pressed")
	if err != nil {
		return false, fmt.Errorf("read state of %q: %w", title, err)
	}
	return pressed == "true", nil
}

// Toggle flips the row's completion state.
func (p *TodoPage) Toggle(title string) error {
	if err := p.item(title).Locator(selectors.TestID(selectors.TodoToggle)).Click(); err != nil {
		return fmt.Errorf("toggle %q: %w", title, err)
	}
	return p.settle("toggle")
}

// Edit replaces the row's title.
func (p *TodoPage) Edit(title, newTitle string) error {
	input := p.item(title).Locator(selectors.TestID(selectors.TodoEdit))
	if err := input.Fill(newTitle); err != nil {
		return fmt.Errorf("edit %q: fill: %w", title, err)
	}
	if err := input.Press("Enter"); err != nil {
		return fmt.Errorf("edit %q: submit: %w", title, err)
	}
	return p.settle("edit")
}

// Delete removes the row.
func (p *TodoPage) Delete(title string) error {
	if err := p.item(title).Locator(selectors.TestID(selectors.TodoDelete)).Click(); err != nil {
		return fmt.Errorf("delete %q: %w", title, err)
	}
	return p.settle("delete")
}

// Filter switches the list to all, active or completed.
func (p *TodoPage) Filter(name string) error {
	var id string
	switch name {
	case FilterAll:
		id = selectors.TodoFilterAll
	case FilterActive:
		id = selectors.TodoFilterActive
	case FilterCompleted:
		id = selectors.TodoFilterDone
	default:
		return fmt.Errorf("unknown filter %q", name)
	}
	if err := p.page.Locator(selectors.TestID(id)).Click(); err != nil {
		return fmt.Errorf("filter %s: %w", name, err)
	}
	return p.settle("filter")
}

// ClearCompleted removes every completed todo.
func (p *TodoPage) ClearCompleted() error {
	if err := p.page.Locator(selectors.TestID(selectors.TodoClearCompleted)).Click(); err != nil {
		return fmt.Errorf("clear completed: %w", err)
	}
	return p.settle("clear completed")
}

// RemainingText returns the footer counter, e.g. "2 items left".
func (p *TodoPage) RemainingText() (string, error) {
	text, err := p.page.Locator(selectors.TestID(selectors.TodoCount)).InnerText()
	if err != nil {
		return "", fmt.Errorf("read remaining count: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Remaining parses the footer counter.
func (p *TodoPage) Remaining() (int, error) {
	text, err := p.RemainingText()
	if err != nil {
		return 0, err
	}
	return ParseRemaining(text)
}

// ParseRemaining reads the leading number of a counter such as "3 items left".
func ParseRemaining(text string) (int, error) {
	m := leadingCount.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("counter %q has no leading number", text)
	}
	return strconv.Atoi(m[1])
}
