package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/todo-e2e/internal/pages"
)

// loggedInTodoPage signs a fresh account in and opens its todo list.
func loggedInTodoPage(t *testing.T, env *BrowserTestEnv, prefix string) (*pages.TodoPage, *pages.Nav) {
	t.Helper()
	page := env.NewPage(t)
	env.LoginAs(t, page, env.NewUser(t, prefix))

	todos := pages.NewTodoPage(page, env.BaseURL+"/todos")
	require.NoError(t, todos.Goto())
	return todos, pages.NewNav(page)
}

func TestTodos_AddToggleFilterClear(t *testing.T) {
	t.Parallel()
	env := SetupBrowserTestEnv(t)
	todos, _ := loggedInTodoPage(t, env, "crud")

	for _, title := range []string{"Buy milk", "Walk dog", "Write report"} {
		require.NoError(t, todos.Add(title))
	}
	items, err := todos.Items()
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy milk", "Walk dog", "Write report"}, items)

	remaining, err := todos.Remaining()
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	require.NoError(t, todos.Toggle("Walk dog"))
	done, err := todos.Completed("Walk dog")
	require.NoError(t, err)
	assert.True(t, done)
	text, err := todos.RemainingText()
	require.NoError(t, err)
	assert.Equal(t, "2 items left", text)

	require.NoError(t, todos.Filter(pages.FilterCompleted))
	items, err = todos.Items()
	require.NoError(t, err)
	assert.Equal(t, []string{"Walk dog"}, items)

	require.NoError(t, todos.Filter(pages.FilterActive))
	count, err := todos.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, todos.Filter(pages.FilterAll))
	require.NoError(t, todos.ClearCompleted())
	items, err = todos.Items()
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy milk", "Write report"}, items)
}

func TestTodos_EditAndDelete(t *testing.T) {
	t.Parallel()
	env := SetupBrowserTestEnv(t)
	todos, _ := loggedInTodoPage(t, env, "edit")

	require.NoError(t, todos.Add("Draft"))
	require.NoError(t, todos.Edit("Draft", "Final"))
	items, err := todos.Items()
	require.NoError(t, err)
	assert.Equal(t, []string{"Final"}, items)

	require.NoError(t, todos.Delete("Final"))
	count, err := todos.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
	text, err := todos.RemainingText()
	require.NoError(t, err)
	assert.Equal(t, "0 items left", text)
}

func TestTodos_MarkupIsNotRendered(t *testing.T) {
	t.Parallel()
	env := SetupBrowserTestEnv(t)
	todos, _ := loggedInTodoPage(t, env, "xss")

	require.NoError(t, todos.Add(`<img src=x onerror="document.title='pwned'">Pay rent`))
	items, err := todos.Items()
	require.NoError(t, err)
	assert.Equal(t, []string{"Pay rent"}, items)
}

func TestNav_LogoutReturnsToLogin(t *testing.T) {
	t.Parallel()
	env := SetupBrowserTestEnv(t)
	todos, nav := loggedInTodoPage(t, env, "logout")

	user, err := nav.User()
	require.NoError(t, err)
	assert.Contains(t, user, "logout-")

	require.NoError(t, nav.Logout())
	authed, err := nav.IsAuthenticated()
	require.NoError(t, err)
	assert.False(t, authed)

	// The list now redirects to the login form.
	require.Error(t, todos.Goto())
}
