package browser

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/todo-e2e/internal/logutil"
)

// contentPreviewChars bounds the page HTML kept in a snapshot.
const contentPreviewChars = 500

// Snapshot is what a failed step leaves behind for diagnosis.
type Snapshot struct {
	URL        string
	Title      string
	Preview    string
	Screenshot []byte
}

// Summary renders the snapshot without the image.
func (s Snapshot) Summary() string {
	return fmt.Sprintf("url=%s title=%q content=%s", s.URL, s.Title, s.Preview)
}

// Capture records the page's URL, title, a content preview and a full-page
// screenshot. Partial snapshots are returned alongside the first error.
func Capture(page playwright.Page) (Snapshot, error) {
	snap := Snapshot{URL: page.URL()}

	var firstErr error
	title, err := page.Title()
	if err != nil {
		firstErr = fmt.Errorf("read title: %w", err)
	}
	snap.Title = title

	content, err := page.Content()
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("read content: %w", err)
	}
	snap.Preview = logutil.TruncateForLog(content, contentPreviewChars)

	shot, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("take screenshot: %w", err)
	}
	snap.Screenshot = shot

	return snap, firstErr
}

// SaveStorageState writes the context's cookies and local storage to path so
// later contexts can start authenticated.
func SaveStorageState(ctx playwright.BrowserContext, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create storage state dir: %w", err)
	}
	if _, err := ctx.StorageState(path); err != nil {
		return fmt.Errorf("save storage state: %w", err)
	}
	return nil
}
