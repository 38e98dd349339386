// Package report records per-test login outcomes and renders the run summary
// as Markdown and sanitised HTML.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/todo-e2e/internal/artifacts"
	"github.com/kuitang/todo-e2e/internal/logutil"
	"github.com/kuitang/todo-e2e/internal/session"
)

// Entry is one test's login result.
type Entry struct {
	Test     string
	Outcome  session.Outcome
	Duration time.Duration
	// Detail is the classified error message, if any.
	Detail string
	// Artifacts lists locations of captures taken for this test.
	Artifacts []string
}

// Recorder collects entries from concurrently running tests.
type Recorder struct {
	mu      sync.Mutex
	runID   string
	started time.Time
	entries []Entry
}

func NewRecorder(runID string) *Recorder {
	return &Recorder{runID: runID, started: time.Now()}
}

func (r *Recorder) RunID() string {
	return r.runID
}

// Record adds an entry. Detail is truncated so one noisy failure cannot
// swamp the table.
func (r *Recorder) Record(e Entry) {
	e.Detail = logutil.TruncateForLog(e.Detail, 600)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Attach adds artifact locations to the latest entry for test, creating a
// not-attempted entry when the test never reached a login.
func (r *Recorder) Attach(test string, locations ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Test == test {
			r.entries[i].Artifacts = append(r.entries[i].Artifacts, locations...)
			return
		}
	}
	r.entries = append(r.entries, Entry{Test: test, Detail: "test failed", Artifacts: locations})
}

// Len returns the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns a copy sorted by test name.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	out := append([]Entry(nil), r.entries...)
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Test < out[j].Test })
	return out
}

// Counts tallies entries by outcome.
func (r *Recorder) Counts() map[session.Outcome]int {
	counts := make(map[session.Outcome]int)
	for _, e := range r.Entries() {
		counts[e.Outcome]++
	}
	return counts
}

// Markdown renders the summary table.
func (r *Recorder) Markdown() string {
	entries := r.Entries()
	counts := r.Counts()

	var b strings.Builder
	fmt.Fprintf(&b, "# Login run %s\n\n", r.runID)
	fmt.Fprintf(&b, "Started %s. %d tests: %d established, %d rejected, %d indeterminate, %d not attempted.\n\n",
		r.started.UTC().Format(time.RFC3339), len(entries),
		counts[session.Established], counts[session.Rejected], counts[session.Indeterminate], counts[0])

	b.WriteString("| Test | Outcome | Duration | Detail |\n")
	b.WriteString("|------|---------|----------|--------|\n")
	for _, e := range entries {
		detail := cell(e.Detail)
		for _, a := range e.Artifacts {
			detail += fmt.Sprintf(" [%s](%s)", linkText.Replace(cell(lastSegment(a))), linkTarget.Replace(a))
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(e.Test), e.Outcome, e.Duration.Round(time.Millisecond), strings.TrimSpace(detail))
	}
	return b.String()
}

// HTML renders the Markdown summary and sanitises the result.
func (r *Recorder) HTML() string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(r.Markdown()))

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
		Title: "Login run " + r.runID,
	})
	body := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))
	return "<!doctype html>\n<html><head><meta charset=\"utf-8\"><title>Login run " +
		bluemonday.StrictPolicy().Sanitize(r.runID) + "</title></head><body>\n" + string(body) + "</body></html>\n"
}

// Publish writes report.md and report.html under the run's key prefix and
// returns the HTML location.
func (r *Recorder) Publish(ctx context.Context, store artifacts.Store) (string, error) {
	if _, err := store.Put(ctx, artifacts.RunKey(r.runID, "report.md"), []byte(r.Markdown()), "text/markdown; charset=utf-8"); err != nil {
		return "", fmt.Errorf("publish markdown report: %w", err)
	}
	loc, err := store.Put(ctx, artifacts.RunKey(r.runID, "report.html"), []byte(r.HTML()), "text/html; charset=utf-8")
	if err != nil {
		return "", fmt.Errorf("publish html report: %w", err)
	}
	return loc, nil
}

// cell makes a value safe inside a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

// linkTarget percent-encodes the characters that end or split a Markdown
// link destination or table cell.
var linkTarget = strings.NewReplacer(
	" ", "%20",
	"(", "%28",
	")", "%29",
	"<", "%3C",
	">", "%3E",
	"|", "%7C",
	"\t", "%09",
)

var linkText = strings.NewReplacer("[", `\[`, "]", `\]`)

func lastSegment(loc string) string {
	if i := strings.LastIndexAny(loc, `/\`); i >= 0 {
		return loc[i+1:]
	}
	return loc
}
