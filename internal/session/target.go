package session

import (
	"fmt"
	"regexp"
	"strings"
)

// Target describes how to find one element on the login surface. Fields
// combine: Role with Placeholder matches an element that satisfies both.
type Target struct {
	Selector    string         // CSS or attribute selector
	Role        string         // ARIA role
	Name        string         // accessible name, used with Role
	Label       string         // associated <label> text
	Placeholder *regexp.Regexp // placeholder attribute
	Text        *regexp.Regexp // visible text
}

// IsZero reports whether the target names nothing.
func (t Target) IsZero() bool {
	return t.Selector == "" && t.Role == "" && t.Label == "" && t.Placeholder == nil && t.Text == nil
}

// String renders the target for diagnostics.
func (t Target) String() string {
	var parts []string
	if t.Selector != "" {
		parts = append(parts, fmt.Sprintf("selector %q", t.Selector))
	}
	if t.Role != "" {
		role := "role " + t.Role
		if t.Name != "" {
			role += fmt.Sprintf(" named %q", t.Name)
		}
		parts = append(parts, role)
	}
	if t.Label != "" {
		parts = append(parts, fmt.Sprintf("label %q", t.Label))
	}
	if t.Placeholder != nil {
		parts = append(parts, "placeholder /"+t.Placeholder.String()+"/")
	}
	if t.Text != nil {
		parts = append(parts, "text /"+t.Text.String()+"/")
	}
	if len(parts) == 0 {
		return "<empty target>"
	}
	return strings.Join(parts, " and ")
}

// LoginForm locates the inputs and submit control of the login surface.
type LoginForm struct {
	Identifier Target
	Secret     Target
	Submit     Target
}

// Markers are the two UI signals that end a login attempt.
type Markers struct {
	// Success is unique to the authenticated area.
	Success Target
	// Rejection is shown when the application refuses the credentials.
	Rejection Target
}
