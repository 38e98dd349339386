package session

import (
	"log/slog"

	"github.com/kuitang/todo-e2e/internal/logutil"
)

// Outcome is the classified result of one login attempt. The zero value is
// only returned together with a configuration error, when no attempt was made.
type Outcome int

const (
	Established Outcome = iota + 1
	Rejected
	Indeterminate
)

func (o Outcome) String() string {
	switch o {
	case Established:
		return "established"
	case Rejected:
		return "rejected"
	case Indeterminate:
		return "indeterminate"
	default:
		return "not_attempted"
	}
}

// Credentials is the identifier/secret pair submitted on the login surface.
type Credentials struct {
	Identifier string
	Secret     string
}

// LogValue keeps the secret out of structured logs.
func (c Credentials) LogValue() slog.Value {
	secret := ""
	if c.Secret != "" {
		secret = logutil.RedactValue("secret", c.Secret)
	}
	return slog.GroupValue(
		slog.String("identifier", logutil.MaskIdentifier(c.Identifier)),
		slog.String("secret", secret),
	)
}
