package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/todo-e2e/internal/errs"
	"github.com/kuitang/todo-e2e/internal/logutil"
)

// Environment variables the credential source reads.
const (
	IdentifierVar = "E2E_USERNAME"
	SecretVar     = "E2E_PASSWORD"
)

var (
	// ErrMissingCredentials means no attempt was made because the identifier
	// or secret is not configured.
	ErrMissingCredentials = errors.New("session: missing credentials")
	// ErrRejectedCredentials means the rejection marker was observed.
	ErrRejectedCredentials = errors.New("session: credentials rejected")
	// ErrIndeterminateLogin means neither marker was observed.
	ErrIndeterminateLogin = errors.New("session: login indeterminate")
)

// MissingCredentials builds the configuration error for an incomplete pair.
// It returns nil when both values are present.
func MissingCredentials(creds Credentials) error {
	var missing []string
	if strings.TrimSpace(creds.Identifier) == "" {
		missing = append(missing, IdentifierVar)
	}
	if strings.TrimSpace(creds.Secret) == "" {
		missing = append(missing, SecretVar)
	}
	if len(missing) == 0 {
		return nil
	}
	verb := "is"
	if len(missing) > 1 {
		verb = "are"
	}
	msg := fmt.Sprintf(
		"missing login credentials: %s %s not set; authenticated tests need both %s and %s in the environment or .env",
		strings.Join(missing, " and "), verb, IdentifierVar, SecretVar,
	)
	return errs.Wrap(errs.FailedPrecondition, msg, ErrMissingCredentials)
}

func rejectedError(creds Credentials, markers Markers, elapsed time.Duration) error {
	msg := fmt.Sprintf(
		"login rejected after %s: rejection marker (%s) became visible and success marker (%s) was not observed. "+
			"The application refused the credentials for %s; check %s and %s and confirm the account exists",
		elapsed.Round(time.Millisecond), markers.Rejection, markers.Success,
		logutil.MaskIdentifier(creds.Identifier), IdentifierVar, SecretVar,
	)
	return errs.Wrap(errs.PermissionDenied, msg, ErrRejectedCredentials)
}

func indeterminateError(markers Markers, deadline time.Duration, cause error) error {
	msg := fmt.Sprintf(
		"login indeterminate: neither success marker (%s) nor rejection marker (%s) became visible within %s. "+
			"The UI never reached a known state, so this does not show the credentials are wrong; "+
			"check that the application is reachable and the markers match the current UI",
		markers.Success, markers.Rejection, deadline,
	)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return errs.Wrap(errs.DeadlineExceeded, msg, errors.Join(ErrIndeterminateLogin, cause))
}

// waitersFailedError reports an attempt whose two marker waits both failed
// before the deadline, e.g. because the page was closed.
func waitersFailedError(markers Markers, elapsed time.Duration, cause error) error {
	msg := fmt.Sprintf(
		"login indeterminate: the waits for success marker (%s) and rejection marker (%s) both failed after %s, "+
			"so neither could be observed. This does not show the credentials are wrong: %v",
		markers.Success, markers.Rejection, elapsed.Round(time.Millisecond), cause,
	)
	return errs.Wrap(errs.Unavailable, msg, errors.Join(ErrIndeterminateLogin, cause))
}

// NavigationError reports a login page that could not be loaded, so no
// attempt was made.
func NavigationError(loginURL string, cause error) error {
	msg := fmt.Sprintf(
		"login indeterminate: the login page %s did not load, so neither marker could be observed: %v",
		loginURL, cause,
	)
	return errs.Wrap(errs.Unavailable, msg, errors.Join(ErrIndeterminateLogin, cause))
}

func submitError(step string, target Target, cause error) error {
	msg := fmt.Sprintf(
		"login indeterminate: could not %s (%s) before either marker could be observed: %v",
		step, target, cause,
	)
	return errs.Wrap(errs.Unavailable, msg, errors.Join(ErrIndeterminateLogin, cause))
}
