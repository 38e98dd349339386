// Command todoe2e runs the bundled todo app and checks that configured
// credentials can establish a session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/todo-e2e/internal/errs"
	"github.com/kuitang/todo-e2e/internal/obs"
)

func main() {
	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(errs.ExitCode(errs.CodeOf(err)))
	}
}
