// Command catalogctl runs catalog ingestions and inspects catalogs from the
// command line, against PostgreSQL or a local SQLite file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/JonMunkholm/sitecatalog/internal/core"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, describeError(err))
		}
		os.Exit(1)
	}
}

// describeError prefers the mapped user message when the error is known.
func describeError(err error) string {
	if msg := core.MapError(err); msg.Code != "" && msg.Code != "ERR000" {
		return core.FormatUserError(err) + "\n  cause: " + err.Error()
	}
	return err.Error()
}
