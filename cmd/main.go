// Command rsvp serves the event landing page and its companion tools.
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// Logging may not be initialized yet.
		os.Stderr.WriteString("rsvp: " + err.Error() + "\n")
		os.Exit(1)
	}
}
