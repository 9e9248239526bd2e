// Garage Relay
//
// garagerelay exposes a garage door opener over HTTP. POST /toggle/{key}
// pulses a relay wired to a Raspberry Pi GPIO pin, and POST /user issues
// access keys stored in SQLite.
//
// Usage:
//
//	DATABASE_URL=sqlite:/var/lib/garage/garage.db garagerelay serve
//	garagerelay users add alice
//	garagerelay pulse
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
