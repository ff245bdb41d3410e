// Package main is the purbeurre command: the web server and the tools that
// manage its database.
//
//	purbeurre serve                       run the site
//	purbeurre import [--category pizzas]  fill the database from Open Food Facts
//	purbeurre substitutes 3017620422003   print the healthier substitutes of a product
//	purbeurre createsuperuser --email ... create an administrator
//	purbeurre config init                 write a commented config.toml
//
// Every command reads its configuration with --config (or the defaults,
// a .env file and the environment; see internal/config).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Ctrl+C cancels the context: a running import stops between requests.
	// serve installs its own handler for the graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{})
	if err := runner.app().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, styles.err.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
