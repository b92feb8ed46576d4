package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/labtrack/labtrack-client/internal/session"
	"github.com/labtrack/labtrack-client/pkg/config"
	"github.com/labtrack/labtrack-client/pkg/logger"
)

const usage = `usage: labtrackctl <command> [flags]

commands:
  login -u <username> [-p <password>]   authenticate and store the session
  logout                                clear the stored session
  whoami                                show the current user
  inventory list|create|import|delete|consume
  material  list|create|import|delete
  outbound  mine|all|pending|audit|finish
  stats                                 dashboard summary and trend
  report -o <file.xlsx> [-tier <tier>]  export classified inventory

Run "labtrackctl <command> -h" for command flags.
`

func main() {
	cfg, err := config.LoadWithValidation("labtrackctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("labtrackctl", cfg.Client.Environment).SetLevel(cfg.Client.LogLevel)

	a := newApp(cfg, session.NewFileStorage(cfg.Session.Path), log, os.Stdout, os.Stderr)
	a.connectEvents()
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, os.Args[1:]); err != nil {
		// API failures were already printed by the notifier
		if !a.surfaced() {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		a.close()
		os.Exit(1)
	}
}
