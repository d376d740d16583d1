package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ssahak93/autochat/internal/app"
	"github.com/ssahak93/autochat/internal/config"
	"github.com/ssahak93/autochat/internal/session"
	"github.com/ssahak93/autochat/internal/tui"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := session.Resolve(*profileFlag)
	if err := session.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot load %s: %v\n", session.ConfigPath(), err)
		fmt.Fprintf(os.Stderr, "create it with base_url, socket_url and token set\n")
		os.Exit(1)
	}
	if cfg.BaseURL == "" || cfg.Token == "" {
		fmt.Fprintf(os.Stderr, "error: base_url and token must be set in %s\n", session.ConfigPath())
		os.Exit(1)
	}

	var ui *tui.App
	fxApp := fx.New(
		app.Module(app.Params{ProfileName: profileName, Config: cfg}),
		fx.Populate(&ui),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := fxApp.Start(startCtx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cancel()

	runErr := ui.Run()
	ui.Stop()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
