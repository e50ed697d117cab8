package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"medbot/internal/app"
	"medbot/internal/config"
	"medbot/internal/domain"
	logx "medbot/pkg/logx"
	"medbot/pkg/systemd"
)

func main() {
	var (
		cfgPath string
		envHelp bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&envHelp, "env-help", false, "list supported environment variables and exit")
	flag.Parse()

	if envHelp {
		fmt.Println(config.EnvHelp())
		return
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(ctx, cfgPath)
	if err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, "invalid config:", ce)
		} else {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	boot := logx.NewConsole("INFO").With(logx.String("comp", "systemd"))
	systemd.Ready(boot)
	go systemd.Watchdog(ctx, boot)

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	systemd.Stopping(boot)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil && reason == app.StopFatalError {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
