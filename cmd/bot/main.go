package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"remindbot/internal/app"
)

func main() {
	var cfgPath string
	var stopTimeout time.Duration
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.DurationVar(&stopTimeout, "stop-timeout", 10*time.Second, "upper bound for graceful shutdown")
	flag.Parse()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
		_ = a.Stop(stopCtx, app.StopFatalError)
		stop()
		os.Exit(1)
	}

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
	defer stop()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && reason == app.StopFatalError {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
