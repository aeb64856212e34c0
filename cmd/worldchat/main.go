package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"worldchat/internal/app"
	"worldchat/internal/config"
	"worldchat/pkg/systemd"
)

func main() {
	var (
		cfgPath string
		envFile string
		check   bool
	)
	flag.StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	flag.BoolVar(&check, "check", false, "validate the config and exit")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if check {
		if _, err := config.NewManager(cfgPath).Parse(); err != nil {
			fmt.Println("invalid:", err)
			os.Exit(1)
		}
		fmt.Println("ok")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	_, _ = systemd.Ready()
	go func() { _ = systemd.Watchdog(ctx) }()

	go reportStatus(ctx, a)

	var reason app.StopReason
	select {
	case sig := <-sigs:
		reason = stopReason(sig)
	case <-a.Done():
		reason = app.StopFatalError
	}
	cancel()

	_, _ = systemd.Stopping()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func stopReason(sig os.Signal) app.StopReason {
	switch sig {
	case os.Interrupt:
		return app.StopSIGINT
	case syscall.SIGTERM:
		return app.StopSIGTERM
	}
	return app.StopUnknown
}

// reportStatus keeps the "systemctl status" line showing who is online.
func reportStatus(ctx context.Context, a *app.App) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		_, _ = systemd.Status("%d online in %s", a.Registry().Len(), a.Settings().ChannelLabel)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
