package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zsprackett/agent-pulse/internal/applog"
	"github.com/zsprackett/agent-pulse/internal/hub"
	"github.com/zsprackett/agent-pulse/internal/monitor"
	"github.com/zsprackett/agent-pulse/internal/notify"
	"github.com/zsprackett/agent-pulse/internal/pairing"
	"github.com/zsprackett/agent-pulse/internal/webserver"
)

var (
	serveHost      string
	servePort      int
	serveLogStderr bool
	serveLogLevel  string
	serveLogJSON   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
	serveCmd.Flags().BoolVar(&serveLogStderr, "log-stderr", false, "log to stderr instead of the log directory")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	serveCmd.Flags().BoolVar(&serveLogJSON, "log-json", false, "emit JSON log records")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveLogLevel != "" {
		cfg.LogLevel = serveLogLevel
	}
	format := "text"
	if serveLogJSON {
		format = "json"
	}

	logger, logCloser, err := applog.Init(applog.InitConfig{
		LogDir:   cfg.LogDir,
		LogLevel: cfg.LogLevel,
		Format:   format,
		Stderr:   serveLogStderr,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	machine := monitor.New(logger,
		monitor.WithInterval(time.Duration(cfg.Decay.TickInterval)),
		monitor.WithIdleTimeout(time.Duration(cfg.Decay.IdleTimeout)),
		monitor.WithThinkingTimeout(time.Duration(cfg.Decay.ThinkingTimeout)),
	)
	relay := hub.New(cfg.Token, machine, logger)
	machine.OnChange(relay.Broadcast)

	notifier := notify.New(notify.Config(cfg.Notifications), logger)
	machine.OnChange(notifier.Notify)

	srv := webserver.New(machine, relay, webserver.Config{
		Host: cfg.Host,
		Port: cfg.Port,
		TLS:  webserver.TLSConfig(cfg.TLS),
	}, logger)

	machine.Start()
	defer machine.Stop()

	if err := srv.Start(); err != nil {
		return err
	}

	url := pairing.URL(cfg.TLS.Mode != "", pairing.AdvertiseHost(cfg.Host), cfg.Port, cfg.Token)
	fmt.Fprintf(cmd.OutOrStdout(), "agent-pulse listening on %s\n", srv.Addr())
	fmt.Fprintf(cmd.OutOrStdout(), "  pair a display: %s\n", url)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("webserver shutdown", "err", err)
	}
	machine.Stop()
	notifier.Wait()
	return nil
}
