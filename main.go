package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pathakanu/remindbot/internal/config"
	"github.com/pathakanu/remindbot/internal/metrics"
)

func main() {
	logger := log.New(os.Stdout, "[remindbot] ", log.LstdFlags|log.Lshortfile)

	var cfg *config.Config
	root := &cobra.Command{
		Use:           "remindbot",
		Short:         "Reminder API, Telegram front-end and notification dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
		},
	}
	conf := func() *config.Config { return cfg }

	root.AddCommand(
		newAPICommand(conf, logger),
		newBotCommand(conf, logger),
		newNotifyCommand(conf, logger),
		newNextCommand(conf),
	)

	if err := root.Execute(); err != nil {
		logger.Fatalf("%v", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func waitForShutdown(ctx context.Context, server *http.Server, logger *log.Logger) {
	<-ctx.Done()
	logger.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
}

// serveMetrics exposes rec on its own port for the commands without an API.
func serveMetrics(ctx context.Context, port string, rec *metrics.Recorder, logger *log.Logger) {
	if port == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	server := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Printf("metrics listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server error: %v", err)
		}
	}()
	go waitForShutdown(ctx, server, logger)
}
