package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"github.com/pathakanu/remindbot/internal/api"
	"github.com/pathakanu/remindbot/internal/apiclient"
	"github.com/pathakanu/remindbot/internal/bot"
	"github.com/pathakanu/remindbot/internal/config"
	"github.com/pathakanu/remindbot/internal/database"
	"github.com/pathakanu/remindbot/internal/metrics"
	"github.com/pathakanu/remindbot/internal/notify"
	myopenai "github.com/pathakanu/remindbot/internal/openai"
	"github.com/pathakanu/remindbot/internal/schedule"
	"github.com/pathakanu/remindbot/internal/store"
	"github.com/pathakanu/remindbot/internal/telemetry"
	"github.com/pathakanu/remindbot/internal/twilio"
)

func newAPICommand(conf func() *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the reminder REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			ctx, stop := signalContext()
			defer stop()

			shutdownTracing, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName)
			if err != nil {
				return err
			}
			defer flushTracing(shutdownTracing, logger)

			db, err := database.New(cfg.DatabaseURL, cfg.SQLitePath, logger)
			if err != nil {
				return fmt.Errorf("database init failed: %w", err)
			}

			gin.SetMode(cfg.GinMode)
			server := api.New(api.Options{
				Store:    store.New(db),
				Logger:   logger,
				Metrics:  metrics.New(),
				Location: cfg.LocalTimezone,
				CORS:     cfg.CORSEnabled,
			})

			httpServer := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				logger.Printf("server starting on :%s", cfg.Port)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatalf("server error: %v", err)
				}
			}()

			waitForShutdown(ctx, httpServer, logger)
			return nil
		},
	}
}

func newBotCommand(conf func() *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram front-end against the reminder API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			if err := cfg.Require("TELEGRAM_BOT_TOKEN", "OPENAI_API_KEY"); err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			shutdownTracing, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName+"-bot")
			if err != nil {
				return err
			}
			defer flushTracing(shutdownTracing, logger)

			telegram, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
			if err != nil {
				return fmt.Errorf("telegram init failed: %w", err)
			}
			logger.Printf("authorised on telegram account %s", telegram.Self.UserName)

			backend, err := apiclient.New(cfg.APIURL, cfg.APITimeout)
			if err != nil {
				return err
			}

			rec := metrics.New()
			serveMetrics(ctx, cfg.MetricsPort, rec, logger)

			extractor := myopenai.NewExtractor(myopenai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel), myopenai.ExtractorOptions{
				Location: cfg.LocalTimezone,
				Timeout:  cfg.ExtractionTimeout,
				Metrics:  rec,
			})

			reminderBot, err := bot.New(bot.Options{
				Sender:    telegram,
				Backend:   backend,
				Extractor: extractor,
				Logger:    logger,
				Location:  cfg.LocalTimezone,
				Workers:   cfg.BotWorkers,
				CacheSize: cfg.UserCacheSize,
			})
			if err != nil {
				return err
			}

			u := tgbotapi.NewUpdate(0)
			u.Timeout = 60
			updates := telegram.GetUpdatesChan(u)
			go func() {
				<-ctx.Done()
				logger.Println("shutting down...")
				telegram.StopReceivingUpdates()
			}()

			if err := reminderBot.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newNotifyCommand(conf func() *config.Config, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Dispatch due reminders to the configured sinks on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			ctx, stop := signalContext()
			defer stop()

			db, err := database.New(cfg.DatabaseURL, cfg.SQLitePath, logger)
			if err != nil {
				return fmt.Errorf("database init failed: %w", err)
			}

			sinks, err := buildSinks(cfg, logger)
			if err != nil {
				return err
			}

			rec := metrics.New()
			serveMetrics(ctx, cfg.MetricsPort, rec, logger)

			dispatcher := notify.New(notify.Options{
				Source:   store.New(db),
				Sinks:    sinks,
				Logger:   logger,
				Metrics:  rec,
				Location: cfg.LocalTimezone,
			})
			if err := dispatcher.Start(cfg.NotifySchedule); err != nil {
				return fmt.Errorf("scheduler start: %w", err)
			}
			logger.Printf("dispatcher running on %q with %d sink(s)", cfg.NotifySchedule, len(sinks))

			<-ctx.Done()
			logger.Println("shutting down...")
			dispatcher.Stop()
			return nil
		},
	}
}

// buildSinks reads NOTIFY_SINK as a comma separated list of sink names.
func buildSinks(cfg *config.Config, logger *log.Logger) ([]notify.Sink, error) {
	var sinks []notify.Sink
	for _, name := range strings.Split(cfg.NotifySink, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "telegram":
			if err := cfg.Require("TELEGRAM_BOT_TOKEN"); err != nil {
				return nil, err
			}
			telegram, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
			if err != nil {
				return nil, fmt.Errorf("telegram init failed: %w", err)
			}
			sinks = append(sinks, notify.NewTelegramSink(telegram, cfg.LocalTimezone))
		case "whatsapp":
			if err := cfg.Require("TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_WHATSAPP_NUMBER", "TWILIO_NOTIFY_TO"); err != nil {
				return nil, err
			}
			client := twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger)
			sinks = append(sinks, twilio.NewWhatsAppSink(client, cfg.TwilioNotifyTo, cfg.LocalTimezone))
		default:
			return nil, fmt.Errorf("unknown notify sink %q", name)
		}
	}
	if len(sinks) == 0 {
		return nil, errors.New("no notify sink configured")
	}
	return sinks, nil
}

func newNextCommand(conf func() *config.Config) *cobra.Command {
	var (
		count int
		from  string
	)
	cmd := &cobra.Command{
		Use:   "next <rule>",
		Short: "Print the next occurrences of a recurrence rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := conf().LocalTimezone
			start := time.Now().In(loc)
			if from != "" {
				parsed, err := schedule.ParseTime(from, loc)
				if err != nil {
					return err
				}
				start = parsed.In(loc)
			}
			return printOccurrences(cmd.OutOrStdout(), args[0], start, count)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of occurrences to print")
	cmd.Flags().StringVar(&from, "from", "", "start time (ISO 8601, naive values use LOCAL_TIMEZONE)")
	return cmd
}

func printOccurrences(w io.Writer, expr string, from time.Time, count int) error {
	rule, err := schedule.ParseRule(expr)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}
	fmt.Fprintf(w, "rule: %s\n", rule)
	cursor := from
	for i := 0; i < count; i++ {
		next, ok := rule.Next(cursor)
		if !ok {
			fmt.Fprintln(w, "no further occurrences")
			return nil
		}
		fmt.Fprintln(w, next.Format(time.RFC3339))
		cursor = next
	}
	return nil
}

func flushTracing(shutdown telemetry.Shutdown, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Printf("telemetry: shutdown: %v", err)
	}
}
