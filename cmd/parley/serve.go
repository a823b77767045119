package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/quaymarket/parley/internal/alert"
	"github.com/quaymarket/parley/internal/alert/discord"
	"github.com/quaymarket/parley/internal/alert/slack"
	"github.com/quaymarket/parley/internal/config"
	"github.com/quaymarket/parley/internal/feed"
	"github.com/quaymarket/parley/internal/identity"
	"github.com/quaymarket/parley/internal/presence"
	"github.com/quaymarket/parley/internal/server"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Parley messaging server",
		Long: `Starts the HTTP API, the change-feed poller, and the optional
support-ticket alerting tasks. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := openDatabase(cmd, cfg, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	idp, err := identity.NewJWTProvider(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	tracker, err := presence.New(ctx, presence.Opts{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	if tracker != nil {
		defer tracker.Close()
		fmt.Fprintf(out, "Presence tracking via redis at %s\n", cfg.Redis.Addr)
	}

	changeFeed, err := feed.New(feed.Opts{DB: gormDB, PollInterval: cfg.Feed.PollInterval})
	if err != nil {
		return err
	}
	go changeFeed.Run(ctx)

	if notifier := buildNotifier(cfg); notifier.Enabled() {
		escalator, err := alert.NewEscalator(alert.EscalatorOpts{
			DB:       gormDB,
			Feed:     changeFeed,
			Notifier: notifier,
		})
		if err != nil {
			return err
		}
		go escalator.Run(ctx)

		scheduler := cron.New()
		_, err = scheduler.AddFunc(cfg.Alerts.DigestSchedule, func() {
			digest, err := alert.BuildDigest(ctx, gormDB)
			if err != nil {
				log.Printf("serve: ticket digest: %v", err)
				return
			}
			if digest != nil {
				notifier.Post(ctx, *digest)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule digest %q: %w", cfg.Alerts.DigestSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		fmt.Fprintf(out, "Support-ticket alerts enabled (digest schedule %q)\n", cfg.Alerts.DigestSchedule)
	}

	srv, err := server.New(server.Opts{
		DB:       gormDB,
		Feed:     changeFeed,
		Identity: idp,
		Presence: tracker,
		Port:     cfg.ListenPort,
		Out:      out,
	})
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}

// buildNotifier assembles alert adapters from config. Misconfigured adapters
// are skipped with a log line rather than blocking startup.
func buildNotifier(cfg *config.Config) *alert.Notifier {
	var adapters []alert.Adapter

	if cfg.Alerts.Slack.BotToken != "" {
		a, err := slack.New(slack.Opts{
			BotToken: cfg.Alerts.Slack.BotToken,
			Channel:  cfg.Alerts.Slack.Channel,
		})
		if err != nil {
			log.Printf("serve: slack alerts disabled: %v", err)
		} else {
			adapters = append(adapters, a)
		}
	}

	if cfg.Alerts.Discord.BotToken != "" {
		a, err := discord.New(discord.Opts{
			BotToken:  cfg.Alerts.Discord.BotToken,
			ChannelID: cfg.Alerts.Discord.ChannelID,
		})
		if err != nil {
			log.Printf("serve: discord alerts disabled: %v", err)
		} else {
			adapters = append(adapters, a)
		}
	}

	return alert.NewNotifier(adapters...)
}
