// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/calltally/bot"
	"github.com/bureau-foundation/calltally/lib/cli"
	"github.com/bureau-foundation/calltally/lib/clock"
	"github.com/bureau-foundation/calltally/lib/config"
	"github.com/bureau-foundation/calltally/lib/credential"
	"github.com/bureau-foundation/calltally/lib/registry"
	"github.com/bureau-foundation/calltally/lib/schedule"
	"github.com/bureau-foundation/calltally/lib/version"
	"github.com/bureau-foundation/calltally/messaging"
)

func runCommand() *cli.Command {
	var flags configFlags
	return &cli.Command{
		Name:    "run",
		Summary: "Run the bot until interrupted",
		Description: `Connect to the Matrix homeserver, count calls reported in the rooms
the bot has joined, and post the scheduled reports.

The access token is read from the environment variable named by
matrix.access_token_env (optionally seeded from matrix.env_file), or
decrypted from matrix.access_token_file with matrix.identity_file.
SIGINT or SIGTERM stops the bot cleanly.`,
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("run")
			flags.register(flagSet)
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Run with an explicit configuration file",
				Command:     "calltally run --config /etc/calltally/calltally.yaml",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := flags.load(false)
			if err != nil {
				return err
			}
			logger := loggerFor(cfg)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBot(ctx, cfg, logger)
		},
	}
}

func runBot(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	location, err := cfg.Location()
	if err != nil {
		return err
	}
	daily, err := cfg.DailySchedule()
	if err != nil {
		return err
	}
	monthlyAt, err := cfg.MonthlyTime()
	if err != nil {
		return err
	}
	syncTimeout, err := cfg.SyncTimeout()
	if err != nil {
		return err
	}
	sendTimeout, err := cfg.SendTimeout()
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	if err := cfg.LoadEnvFile(); err != nil {
		return err
	}

	token, err := credential.Resolve(credential.Source{
		EnvVar:       cfg.Matrix.AccessTokenEnv,
		File:         cfg.Matrix.AccessTokenFile,
		IdentityFile: cfg.Matrix.IdentityFile,
	})
	if err != nil {
		return err
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		// Long enough for a full /sync long-poll plus transfer.
		HTTPClient: &http.Client{Timeout: 2*syncTimeout + sendTimeout},
		Logger:     logger,
	})
	if err != nil {
		token.Close()
		return err
	}
	session, err := client.Authenticate(ctx, cfg.Matrix.UserID, token)
	if err != nil {
		return err
	}
	defer session.Close()

	store, err := openStore(ctx, cfg, location, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	chats, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return err
	}

	transport, err := bot.NewMatrixTransport(bot.MatrixConfig{
		Session:     session,
		StatePath:   cfg.SyncStatePath(),
		SyncTimeout: syncTimeout,
		Clock:       clock.Real(),
		Logger:      logger.With("component", "matrix"),
	})
	if err != nil {
		return err
	}

	calls, err := bot.New(bot.Config{
		Store:        store,
		Registry:     chats,
		Transport:    transport,
		Clock:        clock.Real(),
		Location:     location,
		SendTimeout:  sendTimeout,
		ScheduleNote: scheduleNote(cfg),
		Logger:       logger.With("component", "bot"),
	})
	if err != nil {
		return err
	}

	scheduler, err := schedule.New(schedule.Config{
		Clock:     clock.Real(),
		Location:  location,
		Daily:     daily,
		MonthlyAt: monthlyAt,
		Jobs:      calls,
		Logger:    logger.With("component", "schedule"),
	})
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	logger.Info("calltally running",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"user_id", session.UserID(),
		"storage", cfg.Storage.Driver,
		"registered_chats", chats.Len(),
		"timezone", location.String(),
	)

	if err := transport.Run(ctx, calls); err != nil {
		return err
	}
	logger.Info("calltally stopped")
	return nil
}
