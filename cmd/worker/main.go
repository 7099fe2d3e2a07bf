// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unclebandit/broadcast-dispatcher/internal/app"
	"github.com/unclebandit/broadcast-dispatcher/internal/config"
	"github.com/unclebandit/broadcast-dispatcher/internal/logging"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
	"github.com/unclebandit/broadcast-dispatcher/internal/service"
)

func main() {
	var configFile string
	var noSweep bool

	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Consume campaign continuations and recover stalled campaigns",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, !noSweep)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "do not run the stalled-campaign sweeper")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, sweep bool) error {
	if cfg.AMQP.URL == "" {
		return errors.New("amqp.url is required for the worker")
	}
	log := logging.New(cfg.Log)

	q, err := queue.DialAMQP(cfg.AMQP, logging.Component(log, "queue"))
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log, q)
	if err != nil {
		q.Close()
		return err
	}
	defer a.Close()
	// Registered after a.Close so in-flight continuations drain before the
	// database goes away.
	defer q.Close()

	w := service.NewWorker(q, a.Dispatcher, logging.Component(log, "worker"))
	if err := w.Start(); err != nil {
		return err
	}

	if sweep {
		s, err := service.NewSweeper(a.Dispatcher, cfg.Dispatch.SweepSchedule, logging.Component(log, "sweeper"))
		if err != nil {
			return err
		}
		s.Start()
		defer s.Stop()
	}

	log.Info().Bool("sweep", sweep).Msg("worker running, waiting for continuations")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return nil
	case amqpErr, ok := <-q.Closed():
		if !ok || amqpErr == nil {
			return errors.New("amqp connection closed")
		}
		return fmt.Errorf("amqp connection lost: %w", amqpErr)
	}
}
