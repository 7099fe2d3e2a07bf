// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/unclebandit/broadcast-dispatcher/internal/app"
	"github.com/unclebandit/broadcast-dispatcher/internal/config"
	"github.com/unclebandit/broadcast-dispatcher/internal/controller"
	"github.com/unclebandit/broadcast-dispatcher/internal/handler"
	"github.com/unclebandit/broadcast-dispatcher/internal/logging"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
	"github.com/unclebandit/broadcast-dispatcher/internal/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configFile string

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the broadcast dispatch trigger",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.Log)

	var q queue.Queue
	var inProcess *queue.InMemoryQueue
	if cfg.AMQP.URL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.AMQP, logging.Component(log, "queue"))
		if err != nil {
			return err
		}
		defer amqpQueue.Close()
		q = amqpQueue
	} else {
		log.Warn().Msg("amqp.url not set, continuations run in-process")
		inProcess = queue.NewInMemoryQueue(logging.Component(log, "queue"))
		q = inProcess
	}

	a, err := app.New(ctx, cfg, log, q)
	if err != nil {
		return err
	}
	defer a.Close()

	var sweeper *service.Sweeper
	if inProcess != nil {
		w := service.NewWorker(inProcess, a.Dispatcher, logging.Component(log, "worker"))
		if err := w.Start(); err != nil {
			return err
		}
		// Without a broker there is no worker process to recover stalled campaigns.
		sweeper, err = service.NewSweeper(a.Dispatcher, cfg.Dispatch.SweepSchedule, logging.Component(log, "sweeper"))
		if err != nil {
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	dispatch := &controller.DispatchController{Dispatcher: a.Dispatcher, Log: logging.Component(log, "trigger")}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.NewRouter(dispatch, a.Registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("server running")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if inProcess != nil {
		sweeper.Stop()
		// Chunks already running finish; their follow-up continuations are
		// refused and the campaigns are picked up again by trigger or sweep.
		inProcess.Close()
	}
	return nil
}
