package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"worktime/internal/bot"
	"worktime/internal/notify"
	"worktime/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	api, err := bot.Connect(cfg.TelegramToken)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := eventSinks(cfg, log, api)
	if err != nil {
		return err
	}
	defer closeSinks()
	dispatcher := notify.NewDispatcher(log, 0, sinks...)

	a, err := newApp(cfg, log, dispatcher)
	if err != nil {
		return err
	}
	defer a.Close()

	rebuilt, err := a.rollups.ColdStart(ctx)
	if err != nil {
		return fmt.Errorf("rebuild rollups: %w", err)
	}
	if rebuilt {
		log.Info("rollups rebuilt from session history")
	}

	scheduler := service.NewSchedulerService(a.loc, log)
	if err := a.jobs.Register(ctx, scheduler, a.schedule()); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	telegramBot, err := bot.New(api, bot.Services{
		Sessions: a.sessions,
		Rollups:  a.rollups,
		Stats:    a.stats,
		Jobs:     a.jobs,
	}, &a.cfg, log)
	if err != nil {
		return fmt.Errorf("init bot: %w", err)
	}

	scheduler.Start()
	err = supervise(ctx, dispatcher, scheduler, telegramBot.Start)
	log.Info("shutting down")
	return err
}

// supervise runs the front end until it returns, then stops the scheduler
// and only afterwards drains the dispatcher, so events emitted by jobs that
// were still running are delivered.
func supervise(ctx context.Context, dispatcher *notify.Dispatcher, scheduler *service.SchedulerService, frontEnd func(context.Context) error) error {
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	var g errgroup.Group
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	g.Go(func() error {
		err := frontEnd(ctx)
		scheduler.Stop()
		stopDispatch()
		return err
	})
	return g.Wait()
}
