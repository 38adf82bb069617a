package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gorm.io/gorm"

	"worktime/internal/bot"
	"worktime/internal/clock"
	"worktime/internal/config"
	"worktime/internal/logging"
	"worktime/internal/notify"
	"worktime/internal/repository"
	"worktime/internal/service"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg config.Config
	log *slog.Logger
	loc *time.Location
	db  *gorm.DB

	repos     *repository.Repositories
	rollups   *service.RollupService
	sessions  *service.SessionService
	watchdog  *service.WatchdogService
	reminders *service.ReminderService
	stats     *service.StatsService
	jobs      *service.JobService
}

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func newApp(cfg config.Config, log *slog.Logger, sink notify.Sink) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	clk := clock.System{}
	repos := repository.NewRepositories(db)
	rollups := service.NewRollupService(repos, clk, loc, log)
	sessions := service.NewSessionService(repos, rollups, clk, sink, cfg.GoalDefaults(), log)
	watchdog := service.NewWatchdogService(repos.Sessions, sessions, clk, cfg.MaxSession(), log)
	reminders := service.NewReminderService(repos.Users, repos.Sessions, cfg.ReminderThreshold, loc)
	backups := repository.NewSQLiteBackup(db, cfg.BackupDirectory, clk)
	stats := service.NewStatsService(repos, rollups, clk, cfg.MaxSession())

	return &app{
		cfg:       cfg,
		log:       log,
		loc:       loc,
		db:        db,
		repos:     repos,
		rollups:   rollups,
		sessions:  sessions,
		watchdog:  watchdog,
		reminders: reminders,
		stats:     stats,
		jobs:      service.NewJobService(rollups, reminders, watchdog, stats, backups.Snapshot, sink, clk, log),
	}, nil
}

func (a *app) schedule() service.Schedule {
	return service.Schedule{
		WeeklyResetDay:    time.Weekday(a.cfg.WeeklyResetDay),
		WeeklyResetHour:   a.cfg.WeeklyResetHour,
		WeeklyResetMinute: a.cfg.WeeklyResetMinute,
		BackupInterval:    a.cfg.BackupInterval(),
		ReminderHours:     a.cfg.ReminderHours,
		WatchdogInterval:  a.cfg.WatchdogInterval,
		DailyReportTime:   a.cfg.DailyReportTime,
	}
}

func (a *app) Close() {
	if err := repository.Close(a.db); err != nil {
		a.log.Error("close db", "error", err)
	}
}

// eventSinks returns the log sink plus Kafka when brokers are configured and
// Telegram when sender is non-nil. closeSinks releases the Kafka writer.
func eventSinks(cfg config.Config, log *slog.Logger, sender bot.Sender) ([]notify.Sink, func(), error) {
	closeSinks := func() {}
	sinks := []notify.Sink{notify.NewLogSink(log)}

	if sender != nil {
		loc, err := cfg.Location()
		if err != nil {
			return nil, closeSinks, err
		}
		sinks = append(sinks, bot.NewTelegramSink(sender, cfg.AdminChatID, loc))
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer, err := notify.NewKafkaWriter(cfg.KafkaBrokers)
		if err != nil {
			return nil, closeSinks, err
		}
		kafkaSink := notify.NewKafkaSink(writer, cfg.KafkaTopic)
		closeSinks = func() {
			if err := kafkaSink.Close(); err != nil {
				log.Error("close kafka writer", "error", err)
			}
		}
		sinks = append(sinks, kafkaSink)
		log.Info("publishing events to kafka", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}
	return sinks, closeSinks, nil
}
