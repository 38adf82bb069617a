package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"worktime/internal/bot"
	"worktime/internal/model"
	"worktime/internal/notify"
)

// withApp wires the services for a one-shot command. Events always go to
// the log. With deliver set they also reach Telegram when a token is
// configured and Kafka when brokers are.
func withApp(cmd *cobra.Command, deliver bool, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	var sink notify.Sink = notify.NewLogSink(log)
	if deliver {
		var sender bot.Sender
		if cfg.TelegramToken != "" {
			api, err := bot.Connect(cfg.TelegramToken)
			if err != nil {
				return err
			}
			sender = api
		}
		sinks, closeSinks, err := eventSinks(cfg, log, sender)
		if err != nil {
			return err
		}
		defer closeSinks()
		sink = notify.Multi(sinks)
	}

	a, err := newApp(cfg, log, sink)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot of the database to the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app) error {
				b, err := a.jobs.Backup(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "backup written: %s (%d bytes)\n", b.Path, b.SizeBytes)
				return err
			})
		},
	}
}

func newResetWeekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-week",
		Short: "Clear the current week's rollups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app) error {
				n, err := a.jobs.WeeklyReset(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "week %s reset for %d users\n", a.rollups.CurrentWeekKey(), n)
				return err
			})
		},
	}
}

func newRebuildCmd() *cobra.Command {
	var week, month string
	var all bool
	cmd := &cobra.Command{
		Use:   "rebuild-rollups",
		Short: "Recompute rollups from ended sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set := 0
			for _, on := range []bool{week != "", month != "", all} {
				if on {
					set++
				}
			}
			if set != 1 {
				return errors.New("pass exactly one of --week, --month or --all")
			}
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				var (
					n     int
					scope string
					err   error
				)
				switch {
				case all:
					scope = "all periods"
					n, err = a.rollups.RebuildAll(ctx)
				case week != "":
					var day time.Time
					if day, err = model.ParsePeriodKey(week, a.loc); err != nil {
						return err
					}
					scope = "week " + model.PeriodKey(model.WeekStart(day))
					n, err = a.rollups.RebuildWeek(ctx, day)
				default:
					var day time.Time
					if day, err = model.ParsePeriodKey(month, a.loc); err != nil {
						return err
					}
					scope = "month " + model.PeriodKey(model.MonthStart(day))
					n, err = a.rollups.RebuildMonth(ctx, day)
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %s from %d sessions\n", scope, n)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "any day (YYYY-MM-DD) of the week to rebuild")
	cmd.Flags().StringVar(&month, "month", "", "any day (YYYY-MM-DD) of the month to rebuild")
	cmd.Flags().BoolVar(&all, "all", false, "rebuild every period")
	return cmd
}

func newCloseAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close-all",
		Short: "End every active session and notify the affected users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app) error {
				closed, err := a.sessions.CloseAll(ctx)
				if _, werr := fmt.Fprintf(cmd.OutOrStdout(), "closed %d sessions\n", len(closed)); werr != nil {
					return werr
				}
				return err
			})
		},
	}
}

func newWatchdogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watchdog",
		Short: "Run one watchdog pass over long sessions and notify the affected users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app) error {
				res, err := a.jobs.Watchdog(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range res.Ended {
					if _, err := fmt.Fprintf(out, "ended session %d of user %d (%d min)\n", s.ID, s.UserID, s.Minutes()); err != nil {
						return err
					}
				}
				_, err = fmt.Fprintf(out, "auto-ended %d, failed %d\n", len(res.Ended), res.Failed)
				return err
			})
		},
	}
}

func newRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "List users behind on today's goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				due, err := a.reminders.Due(ctx, time.Now())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "USER\tNAME\tGOAL\tDONE\tLEFT")
				for _, r := range due {
					_, _ = fmt.Fprintf(tw, "%d\t%s\t%.1fh\t%.1fh\t%.1fh\n", r.UserID, r.Username, r.GoalHours, r.CompletedHours, r.RemainingHours)
				}
				return tw.Flush()
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store-wide counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				st, err := a.stats.System(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(),
					"users: %d\nactive sessions: %d\nended sessions: %d\nsessions today: %d\nrollup rows: %d\ndatabase bytes: %d\n",
					st.Users, st.ActiveSessions, st.EndedSessions, st.SessionsToday, st.RollupRows, st.DatabaseBytes)
				return err
			})
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print today's activity compared with yesterday",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				r, err := a.stats.DailyReport(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "report for %s\n", r.Day)
				_, _ = fmt.Fprintf(out, "today: %d sessions, %d min\n", r.Today.Sessions, r.Today.Minutes)
				_, _ = fmt.Fprintf(out, "yesterday: %d sessions, %d min\n", r.Yesterday.Sessions, r.Yesterday.Minutes)
				_, _ = fmt.Fprintf(out, "working now: %d\n\n", r.Active)
				return printStandings(out, r.Top)
			})
		},
	}
}

func newTopCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "top [daily|weekly|monthly|overall]",
		Short: "Print the leaderboard for a period",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			period, err := model.ParsePeriod(raw)
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(ctx context.Context, a *app) error {
				standings, err := a.rollups.TopPerformers(ctx, period, limit)
				if err != nil {
					return err
				}
				return printStandings(cmd.OutOrStdout(), standings)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of rows")
	return cmd
}

func printStandings(w io.Writer, standings []model.Standing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tUSER\tNAME\tMINUTES\tSESSIONS")
	for i, s := range standings {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\n", i+1, s.UserID, s.Username, s.TotalMinutes, s.SessionsCount)
	}
	return tw.Flush()
}
