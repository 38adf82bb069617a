package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"worktime/internal/model"
)

// FileEnv names the variable pointing at an optional YAML config file.
const FileEnv = "WORKTIME_CONFIG"

// Config keeps runtime settings for the bot and its background jobs.
type Config struct {
	TelegramToken   string  `yaml:"telegram_token" env:"TELEGRAM_TOKEN"`
	DatabaseURL     string  `yaml:"database_url" env:"DATABASE_URL"`
	BackupDirectory string  `yaml:"backup_directory" env:"BACKUP_DIRECTORY"`
	AdminChatID     int64   `yaml:"admin_chat_id" env:"ADMIN_CHAT_ID"`
	AdminUserIDs    []int64 `yaml:"admin_user_ids" env:"ADMIN_USER_IDS" envSeparator:","`
	Timezone        string  `yaml:"timezone" env:"TIMEZONE"`

	MaxSessionHours   int           `yaml:"max_session_hours" env:"AUTO_WORK_LIMIT_HOURS"`
	WatchdogInterval  time.Duration `yaml:"watchdog_interval" env:"WATCHDOG_INTERVAL"`
	WeeklyResetDay    int           `yaml:"weekly_reset_day" env:"WEEKLY_RESET_DAY"`
	WeeklyResetHour   int           `yaml:"weekly_reset_hour" env:"WEEKLY_RESET_HOUR"`
	WeeklyResetMinute int           `yaml:"weekly_reset_minute" env:"WEEKLY_RESET_MINUTE"`
	BackupIntervalHrs int           `yaml:"backup_interval_hours" env:"BACKUP_INTERVAL_HOURS"`

	DailyGoalDefaultMinutes  int     `yaml:"daily_goal_default_minutes" env:"DAILY_GOAL_DEFAULT_MINUTES"`
	WeeklyGoalDefaultMinutes int     `yaml:"weekly_goal_default_minutes" env:"WEEKLY_GOAL_DEFAULT_MINUTES"`
	ReminderHours            []int   `yaml:"reminder_hours" env:"REMINDER_HOURS" envSeparator:","`
	ReminderThreshold        float64 `yaml:"reminder_threshold" env:"REMINDER_THRESHOLD"`
	DailyReportTime          string  `yaml:"daily_report_time" env:"DAILY_REPORT_TIME"`

	KafkaBrokers []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `yaml:"kafka_topic" env:"KAFKA_TOPIC"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DatabaseURL:              "data/worktime.db",
		BackupDirectory:          "backups",
		Timezone:                 "Local",
		MaxSessionHours:          12,
		WatchdogInterval:         30 * time.Minute,
		WeeklyResetDay:           int(time.Sunday),
		WeeklyResetHour:          23,
		WeeklyResetMinute:        59,
		BackupIntervalHrs:        24,
		DailyGoalDefaultMinutes:  480,
		WeeklyGoalDefaultMinutes: 2400,
		ReminderHours:            []int{9, 13, 18},
		ReminderThreshold:        0.8,
		DailyReportTime:          "21:00",
		KafkaTopic:               "worktime.events",
		LogLevel:                 "info",
		LogFormat:                "text",
	}
}

// Load reads the optional YAML file named by path (or $WORKTIME_CONFIG when
// path is empty) over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(FileEnv))
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the scheduler or services cannot work with.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.MaxSessionHours <= 0 {
		errs = append(errs, fmt.Errorf("max session hours must be positive, got %d", c.MaxSessionHours))
	}
	if c.WatchdogInterval <= 0 {
		errs = append(errs, fmt.Errorf("watchdog interval must be positive, got %s", c.WatchdogInterval))
	}
	if c.WeeklyResetDay < 0 || c.WeeklyResetDay > 6 {
		errs = append(errs, fmt.Errorf("weekly reset day must be 0-6, got %d", c.WeeklyResetDay))
	}
	if c.WeeklyResetHour < 0 || c.WeeklyResetHour > 23 {
		errs = append(errs, fmt.Errorf("weekly reset hour must be 0-23, got %d", c.WeeklyResetHour))
	}
	if c.WeeklyResetMinute < 0 || c.WeeklyResetMinute > 59 {
		errs = append(errs, fmt.Errorf("weekly reset minute must be 0-59, got %d", c.WeeklyResetMinute))
	}
	if c.BackupIntervalHrs <= 0 {
		errs = append(errs, fmt.Errorf("backup interval must be positive, got %d", c.BackupIntervalHrs))
	}
	if c.DailyGoalDefaultMinutes <= 0 || c.WeeklyGoalDefaultMinutes <= 0 {
		errs = append(errs, errors.New("default goals must be positive"))
	}
	for _, h := range c.ReminderHours {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Errorf("reminder hour must be 0-23, got %d", h))
		}
	}
	if c.ReminderThreshold <= 0 || c.ReminderThreshold > 1 {
		errs = append(errs, fmt.Errorf("reminder threshold must be in (0,1], got %g", c.ReminderThreshold))
	}
	if c.DailyReportTime != "" {
		if _, err := time.Parse("15:04", c.DailyReportTime); err != nil {
			errs = append(errs, fmt.Errorf("daily report time must be HH:MM, got %q", c.DailyReportTime))
		}
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// MaxSession is the watchdog's session limit.
func (c Config) MaxSession() time.Duration {
	return time.Duration(c.MaxSessionHours) * time.Hour
}

// BackupInterval is how often the backup job fires.
func (c Config) BackupInterval() time.Duration {
	return time.Duration(c.BackupIntervalHrs) * time.Hour
}

// GoalDefaults are applied to newly created users.
func (c Config) GoalDefaults() model.Goals {
	return model.Goals{DailyMinutes: c.DailyGoalDefaultMinutes, WeeklyMinutes: c.WeeklyGoalDefaultMinutes}
}

// IsAdmin reports whether the user may run admin commands.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
