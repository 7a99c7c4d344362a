package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rbright/timetree-digest/internal/timetree"
)

const (
	SinkDiscord = "discord"
	SinkDesktop = "desktop"
	SinkStdout  = "stdout"
	SinkWaybar  = "waybar"

	defaultTimeoutSeconds = 8
	maxTimeoutSeconds     = 60
)

type Runtime struct {
	ConfigFile string

	Email      string
	Password   string
	CalendarID string
	WebhookURL string

	BaseURL         string
	Timeout         time.Duration
	Location        *time.Location
	Sinks           []string
	WeeklyOnMonday  bool
	DiscordUsername string
	LogLevel        string
}

// MissingError lists required settings that have no value.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required settings: %s", strings.Join(e.Keys, ", "))
}

func Load() (Runtime, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Runtime{}, fmt.Errorf("resolve home dir: %w", err)
	}

	xdgConfig := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	defaultConfig := filepath.Join(xdgConfig, "timetree-digest", "timetree-digest.env")
	configFile := strings.TrimSpace(os.Getenv("TIMETREE_DIGEST_CONFIG_FILE"))
	if configFile == "" {
		configFile = defaultConfig
	}

	// Real environment wins over both files; the explicit config file wins
	// over a .env in the working directory.
	if err := loadEnvFiles(configFile, ".env"); err != nil {
		return Runtime{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("TIMETREE_DIGEST")
	v.AutomaticEnv()

	_ = v.BindEnv("email", "TIMETREE_DIGEST_EMAIL", "TIMETREE_EMAIL")
	_ = v.BindEnv("password", "TIMETREE_DIGEST_PASSWORD", "TIMETREE_PASSWORD")
	_ = v.BindEnv("calendar_id", "TIMETREE_DIGEST_CALENDAR_ID", "TIMETREE_CALENDAR_ID")
	_ = v.BindEnv("webhook_url", "TIMETREE_DIGEST_WEBHOOK_URL", "DISCORD_WEBHOOK_URL")
	_ = v.BindEnv("base_url", "TIMETREE_DIGEST_BASE_URL")
	_ = v.BindEnv("timeout_seconds", "TIMETREE_DIGEST_TIMEOUT_SECONDS")
	_ = v.BindEnv("timezone", "TIMETREE_DIGEST_TIMEZONE")
	_ = v.BindEnv("sinks", "TIMETREE_DIGEST_SINKS")
	_ = v.BindEnv("weekly_on_monday", "TIMETREE_DIGEST_WEEKLY_ON_MONDAY")
	_ = v.BindEnv("discord_username", "TIMETREE_DIGEST_DISCORD_USERNAME")
	_ = v.BindEnv("log_level", "TIMETREE_DIGEST_LOG_LEVEL")

	v.SetDefault("base_url", timetree.DefaultBaseURL)
	v.SetDefault("timeout_seconds", defaultTimeoutSeconds)
	v.SetDefault("timezone", "Local")
	v.SetDefault("sinks", SinkDiscord)
	v.SetDefault("weekly_on_monday", true)
	v.SetDefault("log_level", "info")

	timeoutSeconds := v.GetInt("timeout_seconds")
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}
	if timeoutSeconds > maxTimeoutSeconds {
		timeoutSeconds = maxTimeoutSeconds
	}

	baseURL := strings.TrimSpace(v.GetString("base_url"))
	if baseURL == "" {
		baseURL = timetree.DefaultBaseURL
	}

	location, err := loadLocation(v.GetString("timezone"))
	if err != nil {
		return Runtime{}, err
	}

	sinks, err := ParseSinks(v.GetString("sinks"))
	if err != nil {
		return Runtime{}, err
	}

	return Runtime{
		ConfigFile:      configFile,
		Email:           strings.TrimSpace(v.GetString("email")),
		Password:        v.GetString("password"),
		CalendarID:      strings.TrimSpace(v.GetString("calendar_id")),
		WebhookURL:      strings.TrimSpace(v.GetString("webhook_url")),
		BaseURL:         baseURL,
		Timeout:         time.Duration(timeoutSeconds) * time.Second,
		Location:        location,
		Sinks:           sinks,
		WeeklyOnMonday:  v.GetBool("weekly_on_monday"),
		DiscordUsername: strings.TrimSpace(v.GetString("discord_username")),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
	}, nil
}

func (r Runtime) Credentials() timetree.Credentials {
	return timetree.Credentials{Email: r.Email, Password: r.Password}
}

// Validate reports every missing setting at once. The webhook is only
// required when delivering through the discord sink.
func (r Runtime) Validate(deliver bool) error {
	var missing []string
	if r.Email == "" {
		missing = append(missing, "TIMETREE_EMAIL")
	}
	if r.Password == "" {
		missing = append(missing, "TIMETREE_PASSWORD")
	}
	if deliver && r.HasSink(SinkDiscord) && r.WebhookURL == "" {
		missing = append(missing, "DISCORD_WEBHOOK_URL")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}

func (r Runtime) HasSink(name string) bool {
	for _, sink := range r.Sinks {
		if sink == name {
			return true
		}
	}
	return false
}

// ParseSinks reads a comma or space separated sink list.
func ParseSinks(value string) ([]string, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})

	seen := make(map[string]struct{}, len(fields))
	sinks := make([]string, 0, len(fields))
	for _, field := range fields {
		name := strings.ToLower(strings.TrimSpace(field))
		switch name {
		case SinkDiscord, SinkDesktop, SinkStdout, SinkWaybar:
		default:
			return nil, fmt.Errorf("unknown sink %q (want one of %s)", field, strings.Join([]string{SinkDiscord, SinkDesktop, SinkStdout, SinkWaybar}, ", "))
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sinks = append(sinks, name)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("at least one sink is required")
	}
	return sinks, nil
}

func loadLocation(name string) (*time.Location, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.EqualFold(trimmed, "local") {
		return time.Local, nil
	}
	location, err := time.LoadLocation(trimmed)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", trimmed, err)
	}
	return location, nil
}

func loadEnvFiles(paths ...string) error {
	existing := make([]string, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		existing = append(existing, path)
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}
