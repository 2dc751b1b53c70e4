package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultDBPath             = "data/communitybot.db"
	DefaultLogLevel           = "INFO"
	DefaultDashboardListen    = "127.0.0.1:8124"
	DefaultDashboardOrigin    = "http://localhost:8124"
	DefaultDashboardRateLimit = 5.0
)

// Config keys, read from the environment by their upper-case names.
const (
	KeyDiscordToken       = "discord_token"
	KeyGuildID            = "guild_id"
	KeyDBPath             = "db_path"
	KeyLogLevel           = "log_level"
	KeyDashboardListen    = "dashboard_listen"
	KeyDashboardToken     = "dashboard_token"
	KeyDashboardOrigin    = "dashboard_origin"
	KeyDashboardRateLimit = "dashboard_rate_limit"
)

type Config struct {
	Token    string
	GuildID  string // optional: single-server command registration
	DBPath   string
	LogLevel slog.Level

	Dashboard DashboardConfig
}

// DashboardConfig configures the HTTP dashboard. An empty Listen disables it.
type DashboardConfig struct {
	Listen    string
	Token     string
	Origin    string
	RateLimit float64
}

func (c DashboardConfig) Enabled() bool { return c.Listen != "" }

// LoadEnv loads a .env file into the process environment. A missing default
// .env is not an error; a missing explicitly named file is.
func LoadEnv(file string) error {
	if file == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return godotenv.Load(file)
}

// NewViper returns a viper instance with every key defaulted and bound to
// its environment variable.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDiscordToken, "")
	v.SetDefault(KeyGuildID, "")
	v.SetDefault(KeyDBPath, DefaultDBPath)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyDashboardListen, DefaultDashboardListen)
	v.SetDefault(KeyDashboardToken, "")
	v.SetDefault(KeyDashboardOrigin, DefaultDashboardOrigin)
	v.SetDefault(KeyDashboardRateLimit, DefaultDashboardRateLimit)

	// DASHBOARD_LISTEN= must be able to switch the dashboard off.
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	return v
}

// LoadConfig reads a Config out of v. It does not check that the values are
// usable for running the bot; see Validate.
func LoadConfig(v *viper.Viper) (Config, error) {
	lvl, err := ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return Config{}, err
	}

	dbPath := strings.TrimSpace(v.GetString(KeyDBPath))
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	return Config{
		Token:    strings.TrimSpace(v.GetString(KeyDiscordToken)),
		GuildID:  strings.TrimSpace(v.GetString(KeyGuildID)),
		DBPath:   dbPath,
		LogLevel: lvl,
		Dashboard: DashboardConfig{
			Listen:    strings.TrimSpace(v.GetString(KeyDashboardListen)),
			Token:     strings.TrimSpace(v.GetString(KeyDashboardToken)),
			Origin:    strings.TrimSpace(v.GetString(KeyDashboardOrigin)),
			RateLimit: v.GetFloat64(KeyDashboardRateLimit),
		},
	}, nil
}

// Validate checks what `run` needs.
func (c Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required"))
	}
	if c.Dashboard.Enabled() {
		if c.Dashboard.Token == "" {
			errs = append(errs, errors.New("DASHBOARD_TOKEN is required when the dashboard is enabled"))
		}
		if c.Dashboard.RateLimit <= 0 {
			errs = append(errs, fmt.Errorf("DASHBOARD_RATE_LIMIT must be positive, got %v", c.Dashboard.RateLimit))
		}
	}
	return errors.Join(errs...)
}
