package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/client"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const EnvPrefix = "DASHBOARD"

type Config struct {
	Realtime RealtimeConfig `mapstructure:"realtime"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
}

// RealtimeConfig locates the realtime server. The host used to be baked
// into the dashboard; it is only a default here.
type RealtimeConfig struct {
	Scheme string `mapstructure:"scheme"`
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Path   string `mapstructure:"path"`
	UserID string `mapstructure:"userId"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnectDelay"`
	ConnectTimeout    time.Duration `mapstructure:"connectTimeout"`
	WriteTimeout      time.Duration `mapstructure:"writeTimeout"`
	ReadLimit         int64         `mapstructure:"readLimit"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("realtime.scheme", "ws")
	v.SetDefault("realtime.host", "localhost")
	v.SetDefault("realtime.port", 8080)
	v.SetDefault("realtime.path", "/user")
	v.SetDefault("realtime.userId", "")
	v.SetDefault("realtime.heartbeatInterval", client.DefaultHeartbeatInterval)
	v.SetDefault("realtime.reconnectDelay", client.DefaultReconnectDelay)
	v.SetDefault("realtime.connectTimeout", time.Duration(0))
	v.SetDefault("realtime.writeTimeout", client.DefaultWriteTimeout)
	v.SetDefault("realtime.readLimit", client.DefaultReadLimit)
	v.SetDefault("http.address", ":3001")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load layers defaults, an optional config file and DASHBOARD_* environment
// variables (highest wins). envFile, when it exists, is loaded into the
// process environment first. An empty file means "dashboard.{yaml,json,...}
// in the working directory, if present".
func Load(file, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("dashboard")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	r := c.Realtime
	if r.Scheme != "ws" && r.Scheme != "wss" {
		err = multierr.Append(err, fmt.Errorf("realtime.scheme must be ws or wss, got %q", r.Scheme))
	}
	if r.Host == "" {
		err = multierr.Append(err, errors.New("realtime.host cannot be empty"))
	}
	if r.Port <= 0 || r.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("realtime.port must be between 1 and 65535, got %d", r.Port))
	}
	if !strings.HasPrefix(r.Path, "/") {
		err = multierr.Append(err, fmt.Errorf("realtime.path must start with /, got %q", r.Path))
	}
	if r.HeartbeatInterval <= 0 {
		err = multierr.Append(err, errors.New("realtime.heartbeatInterval must be positive"))
	}
	if r.ReconnectDelay <= 0 {
		err = multierr.Append(err, errors.New("realtime.reconnectDelay must be positive"))
	}
	if r.ConnectTimeout < 0 {
		err = multierr.Append(err, errors.New("realtime.connectTimeout cannot be negative"))
	}
	if r.WriteTimeout <= 0 {
		err = multierr.Append(err, errors.New("realtime.writeTimeout must be positive"))
	}
	if c.HTTP.Address == "" {
		err = multierr.Append(err, errors.New("http.address cannot be empty"))
	}
	return err
}

func (r RealtimeConfig) BaseURL() string {
	u := url.URL{
		Scheme: r.Scheme,
		Host:   net.JoinHostPort(r.Host, strconv.Itoa(r.Port)),
		Path:   r.Path,
	}
	return u.String()
}

// ClientConfig maps the realtime section onto the connection manager. The
// caller's identity, when set, wins over the configured one.
func (r RealtimeConfig) ClientConfig(userID string) client.Config {
	if userID == "" {
		userID = r.UserID
	}
	return client.Config{
		URL:               r.BaseURL(),
		UserID:            userID,
		HeartbeatInterval: r.HeartbeatInterval,
		ReconnectDelay:    r.ReconnectDelay,
		ConnectTimeout:    r.ConnectTimeout,
		WriteTimeout:      r.WriteTimeout,
		ReadLimit:         r.ReadLimit,
	}
}
