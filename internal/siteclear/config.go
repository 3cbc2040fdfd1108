package siteclear

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const AppName = "siteclear"

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Environment string `yaml:"environment"`

	Profile struct {
		Dir string `yaml:"dir"`
		// URL of the document the profile belongs to. Its host scopes cookies
		// and its path supplies the default cookie path.
		URL string `yaml:"url"`
	} `yaml:"profile"`

	Storage struct {
		RAM struct {
			Max string `yaml:"max"`
		} `yaml:"ram"`
		Disk struct {
			Max string `yaml:"max"`
		} `yaml:"disk"`
		LocalStorage struct {
			Disabled bool `yaml:"disabled"`
		} `yaml:"localStorage"`
		SessionStorage struct {
			Disabled bool `yaml:"disabled"`
		} `yaml:"sessionStorage"`
	} `yaml:"storage"`

	Cookies struct {
		Auth string `yaml:"auth"`
	} `yaml:"cookies"`

	Events struct {
		Origin   string   `yaml:"origin"`
		Prefetch []string `yaml:"prefetch"`
	} `yaml:"events"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Reload struct {
		URL string `yaml:"url"`
	} `yaml:"reload"`

	Logging struct {
		Level         string `yaml:"level"`
		LogStatsEvery string `yaml:"logStatsEvery"`

		logStatsEveryDur time.Duration
		level            logrus.Level
	} `yaml:"logging"`

	// compiled
	ramMax  int64
	diskMax int64
	docURL  *url.URL
}

// DefaultProfileDir is the profile location used when profile.dir is unset.
func DefaultProfileDir() string {
	return filepath.Join(xdg.DataHome, AppName, "profile")
}

// DefaultConfigPath is where the CLI looks for a config file by default.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "siteclear.yaml")
}

// DefaultConfig returns a validated config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	if err := cfg.normalize(); err != nil {
		panic(err)
	}
	return cfg
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Environment == "" {
		cfg.Environment = EnvDevelopment
	}
	switch cfg.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("environment: unknown value %q", cfg.Environment)
	}

	if cfg.Profile.Dir == "" {
		cfg.Profile.Dir = DefaultProfileDir()
	}
	if cfg.Profile.URL == "" {
		cfg.Profile.URL = "http://localhost/"
	}
	u, err := url.Parse(cfg.Profile.URL)
	if err != nil {
		return fmt.Errorf("profile.url: %w", err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("profile.url: missing host in %q", cfg.Profile.URL)
	}
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	cfg.docURL = u

	if cfg.Storage.RAM.Max == "" {
		cfg.Storage.RAM.Max = "64mb"
	}
	if cfg.Storage.Disk.Max == "" {
		cfg.Storage.Disk.Max = "512mb"
	}
	if cfg.ramMax, err = parseBytes(cfg.Storage.RAM.Max); err != nil {
		return fmt.Errorf("storage.ram.max: %w", err)
	}
	if cfg.diskMax, err = parseBytes(cfg.Storage.Disk.Max); err != nil {
		return fmt.Errorf("storage.disk.max: %w", err)
	}

	if cfg.Cookies.Auth == "" {
		cfg.Cookies.Auth = "token"
	}

	cfg.Events.Origin = strings.TrimRight(cfg.Events.Origin, "/")
	for i, p := range cfg.Events.Prefetch {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("events.prefetch[%d]: path must start with /, got %q", i, p)
		}
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.level, err = logrus.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.LogStatsEvery != "" {
		d, err := time.ParseDuration(cfg.Logging.LogStatsEvery)
		if err != nil {
			return fmt.Errorf("logging.logStatsEvery: %w", err)
		}
		cfg.Logging.logStatsEveryDur = d
	}
	return nil
}

// Production reports whether the config targets a production build.
func (cfg Config) Production() bool { return cfg.Environment == EnvProduction }

// ListenAddr is the address the admin server binds to.
func (cfg Config) ListenAddr() string {
	return net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
}

// Hostname is the host cookies are scoped to.
func (cfg Config) Hostname() string { return cfg.docURL.Hostname() }

// Origin is scheme://host[:port] of the profile document.
func (cfg Config) Origin() string { return cfg.docURL.Scheme + "://" + cfg.docURL.Host }

// DocumentPath is the path of the profile document.
func (cfg Config) DocumentPath() string { return cfg.docURL.Path }

// LogLevel is the parsed logging.level.
func (cfg Config) LogLevel() logrus.Level { return cfg.Logging.level }
