// Package config loads the crawler configuration from a YAML file,
// HOUSING_CRAWLER_* environment variables, a .env file and command flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/researchaccelerator-hub/housing-map-crawler/client"
	"github.com/researchaccelerator-hub/housing-map-crawler/crawl"
	"github.com/researchaccelerator-hub/housing-map-crawler/geo"
	"github.com/researchaccelerator-hub/housing-map-crawler/model"
	"github.com/researchaccelerator-hub/housing-map-crawler/state"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "HOUSING_CRAWLER"

// ErrUnknownCity is returned by City for a name or code that is not configured.
var ErrUnknownCity = errors.New("unknown city")

// Config is the full application configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage" json:"storage"`
	API     APIConfig     `mapstructure:"api" json:"api"`
	Crawl   CrawlConfig   `mapstructure:"crawl" json:"crawl"`
	Server  ServerConfig  `mapstructure:"server" json:"server"`
	Log     LogConfig     `mapstructure:"log" json:"log"`

	// CitiesFile is a JSON city list, merged after Cities.
	CitiesFile string       `mapstructure:"cities_file" json:"cities_file"`
	Cities     []model.City `mapstructure:"cities" json:"cities"`
}

// StorageConfig selects the progress store backend.
type StorageConfig struct {
	Driver string     `mapstructure:"driver" json:"driver"` // "sqlite", "postgres" or "dapr"
	DSN    string     `mapstructure:"dsn" json:"-"`
	Dapr   DaprConfig `mapstructure:"dapr" json:"dapr"`
}

// DaprConfig holds Dapr-specific configuration
type DaprConfig struct {
	StateStore string `mapstructure:"state_store" json:"state_store"`
	GRPCPort   string `mapstructure:"grpc_port" json:"grpc_port"`
}

// APIConfig configures the upstream client.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" json:"base_url"`
	UserAgent string        `mapstructure:"user_agent" json:"user_agent"`
	Cookie    string        `mapstructure:"cookie" json:"-"`
	Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
	Retries   int           `mapstructure:"retries" json:"retries"`
	Backoff   time.Duration `mapstructure:"backoff" json:"backoff"`
}

// CrawlConfig tunes the crawl stages.
type CrawlConfig struct {
	Concurrency int                `mapstructure:"concurrency" json:"concurrency"`
	BubbleDelay time.Duration      `mapstructure:"bubble_delay" json:"bubble_delay"`
	HouseDelay  time.Duration      `mapstructure:"house_delay" json:"house_delay"`
	DetailDelay time.Duration      `mapstructure:"detail_delay" json:"detail_delay"`
	Steps       map[string]float64 `mapstructure:"steps" json:"steps"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
	// DaprPort serves the Dapr invocation and job handlers when non-zero.
	DaprPort int `mapstructure:"dapr_port" json:"dapr_port"`
}

type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
	// Dir holds the per-city, per-date run logs.
	Dir string `mapstructure:"dir" json:"dir"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	steps := make(map[string]float64)
	for gt, s := range crawl.DefaultConfig().Steps {
		steps[string(gt)] = s
	}
	return &Config{
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "data/housing.db",
			Dapr: DaprConfig{
				StateStore: "statestore",
				GRPCPort:   "50001",
			},
		},
		API: APIConfig{
			BaseURL:   client.DefaultBaseURL,
			UserAgent: client.DefaultUserAgent,
			Timeout:   30 * time.Second,
			Retries:   2,
			Backoff:   2 * time.Second,
		},
		Crawl: CrawlConfig{
			Concurrency: 3,
			BubbleDelay: 100 * time.Millisecond,
			HouseDelay:  100 * time.Millisecond,
			DetailDelay: 100 * time.Millisecond,
			Steps:       steps,
		},
		Server:     ServerConfig{Addr: ":8000"},
		Log:        LogConfig{Level: "info", Dir: "log"},
		CitiesFile: "data/city_list.json",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	case "dapr":
		if c.Storage.Dapr.StateStore == "" {
			return fmt.Errorf("storage.dapr.state_store cannot be empty")
		}
	default:
		return fmt.Errorf("invalid storage.driver '%s', must be one of: sqlite, postgres, dapr", c.Storage.Driver)
	}

	if c.Crawl.Concurrency < 1 {
		return fmt.Errorf("crawl.concurrency must be at least 1")
	}
	if c.Crawl.BubbleDelay <= 0 || c.Crawl.HouseDelay <= 0 || c.Crawl.DetailDelay <= 0 {
		return fmt.Errorf("crawl delays must be positive")
	}
	for name, step := range c.Crawl.Steps {
		if _, err := model.ParseGroupType(name); err != nil {
			return fmt.Errorf("crawl.steps: %w", err)
		}
		if step < geo.MinStep {
			return fmt.Errorf("crawl.steps.%s must be at least %v", name, geo.MinStep)
		}
	}

	if c.API.Retries < 0 {
		return fmt.Errorf("api.retries cannot be negative")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	if c.Server.DaprPort < 0 || c.Server.DaprPort > 65535 {
		return fmt.Errorf("server.dapr_port must be between 0 and 65535")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}

	seen := make(map[string]bool, len(c.Cities))
	for _, city := range c.Cities {
		if city.Name == "" || city.Code == "" {
			return fmt.Errorf("city entries need a name and a code: %+v", city)
		}
		if seen[city.Name] {
			return fmt.Errorf("duplicate city %q", city.Name)
		}
		seen[city.Name] = true
	}
	return nil
}

// City looks up a configured city by name or code.
func (c *Config) City(nameOrCode string) (model.City, error) {
	for _, city := range c.Cities {
		if city.Name == nameOrCode || city.Code == nameOrCode {
			return city, nil
		}
	}
	return model.City{}, fmt.Errorf("%w: %s", ErrUnknownCity, nameOrCode)
}

// StateConfig returns the store configuration.
func (c *Config) StateConfig() state.Config {
	cfg := state.Config{Driver: c.Storage.Driver, DSN: c.Storage.DSN}
	if c.Storage.Driver == "dapr" {
		cfg.DaprConfig = &state.DaprConfig{
			StateStoreName: c.Storage.Dapr.StateStore,
			GRPCPort:       c.Storage.Dapr.GRPCPort,
		}
	}
	return cfg
}

// ClientConfig returns the upstream client configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:   c.API.BaseURL,
		UserAgent: c.API.UserAgent,
		Cookie:    c.API.Cookie,
		Timeout:   c.API.Timeout,
		Retries:   c.API.Retries,
		Backoff:   c.API.Backoff,
	}
}

// CrawlConfig returns the crawl stage configuration.
func (c *Config) CrawlConfig() crawl.Config {
	steps := make(map[model.GroupType]float64, len(c.Crawl.Steps))
	for name, s := range c.Crawl.Steps {
		steps[model.GroupType(name)] = s
	}
	return crawl.Config{
		Concurrency: c.Crawl.Concurrency,
		BubbleDelay: c.Crawl.BubbleDelay,
		HouseDelay:  c.Crawl.HouseDelay,
		DetailDelay: c.Crawl.DetailDelay,
		Steps:       steps,
	}
}

// SetDefaults registers every default with v so that environment variables
// can override keys that are absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.dapr.state_store", d.Storage.Dapr.StateStore)
	v.SetDefault("storage.dapr.grpc_port", d.Storage.Dapr.GRPCPort)
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.user_agent", d.API.UserAgent)
	v.SetDefault("api.cookie", "")
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("api.retries", d.API.Retries)
	v.SetDefault("api.backoff", d.API.Backoff)
	v.SetDefault("crawl.concurrency", d.Crawl.Concurrency)
	v.SetDefault("crawl.bubble_delay", d.Crawl.BubbleDelay)
	v.SetDefault("crawl.house_delay", d.Crawl.HouseDelay)
	v.SetDefault("crawl.detail_delay", d.Crawl.DetailDelay)
	v.SetDefault("crawl.steps", d.Crawl.Steps)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.dapr_port", d.Server.DaprPort)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("cities_file", d.CitiesFile)
}

// NewViper returns a viper instance with defaults and environment binding.
// A .env file in the working directory is loaded first when present.
func NewViper() *viper.Viper {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (explicit path, or config.yaml in the working
// directory when present) into a validated Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.CitiesFile != "" {
		cities, err := LoadCities(cfg.CitiesFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Debug().Str("file", cfg.CitiesFile).Msg("No city list file")
		case err != nil:
			return nil, err
		default:
			cfg.Cities = mergeCities(cfg.Cities, cities)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cityRecord is one entry of a city list file.
type cityRecord struct {
	Name     string  `json:"name"`
	URL      string  `json:"url"`
	Code     string  `json:"code"`
	MinLat   float64 `json:"min_lat"`
	MaxLat   float64 `json:"max_lat"`
	MinLon   float64 `json:"min_lon"`
	MaxLon   float64 `json:"max_lon"`
	Polyline string  `json:"polyline,omitempty"`
}

// LoadCities reads a JSON city list with flat bounding box fields.
func LoadCities(path string) ([]model.City, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read city list: %w", err)
	}
	var records []cityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse city list %s: %w", path, err)
	}

	cities := make([]model.City, 0, len(records))
	for _, r := range records {
		cities = append(cities, model.City{
			Name:     r.Name,
			Code:     r.Code,
			URL:      r.URL,
			Box:      geo.Box{MinLat: r.MinLat, MaxLat: r.MaxLat, MinLon: r.MinLon, MaxLon: r.MaxLon},
			Polyline: r.Polyline,
		})
	}
	return cities, nil
}

// mergeCities appends the cities of extra whose name is not already known.
func mergeCities(base, extra []model.City) []model.City {
	known := make(map[string]bool, len(base))
	for _, c := range base {
		known[c.Name] = true
	}
	for _, c := range extra {
		if !known[c.Name] {
			base = append(base, c)
			known[c.Name] = true
		}
	}
	return base
}
