// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Link configures the duplex channel to the rover server.
type Link struct {
	Endpoint          string        `yaml:"endpoint"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
}

// World is the mapped area in metres.
type World struct {
	WidthM  float64 `yaml:"width_m"`
	HeightM float64 `yaml:"height_m"`
}

// Map is the default drawing surface for the map projection.
type Map struct {
	SurfaceW float64 `yaml:"surface_w"`
	SurfaceH float64 `yaml:"surface_h"`
}

// History bounds the store's histories.
type History struct {
	Positions   int           `yaml:"positions"`
	Depths      int           `yaml:"depths"`
	DepthWindow int           `yaml:"depth_window"`
	StaleAfter  time.Duration `yaml:"stale_after"`
}

// Sensor is the camera resolution assumed when packets omit it.
type Sensor struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// API configures the collaborator HTTP client.
type API struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Sink configures recording. An empty GreptimeEndpoint records to stdout.
type Sink struct {
	GreptimeEndpoint string `yaml:"greptime_endpoint"`
	Database         string `yaml:"database"`
	PoseTable        string `yaml:"pose_table"`
	HazardTable      string `yaml:"hazard_table"`
	LogFile          string `yaml:"log_file"`
}

// Admin configures the HTTP surface. An empty Addr disables it.
type Admin struct {
	Addr string `yaml:"addr"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Link    Link    `yaml:"link"`
	World   World   `yaml:"world"`
	Map     Map     `yaml:"map"`
	History History `yaml:"history"`
	Sensor  Sensor  `yaml:"sensor"`
	API     API     `yaml:"api"`
	Sink    Sink    `yaml:"sink"`
	Admin   Admin   `yaml:"admin"`
	Log     Log     `yaml:"log"`
}

// Default returns a configuration with every value set.
func Default() *Config {
	return &Config{
		Link:    Link{Endpoint: "ws://localhost:8485/ws", ReconnectAttempts: 5, ReconnectDelay: time.Second},
		World:   World{WidthM: 2, HeightM: 3},
		Map:     Map{SurfaceW: 400, SurfaceH: 600},
		History: History{Positions: 100, Depths: 50, StaleAfter: 3 * time.Second},
		Sensor:  Sensor{Width: 416, Height: 416},
		API:     API{BaseURL: "http://localhost:8485", Timeout: 10 * time.Second},
		Sink:    Sink{Database: "public"},
		Admin:   Admin{Addr: ":8080"},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads configPath over the defaults, validating it against the CUE
// schema first when schemaPath is set. An empty configPath yields the
// defaults. Environment overrides are applied last.
func Load(configPath, schemaPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		if schemaPath != "" {
			if err := ValidateWithCue(configPath, schemaPath); err != nil {
				return nil, err
			}
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	slog.Debug("loaded configuration", "path", configPath, "endpoint", cfg.Link.Endpoint)
	return cfg, nil
}

// ApplyEnv overrides values from ROVERSCOPE_ENDPOINT, ROVERSCOPE_API,
// GREPTIMEDB_ENDPOINT, GREPTIMEDB_TABLE and HAZARD_TABLE.
func (c *Config) ApplyEnv() {
	for _, o := range []struct {
		key string
		dst *string
	}{
		{"ROVERSCOPE_ENDPOINT", &c.Link.Endpoint},
		{"ROVERSCOPE_API", &c.API.BaseURL},
		{"GREPTIMEDB_ENDPOINT", &c.Sink.GreptimeEndpoint},
		{"GREPTIMEDB_TABLE", &c.Sink.PoseTable},
		{"HAZARD_TABLE", &c.Sink.HazardTable},
	} {
		if v := os.Getenv(o.key); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks the invariants the schema cannot express for defaults and
// environment overrides.
func (c *Config) Validate() error {
	var errs []error
	if c.World.WidthM <= 0 || c.World.HeightM <= 0 {
		errs = append(errs, fmt.Errorf("world size must be positive, got %gx%g", c.World.WidthM, c.World.HeightM))
	}
	if c.History.Positions <= 0 || c.History.Depths <= 0 {
		errs = append(errs, errors.New("history capacities must be positive"))
	}
	if c.Link.ReconnectAttempts < 0 || c.Link.ReconnectDelay < 0 {
		errs = append(errs, errors.New("reconnect settings must not be negative"))
	}
	return errors.Join(errs...)
}
