package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	LogJSON = "json"
	LogText = "text"
)

type Config struct {
	Version  int       `yaml:"version"` // fixed 0 for now
	Server   Server    `yaml:"server"`
	Tool     Tool      `yaml:"tool"`
	Generate Generate  `yaml:"generate"`
	Ready    Readiness `yaml:"ready"`
	Log      LogConfig `yaml:"log"`
}

// Server is the HTTP listener configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // server drain + in-flight generations
}

// Tool describes how the external poster generator is invoked.
type Tool struct {
	Executable string   `yaml:"executable"`       // path or name looked up in PATH
	Script     string   `yaml:"script,omitempty"` // first argument, relative to Workdir
	Workdir    string   `yaml:"workdir"`
	Env        []string `yaml:"env,omitempty"` // KEY=VALUE added to the service environment
	Flags      Flags    `yaml:"flags"`
}

// Flags names the tool's command line flags. An empty Theme omits the style
// from the argument vector.
type Flags struct {
	City    string `yaml:"city"`
	Country string `yaml:"country"`
	Output  string `yaml:"output"`
	Zoom    string `yaml:"zoom"`
	Width   string `yaml:"width"`
	Height  string `yaml:"height"`
	Theme   string `yaml:"theme,omitempty"`
}

type Generate struct {
	OutputDir string        `yaml:"output_dir"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Readiness struct {
	Timeout time.Duration `yaml:"timeout"`
	City    string        `yaml:"city"`
	Country string        `yaml:"country"`
}

type LogConfig struct {
	Verbose bool   `yaml:"verbose"`
	Format  string `yaml:"format"` // json | text
}

func DefaultFlags() Flags {
	return Flags{
		City:    "--city",
		Country: "--country",
		Output:  "--output",
		Zoom:    "--zoom",
		Width:   "--width",
		Height:  "--height",
	}
}

func DefaultConfig() Config {
	return Config{
		Version: 0,
		Server: Server{
			Addr:            ":8000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Tool: Tool{
			Executable: "python",
			Script:     "create_map_poster.py",
			Workdir:    "/home/python/app/maptoposter",
			Flags:      DefaultFlags(),
		},
		Generate: Generate{
			OutputDir: "/home/python/app/posters",
			Timeout:   5 * time.Minute,
		},
		Ready: Readiness{
			Timeout: 60 * time.Second,
			City:    "TestCity",
			Country: "TestCountry",
		},
		Log: LogConfig{
			Format: LogJSON,
		},
	}
}

// LoadConfig validates YAML from r against the config schema and decodes it
// on top of DefaultConfig. An empty document yields the defaults.
func LoadConfig(r io.Reader) (Config, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg := DefaultConfig()
	if doc == nil {
		return cfg, cfg.Validate()
	}
	if err := validateDocument(doc); err != nil {
		return Config{}, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides configuration values from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("POSTERD_ADDR", &c.Server.Addr)
	str("POSTERD_OUTPUT_DIR", &c.Generate.OutputDir)
	str("POSTERD_TOOL_EXECUTABLE", &c.Tool.Executable)
	str("POSTERD_TOOL_SCRIPT", &c.Tool.Script)
	str("POSTERD_TOOL_WORKDIR", &c.Tool.Workdir)
	dur("POSTERD_GENERATE_TIMEOUT", &c.Generate.Timeout)
	dur("POSTERD_READY_TIMEOUT", &c.Ready.Timeout)
	if v, ok := lookup("POSTERD_VERBOSE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("POSTERD_VERBOSE: %w", err))
		} else {
			c.Log.Verbose = b
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return c.Validate()
}

// Validate checks the effective configuration against the schema, then the
// constraints spanning several fields.
func (c Config) Validate() error {
	if err := validateValue(c); err != nil {
		return err
	}
	var errs []error
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"generate.timeout", c.Generate.Timeout},
		{"ready.timeout", c.Ready.Timeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", d.name))
		}
	}
	// a /ready slower than the write timeout loses its response
	if wt := c.Server.WriteTimeout; wt > 0 && c.Ready.Timeout >= wt {
		errs = append(errs, fmt.Errorf("ready.timeout: %s must be shorter than server.write_timeout %s", c.Ready.Timeout, wt))
	}
	return errors.Join(errs...)
}
