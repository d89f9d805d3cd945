// Package config loads pcmcirun settings and writes the configuration record.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// PCMCIRUN_* environment variables. Command-line flags are applied last by
// the cli package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pcmcirun/internal/discovery"
)

// EnvPrefix prefixes every environment override, e.g. PCMCIRUN_DISCOVERY_ALPHA.
const EnvPrefix = "PCMCIRUN"

// EnvConfigPath names the config file when no path is given.
const EnvConfigPath = "PCMCIRUN_CONFIG"

// Config is the full set of pcmcirun settings.
type Config struct {
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DiscoveryConfig controls the engine call.
type DiscoveryConfig struct {
	TauMin           int           `yaml:"tau_min" split_words:"true" validate:"min=1"`
	TauMax           int           `yaml:"tau_max" split_words:"true" validate:"gtefield=TauMin"`
	Alpha            float64       `yaml:"alpha" validate:"gt=0,lt=1"`
	CondIndTest      string        `yaml:"cond_ind_test" split_words:"true" validate:"oneof=parcorr gpdc"`
	LinAlgErrorThrow bool          `yaml:"linalg_error_throw" split_words:"true"`
	Timeout          time.Duration `yaml:"timeout" validate:"gte=0"`
	Engine           string        `yaml:"engine" validate:"required"`
	EngineArgs       []string      `yaml:"engine_args" split_words:"true"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// LedgerConfig locates the run history database. An empty path disables it.
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig locates the Prometheus textfile written after each run.
// An empty path disables it.
type MetricsConfig struct {
	File string `yaml:"file"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Discovery: DiscoveryConfig{
			TauMin:      discovery.DefaultTauMin,
			TauMax:      discovery.DefaultTauMax,
			Alpha:       discovery.DefaultAlpha,
			CondIndTest: string(discovery.ParCorr),
			Engine:      discovery.DefaultEngineCommand,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Params returns the discovery parameters.
func (d DiscoveryConfig) Params() discovery.Params {
	return discovery.Params{TauMin: d.TauMin, TauMax: d.TauMax, Alpha: d.Alpha}
}

// Test returns the configured conditional independence test.
func (d DiscoveryConfig) Test() discovery.CondIndTest {
	return discovery.CondIndTest(d.CondIndTest)
}

// Load builds a Config from defaults, the YAML file at path and environment
// overrides, then validates it. An empty path falls back to $PCMCIRUN_CONFIG;
// if that is unset too, no file is read.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists every invalid setting.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks every setting.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	ve := &ValidationError{}
	for _, fe := range fieldErrs {
		ve.Problems = append(ve.Problems, describe(fe))
	}
	return ve
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.discovery.tau_min"; drop the type name.
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s, got %v", field, param, fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must not be below tau_min, got %v", field, fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s, got %v", field, param, fe.Value())
	case "lt":
		return fmt.Sprintf("%s must be less than %s, got %v", field, param, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s, got %q", field, strings.ReplaceAll(param, " ", ", "), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
