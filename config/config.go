// Package config loads and validates the service configuration: defaults
// from struct tags, values from a YAML file with ${VAR:default} environment
// interpolation, then struct validation.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// hostname_port validates "host:port" with a numeric port. An empty
	// host is allowed so listen addresses like ":8080" pass.
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		_, port, err := net.SplitHostPort(fl.Field().String())
		if err != nil || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	// url_format validates URL structure
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		return err == nil && u.Scheme != "" && u.Host != ""
	})
}

// Duration is a time.Duration that decodes from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a standard time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Service configures one outbound client.
type Service struct {
	BaseURL    string   `yaml:"base_url" validate:"required,url_format"`
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
}

// SetDefaults implements defaults.Setter for the duration field, which the
// tag mechanism cannot express for a named type.
func (s *Service) SetDefaults() {
	if s.Timeout <= 0 {
		s.Timeout = Duration(30 * time.Second)
	}
}

// Redis configures the flow-state store.
type Redis struct {
	Addr      string   `yaml:"addr" default:"localhost:6379" validate:"required,hostname_port"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db" default:"0" validate:"gte=0,lte=15"`
	Namespace string   `yaml:"namespace" default:"notify"`
	FlowTTL   Duration `yaml:"flow_ttl"`
}

func (r *Redis) SetDefaults() {
	if r.FlowTTL <= 0 {
		r.FlowTTL = Duration(2 * time.Hour)
	}
}

// Config is the full service configuration.
type Config struct {
	Listen string `yaml:"listen" default:":8080" validate:"required,hostname_port"`
	Redis  Redis  `yaml:"redis"`

	Services struct {
		TaskDefinitions Service `yaml:"task_definitions"`
		Audience        Service `yaml:"audience"`
		Lookup          Service `yaml:"lookup"`
		Render          Service `yaml:"render"`
	} `yaml:"services"`
}

// Load reads, interpolates, decodes and validates the configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			var messages []string
			for _, fe := range verrs {
				messages = append(messages, fmt.Sprintf("field '%s' failed rule '%s'", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("config validation failed:\n  - %s", strings.Join(messages, "\n  - "))
		}
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}`)

// interpolateEnv substitutes ${VAR} references in the raw config text.
// Unset variables resolve to their default, or to empty when none is given;
// required-ness is enforced by struct validation, not here.
func interpolateEnv(raw string) string {
	return envVarPattern.ReplaceAllStringFunc(raw, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok {
			return value
		}
		return strings.TrimPrefix(groups[2], ":")
	})
}
