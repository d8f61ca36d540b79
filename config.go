package portal

import (
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goliatone/go-errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "PORTAL_"

// Config drives the portal gateway binary. Values come from an optional
// YAML file overlaid with PORTAL_-prefixed environment variables.
type Config struct {
	// Backend is the base URL of the olympiad REST API.
	Backend struct {
		URL     string        `json:"url" yaml:"url"`
		Timeout time.Duration `json:"timeout" yaml:"timeout"`
	} `json:"backend" yaml:"backend"`

	HTTP struct {
		Listen string `json:"listen" yaml:"listen"`
	} `json:"http" yaml:"http"`

	Credentials struct {
		// Store selects the durable credential backend: "file" or "sqlite".
		Store string `json:"store" yaml:"store"`
		Path  string `json:"path" yaml:"path"`
	} `json:"credentials" yaml:"credentials"`

	Debug bool `json:"debug" yaml:"debug"`
}

// LoadConfig reads the first existing path (if any) and applies environment
// overrides. Missing files are not an error; defaults cover the rest.
func LoadConfig(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrap(err, errors.CategoryOperation, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		break
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			key = strings.ReplaceAll(strings.ToLower(key), "_", ".")
			return key, value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to load environment overrides")
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to unmarshal config")
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:8000"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = DefaultTimeout
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8572"
	}
	if c.Credentials.Store == "" {
		c.Credentials.Store = "file"
	}
	if c.Credentials.Path == "" {
		c.Credentials.Path = defaultCredentialsPath(c.Credentials.Store)
	}
}

func defaultCredentialsPath(store string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}

	name := "credentials.json"
	if store == "sqlite" {
		name = "state.db"
	}
	return base + "/olympiad-portal/" + name
}

// NewCredentialStore builds the configured durable store.
func (c *Config) NewCredentialStore() (CredentialStore, error) {
	switch c.Credentials.Store {
	case "sqlite":
		return NewSQLCredentials(c.Credentials.Path)
	case "file", "":
		return NewFileCredentials(c.Credentials.Path), nil
	default:
		return nil, errors.New("unknown credential store", errors.CategoryValidation).
			WithMetadata(map[string]any{"store": c.Credentials.Store})
	}
}
