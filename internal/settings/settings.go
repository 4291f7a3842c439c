// Package settings loads and validates the process-wide Settings tree that
// configures every other component of the runtime.
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings is process-wide and immutable after construction, with the single
// exception of ConfigFile which the launcher may rebind via --config.
type Settings struct {
	ComponentName        string `mapstructure:"component_name"`
	ComponentID          string `mapstructure:"component_id"`
	ComponentType        string `mapstructure:"component_type" validate:"required"`
	ComponentConfigClass string `mapstructure:"component_config_class"`

	LogDir       string `mapstructure:"log_dir" validate:"required"`
	LogLevel     string `mapstructure:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	LogToConsole bool   `mapstructure:"log_to_console"`
	LogToFile    bool   `mapstructure:"log_to_file"`

	EngineAddr string   `mapstructure:"engine_addr" validate:"required,endpoint_uri"`
	OutAddr    []string `mapstructure:"out_addr" validate:"dive,endpoint_uri"`

	// Processor names the component to load: a short name resolved against
	// the static plugin registry, or a fully-qualified dotted path.
	Processor string `mapstructure:"processor" validate:"required"`

	HTTPHost string `mapstructure:"http_host" validate:"required"`
	HTTPPort int    `mapstructure:"http_port" validate:"required,min=1,max=65535"`

	EngineAutostart   bool          `mapstructure:"engine_autostart"`
	EngineRecvTimeout time.Duration `mapstructure:"engine_recv_timeout"`

	ConfigFile string `mapstructure:"config_file"`
}

// Default returns a Settings value matching the source implementation's
// defaults (ServiceSettings / BaseSettingsSchema).
func Default() Settings {
	return Settings{
		ComponentType:     "core",
		LogDir:            "./logs",
		LogLevel:          "INFO",
		LogToConsole:      true,
		LogToFile:         true,
		EngineAddr:        "ipc:///tmp/detectmate.engine.ipc",
		Processor:         "Uppercase",
		HTTPHost:          "127.0.0.1",
		HTTPPort:          8000,
		EngineAutostart:   true,
		EngineRecvTimeout: 100 * time.Millisecond,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("endpoint_uri", validateEndpointURI)
	return v
}

func validateEndpointURI(fl validator.FieldLevel) bool {
	uri := fl.Field().String()
	return strings.HasPrefix(uri, "ipc://") || strings.HasPrefix(uri, "tcp://")
}

// Load reads Settings from a YAML file (if path is non-empty and exists),
// then applies DETECTMATE_-prefixed environment overrides with "__" as the
// nested-key separator, matching the source's env_prefix/env_nested_delimiter
// convention. Environment overrides YAML.
func Load(path string) (Settings, error) {
	def := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DETECTMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	v.SetDefault("component_type", def.ComponentType)
	v.SetDefault("log_dir", def.LogDir)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_to_console", def.LogToConsole)
	v.SetDefault("log_to_file", def.LogToFile)
	v.SetDefault("engine_addr", def.EngineAddr)
	v.SetDefault("processor", def.Processor)
	v.SetDefault("http_host", def.HTTPHost)
	v.SetDefault("http_port", def.HTTPPort)
	v.SetDefault("engine_autostart", def.EngineAutostart)
	v.SetDefault("engine_recv_timeout", def.EngineRecvTimeout)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("settings: reading %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("settings: decoding: %w", err)
	}

	if err := validate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("settings: validation: %w", err)
	}

	return s, nil
}
