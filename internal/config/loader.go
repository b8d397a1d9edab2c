package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from defaults, an optional config file and
// ONDE_* environment variables, in increasing priority.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("api.timeout", def.API.Timeout)
	v.SetDefault("hub.url", def.Hub.URL)
	v.SetDefault("socket.url", def.Socket.URL)
	v.SetDefault("state.dir", def.State.Dir)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("onde")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ONDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, err
		}
		// No config file is fine; defaults and env vars carry it.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
