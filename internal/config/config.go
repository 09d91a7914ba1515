// Package config assembles the central system configuration from defaults,
// an optional config file, CSMS_* environment variables and flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"csms/internal/log"
	"csms/internal/notifier"
)

const EnvPrefix = "CSMS"

type Config struct {
	HTTP  *HTTPOptions      `json:"http" mapstructure:"http"`
	OCPP  *OCPPOptions      `json:"ocpp" mapstructure:"ocpp"`
	Auth  *AuthOptions      `json:"auth" mapstructure:"auth"`
	API   *APIOptions       `json:"api" mapstructure:"api"`
	Store *StoreOptions     `json:"store" mapstructure:"store"`
	MQTT  *notifier.Options `json:"mqtt" mapstructure:"mqtt"`
	Audit *AuditOptions     `json:"audit" mapstructure:"audit"`
	Log   *log.Options      `json:"log" mapstructure:"log"`
}

func New() *Config {
	return &Config{
		HTTP:  NewHTTPOptions(),
		OCPP:  NewOCPPOptions(),
		Auth:  NewAuthOptions(),
		API:   NewAPIOptions(),
		Store: NewStoreOptions(),
		MQTT:  notifier.NewOptions(),
		Audit: NewAuditOptions(),
		Log:   log.NewOptions(),
	}
}

func (c *Config) AddFlags(fs *pflag.FlagSet) {
	c.HTTP.AddFlags(fs)
	c.OCPP.AddFlags(fs)
	c.Auth.AddFlags(fs)
	c.API.AddFlags(fs)
	c.Store.AddFlags(fs)
	c.MQTT.AddFlags(fs)
	c.Audit.AddFlags(fs)
	c.Log.AddFlags(fs)
}

func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.HTTP.Validate()...)
	errs = append(errs, c.OCPP.Validate()...)
	errs = append(errs, c.Auth.Validate()...)
	errs = append(errs, c.API.Validate()...)
	errs = append(errs, c.Store.Validate()...)
	errs = append(errs, c.MQTT.Validate()...)
	errs = append(errs, c.Audit.Validate()...)
	errs = append(errs, c.Log.Validate()...)
	return errors.Join(errs...)
}

// Load returns the configuration for fs, which must carry the flags
// registered by AddFlags. configFile may be empty.
func Load(fs *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	// the historical name of the charger secret
	if err := v.BindEnv("auth.secret", EnvPrefix+"_AUTH_SECRET", "CHARGER_SECRET"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := New()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
