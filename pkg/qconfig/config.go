// Package qconfig loads the notebook processor definitions.
package qconfig

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvPrefix = "QPAPER"

	DefaultNodePurposeLabelKey = "hub.eox.at/node-purpose"
	DefaultJobTTL              = 100 * 24 * time.Hour

	// MaxJobTTL is the largest ttl the batch API can hold in int32 seconds.
	MaxJobTTL = math.MaxInt32 * time.Second
)

// Config is the processors file.
type Config struct {
	Processors []Processor `mapstructure:"processors"`

	v *viper.Viper
}

// LoadConfig reads the processors file. Without an explicit path it looks for
// processors.yaml in the working directory and /etc/qpaper.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		for _, name := range []string{"processors.yaml", "processors.yml", "/etc/qpaper/processors.yaml"} {
			if _, err := os.Stat(name); err == nil {
				cfgFile = name
				break
			}
		}
	}
	if cfgFile == "" {
		return nil, fmt.Errorf("no processors file found")
	}

	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	for i := range cfg.Processors {
		cfg.Processors[i].ApplyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.v = v
	return &cfg, nil
}

// ConfigFileUsed returns the config file that was used (if any)
func (c *Config) ConfigFileUsed() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Validate checks every processor and rejects duplicate ids.
func (c *Config) Validate() error {
	var errs []string
	seen := map[string]bool{}
	for i := range c.Processors {
		p := &c.Processors[i]
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("  ❌ processor %q is defined twice", p.ID))
		}
		seen[p.ID] = true
		for _, e := range p.Validate() {
			errs = append(errs, fmt.Sprintf("  ❌ processor %q: %s", p.ID, e))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("processor validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

// Lookup returns the processor with the given id.
func (c *Config) Lookup(id string) (*Processor, bool) {
	for i := range c.Processors {
		if c.Processors[i].ID == id {
			return &c.Processors[i], true
		}
	}
	return nil, false
}
