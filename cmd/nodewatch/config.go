package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yacchi/nodemux"
	"github.com/yacchi/nodemux/source/fs"
)

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "NODEWATCH"

// Config holds the resolved nodewatch settings.
type Config struct {
	Subtree     bool
	Attributes  bool
	Content     bool
	NoChildList bool
	BatchSize   int
	LogLevel    string
	LogFormat   string
}

// Options converts the flags into observe options.
func (c Config) Options() nodemux.ObserveOptions {
	return nodemux.ObserveOptions{
		ChildList:     !c.NoChildList,
		Subtree:       c.Subtree,
		Attributes:    c.Attributes,
		CharacterData: c.Content,
	}
}

// Validate checks the combination of settings before anything is opened.
func (c Config) Validate() error {
	if err := c.Options().Validate(); err != nil {
		return fmt.Errorf("nothing to observe: %w", err)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be positive, got %d", c.BatchSize)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q (want console or json)", c.LogFormat)
	}
	return nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	f := cmd.Flags()
	f.Bool("subtree", false, "also observe everything below each path")
	f.Bool("attributes", false, "report attribute (mode) changes")
	f.Bool("content", false, "report content changes")
	f.Bool("no-child-list", false, "do not report entries being added, removed or renamed")
	f.Int("batch-size", fs.DefaultBatchSize, "maximum number of events per delivery")
	f.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	f.String("log-format", "console", "diagnostic log format (console or json)")
	f.String("config", "", "YAML config file")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(f)
}

// loadConfig resolves settings with the precedence flag > env > file > default.
func loadConfig(v *viper.Viper) (Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", file, err)
		}
	}

	cfg := Config{
		Subtree:     v.GetBool("subtree"),
		Attributes:  v.GetBool("attributes"),
		Content:     v.GetBool("content"),
		NoChildList: v.GetBool("no-child-list"),
		BatchSize:   v.GetInt("batch-size"),
		LogLevel:    v.GetString("log-level"),
		LogFormat:   v.GetString("log-format"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
