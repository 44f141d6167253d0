package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/script-runtime/engine"
	"github.com/wippyai/script-runtime/runtime"
)

// Config is the optional YAML configuration file.
type Config struct {
	SearchPaths    []string      `yaml:"search_paths"`
	Preload        []string      `yaml:"preload"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
	MaxCallStack   int           `yaml:"max_call_stack"`
}

func loadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// buildRuntime merges config file and flags into a running runtime and
// executes the configured preloads.
func buildRuntime(cmd *cobra.Command) (*runtime.Runtime, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	flagPaths, _ := cmd.Root().PersistentFlags().GetStringSlice("search-path")
	paths := append(cfg.SearchPaths, flagPaths...)
	if len(paths) == 0 {
		paths = []string{"."}
	}

	rt := runtime.New(runtime.Options{
		Engine:         engine.Config{MaxCallStackSize: cfg.MaxCallStack},
		SearchPaths:    paths,
		ReloadInterval: cfg.ReloadInterval,
	})

	for _, id := range cfg.Preload {
		if _, err := rt.Load(id); err != nil {
			rt.Dispose()
			return nil, fmt.Errorf("preload %s: %w", id, err)
		}
	}
	return rt, nil
}
