package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"audiopipe/internal/config"
	"audiopipe/internal/journal"
	"audiopipe/internal/logging"
	"audiopipe/internal/metrics"
	"audiopipe/internal/stagerun"
)

type globalFlags struct {
	config      string
	logLevel    string
	logFormat   string
	metricsFile string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newCommandContext(flags *globalFlags) *commandContext {
	registry := prometheus.NewRegistry()
	return &commandContext{
		flags:    flags,
		registry: registry,
		metrics:  metrics.New(registry),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if level := strings.TrimSpace(c.flags.logLevel); level != "" {
			cfg.Logging.Level = strings.ToLower(level)
		}
		if format := strings.TrimSpace(c.flags.logFormat); format != "" {
			cfg.Logging.Format = strings.ToLower(format)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) runner() (*stagerun.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return stagerun.NewFromConfig(cfg, logger, c.metrics)
}

func (c *commandContext) openJournal() (*journal.Journal, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Journal.Enabled {
		return nil, errJournalDisabled
	}
	return journal.Open(cfg.Journal.Path)
}

func (c *commandContext) flushMetrics() error {
	path := strings.TrimSpace(c.flags.metricsFile)
	if path == "" {
		return nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("resolve metrics file: %w", err)
	}
	return metrics.WriteTextfile(expanded, c.registry)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
