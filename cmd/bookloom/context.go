package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"bookloom/internal/admin"
	"bookloom/internal/config"
	"bookloom/internal/daemonrun"
	"bookloom/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

// withStores opens the configured stores for the duration of fn.
func (c *commandContext) withStores(ctx context.Context, fn func(*daemonrun.Stores) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	stores, err := daemonrun.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()
	return fn(stores)
}

// withAdmin opens the stores and hands fn an admin service over them.
func (c *commandContext) withAdmin(ctx context.Context, fn func(*admin.Service) error) error {
	return c.withStores(ctx, func(stores *daemonrun.Stores) error {
		return fn(daemonrun.NewAdmin(c.config, stores, logging.NewNop()))
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// launchConfigPath is the config path a spawned worker should load, empty
// when defaults were used.
func (c *commandContext) launchConfigPath() string {
	if !c.configSeen {
		return ""
	}
	return c.configPath
}
