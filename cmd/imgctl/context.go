package main

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"image-worker-service/internal/config"
	"image-worker-service/internal/logging"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *zap.Logger
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{configFlag: configFlag, verbose: verbose}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		path := os.Getenv("CONFIG_FILE")
		if c.configFlag != nil && strings.TrimSpace(*c.configFlag) != "" {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// log is quiet unless --verbose; command output goes to stdout.
func (c *commandContext) log() *zap.Logger {
	c.loggerOnce.Do(func() {
		level := "warn"
		if c.verbose != nil && *c.verbose {
			level = "debug"
		}
		c.logger = logging.Must(level, "console")
	})
	return c.logger
}
