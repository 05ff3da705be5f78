package logger

import (
	"fmt"
	"slices"
	"strings"
)

var (
	levels  = []string{"trace", "debug", "info", "warn", "error", "fatal"}
	formats = []string{"json", "console", "text", FormatPretty}
)

// Config selects the level, encoding and destination of log lines.
type Config struct {
	Level     string `yaml:"level" mapstructure:"level"`
	Format    string `yaml:"format" mapstructure:"format"`
	Output    string `yaml:"output" mapstructure:"output"`
	NoColor   bool   `yaml:"no_color" mapstructure:"no_color"`
	Timestamp bool   `yaml:"timestamp" mapstructure:"timestamp"`
	Caller    bool   `yaml:"caller" mapstructure:"caller"`
}

// ApplyDefaults selects info-level console output on stdout for unset
// fields and always enables timestamps.
func (c *Config) ApplyDefaults() {
	c.Level = cmpOr(c.Level, "info")
	c.Format = cmpOr(c.Format, "console")
	c.Output = cmpOr(c.Output, "stdout")
	c.Timestamp = true
}

// Validate rejects unknown levels and formats.
func (c *Config) Validate() error {
	if !slices.Contains(levels, c.Level) {
		return fmt.Errorf("logging.level %q is not one of %s", c.Level, strings.Join(levels, ", "))
	}
	if !slices.Contains(formats, c.Format) {
		return fmt.Errorf("logging.format %q is not one of %s", c.Format, strings.Join(formats, ", "))
	}
	return nil
}

func cmpOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
