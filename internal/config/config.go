// Package config loads server configuration from environment, an optional
// JSON file, and CLI flags, per spec.md §6's enumerated key set. Grounded
// on the teacher's flag+env Load() pattern, rebuilt on spf13/viper so a
// config file, env vars, and defaults layer the way the rest of the
// examples pack does configuration (see DESIGN.md).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the full set of server configuration keys.
type Config struct {
	WSPort           int
	ThreadPoolSize   int
	ListenerQueueCap int

	LogLevel  string
	LogFormat string
	LogFile   string

	MetricsEnabled     bool
	MetricsIntervalSec int

	TAHistoryMax int
	TASMA        []int
	TAEMA        []int
	TAVWAP       []int
	TAMED        []int
	TAMIN        []int
	TAMAX        []int
	TASTD        []int
	TARSI        int
}

func defaults() map[string]any {
	return map[string]any{
		"wsPort":             9002,
		"threadPoolSize":     8,
		"listenerQueueCap":   1024,
		"logLevel":           "info",
		"logFormat":          "text",
		"logFile":            "",
		"metricsEnabled":     true,
		"metricsIntervalSec": 10,
		"taHistoryMax":       512,
		"taSMA":              []int{5, 10, 20, 50},
		"taEMA":              []int{12, 26},
		"taVWAP":             []int{20},
		"taMED":              []int{20},
		"taMIN":              []int{20},
		"taMAX":              []int{20},
		"taSTD":              []int{20},
		"taRSI":              14,
	}
}

// Load builds a Config from (in ascending priority) built-in defaults, an
// optional JSON config file, environment variables (GMA_ prefixed), and
// CLI flags. args is normally os.Args[1:]; the first non-flag positional
// argument, if present, overrides wsPort (spec.md §6: "CLI: positional
// wsPort").
func Load(args []string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("GMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fs := pflag.NewFlagSet("gmaserver", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a JSON config file")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	positional := fs.Args()
	if *configFile == "" && len(positional) > 1 {
		*configFile = positional[1]
	}
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", *configFile, err)
		}
	}

	c := &Config{
		WSPort:             v.GetInt("wsPort"),
		ThreadPoolSize:     v.GetInt("threadPoolSize"),
		ListenerQueueCap:   v.GetInt("listenerQueueCap"),
		LogLevel:           v.GetString("logLevel"),
		LogFormat:          v.GetString("logFormat"),
		LogFile:            v.GetString("logFile"),
		MetricsEnabled:     v.GetBool("metricsEnabled"),
		MetricsIntervalSec: v.GetInt("metricsIntervalSec"),
		TAHistoryMax:       v.GetInt("taHistoryMax"),
		TASMA:              v.GetIntSlice("taSMA"),
		TAEMA:              v.GetIntSlice("taEMA"),
		TAVWAP:             v.GetIntSlice("taVWAP"),
		TAMED:              v.GetIntSlice("taMED"),
		TAMIN:              v.GetIntSlice("taMIN"),
		TAMAX:              v.GetIntSlice("taMAX"),
		TASTD:              v.GetIntSlice("taSTD"),
		TARSI:              v.GetInt("taRSI"),
	}

	if len(positional) > 0 {
		if n, err := parsePositionalPort(positional[0]); err == nil {
			c.WSPort = n
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parsePositionalPort(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid logLevel %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: invalid logFormat %q", c.LogFormat)
	}
	if c.WSPort <= 0 || c.WSPort > 65535 {
		return fmt.Errorf("config: invalid wsPort %d", c.WSPort)
	}
	if c.ThreadPoolSize <= 0 {
		return fmt.Errorf("config: threadPoolSize must be positive")
	}
	if c.ListenerQueueCap <= 0 {
		return fmt.Errorf("config: listenerQueueCap must be positive")
	}
	return nil
}
