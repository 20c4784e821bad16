// Package config builds component configurations from CLI flags and
// environment settings.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"tally-analytics-service/internal/parser"
	"tally-analytics-service/internal/reporter"
	"tally-analytics-service/internal/server"
)

// CreateParserConfig builds the parser configuration, letting environment
// overrides (TALLYD_TEMP_ROOT, TALLYD_STREAM_THRESHOLD, TALLYD_MAX_FILE_SIZE)
// adjust the defaults.
func CreateParserConfig() *parser.Config {
	config := parser.DefaultConfig()

	if root := viper.GetString("temp_root"); root != "" {
		config.TempRoot = root
	}
	if threshold := viper.GetInt64("stream_threshold"); threshold > 0 {
		config.StreamThreshold = threshold
	}
	if maxSize := viper.GetInt64("max_file_size"); maxSize > 0 {
		config.MaxFileSize = maxSize
	}
	return config
}

// CreateReportConfig builds a report configuration for the given format
func CreateReportConfig(format string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(format)

	if symbol := viper.GetString("currency_symbol"); symbol != "" {
		config.CurrencySymbol = symbol
	}
	return config
}

// CreateServerConfig builds the HTTP server configuration
func CreateServerConfig(host string, port int, uploadLimit int64, cacheTTL string) (*server.Config, error) {
	ttl, err := ParseTTL(cacheTTL)
	if err != nil {
		return nil, err
	}

	config := server.DefaultConfig()
	config.Host = host
	config.Port = port
	config.UploadLimit = uploadLimit
	config.AnalysisTTL = ttl
	return config, nil
}

// ParseTTL parses a duration string and rejects non-positive values
func ParseTTL(raw string) (time.Duration, error) {
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", raw)
	}
	return ttl, nil
}
