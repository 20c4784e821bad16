package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"

	"tally-analytics-service/internal/reporter"
)

func TestParseTTL(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"1h", time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"0s", 0, true},
		{"-5m", 0, true},
		{"forever", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTTL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTTL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseTTL(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCreateParserConfigOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	defaults := CreateParserConfig()
	if defaults.StreamThreshold != 100*1024*1024 {
		t.Errorf("default stream threshold = %d", defaults.StreamThreshold)
	}

	viper.Set("temp_root", "/var/tmp/tally")
	viper.Set("stream_threshold", int64(1024))
	viper.Set("max_file_size", int64(2048))

	overridden := CreateParserConfig()
	if overridden.TempRoot != "/var/tmp/tally" {
		t.Errorf("temp root = %q", overridden.TempRoot)
	}
	if overridden.StreamThreshold != 1024 || overridden.MaxFileSize != 2048 {
		t.Errorf("overrides not applied: %+v", overridden)
	}
}

func TestCreateReportConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	config := CreateReportConfig("json")
	if config.Format != reporter.FormatJSON {
		t.Errorf("format = %s", config.Format)
	}
	if config.CurrencySymbol != "₹" {
		t.Errorf("default currency = %q", config.CurrencySymbol)
	}

	viper.Set("currency_symbol", "$")
	if got := CreateReportConfig("console"); got.CurrencySymbol != "$" {
		t.Errorf("currency override not applied: %q", got.CurrencySymbol)
	}
}

func TestCreateServerConfig(t *testing.T) {
	config, err := CreateServerConfig("127.0.0.1", 9090, 1024, "30m")
	if err != nil {
		t.Fatalf("CreateServerConfig: %v", err)
	}
	if config.Host != "127.0.0.1" || config.Port != 9090 || config.UploadLimit != 1024 {
		t.Errorf("config = %+v", config)
	}
	if config.AnalysisTTL != 30*time.Minute {
		t.Errorf("TTL = %v", config.AnalysisTTL)
	}

	if _, err := CreateServerConfig("0.0.0.0", 8080, 1024, "junk"); err == nil {
		t.Error("invalid TTL should fail")
	}
}
