// Package config loads chart-scan settings from a YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/northcutted/chart-scan/pkg/types"
)

// DefaultFile is picked up from the working directory when no --config is
// given.
const DefaultFile = "chart-scan.yaml"

// Config holds every tunable of a run.
type Config struct {
	Threshold   types.Severity `yaml:"threshold"`
	FailOn      string         `yaml:"fail_on,omitempty"`
	Concurrency int            `yaml:"concurrency,omitempty"`
	Scanner     string         `yaml:"scanner,omitempty"`
	Format      string         `yaml:"format,omitempty"`
	OutputDir   string         `yaml:"output_dir,omitempty"`
	ScanTimeout time.Duration  `yaml:"scan_timeout,omitempty"`
	Helm        HelmConfig     `yaml:"helm,omitempty"`
	DatabaseURL string         `yaml:"database_url,omitempty"`
	Upload      UploadConfig   `yaml:"upload,omitempty"`
}

// HelmConfig holds extra arguments for 'helm template'.
type HelmConfig struct {
	Repo   string   `yaml:"repo,omitempty"`
	Values []string `yaml:"values,omitempty"`
	Args   []string `yaml:"args,omitempty"`
}

// TemplateArgs returns the flags passed to 'helm template' before the chart.
func (h HelmConfig) TemplateArgs() []string {
	var args []string
	if h.Repo != "" {
		args = append(args, "--repo", h.Repo)
	}
	for _, v := range h.Values {
		args = append(args, "--values", v)
	}
	return append(args, h.Args...)
}

// UploadConfig describes an optional S3-compatible destination for reports.
type UploadConfig struct {
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Bucket    string `yaml:"bucket,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// Enabled reports whether uploads are configured.
func (u UploadConfig) Enabled() bool {
	return u.Bucket != ""
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Threshold: types.Medium,
		Scanner:   "grype",
		Format:    "csv",
		OutputDir: ".",
	}
}

// LoadDotEnv loads .env files from the working directory if present.
// Variables already set in the environment win.
func LoadDotEnv() {
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}
}

// Load builds a Config from defaults, the YAML file at path (if non-empty)
// and the environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CHART_SCAN_THRESHOLD"); v != "" {
		s, err := types.ParseThreshold(v)
		if err != nil {
			return fmt.Errorf("CHART_SCAN_THRESHOLD: %w", err)
		}
		c.Threshold = s
	}
	if v := os.Getenv("CHART_SCAN_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHART_SCAN_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	setString(&c.Scanner, "CHART_SCAN_SCANNER")
	setString(&c.Format, "CHART_SCAN_FORMAT")
	setString(&c.OutputDir, "CHART_SCAN_OUTPUT_DIR")
	setString(&c.FailOn, "CHART_SCAN_FAIL_ON")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.Upload.Endpoint, "S3_ENDPOINT")
	setString(&c.Upload.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Upload.SecretKey, "S3_SECRET_KEY")
	setString(&c.Upload.Region, "S3_REGION")
	setString(&c.Upload.Bucket, "REPORTS_BUCKET")
	setString(&c.Upload.Prefix, "REPORTS_PREFIX")
	if v := os.Getenv("S3_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("S3_USE_SSL: %w", err)
		}
		c.Upload.UseSSL = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// FailOnLevel returns the configured gate severity, if any.
func (c *Config) FailOnLevel() (types.Severity, bool, error) {
	if c.FailOn == "" {
		return types.Negligible, false, nil
	}
	s, err := types.ParseThreshold(c.FailOn)
	if err != nil {
		return types.Negligible, false, fmt.Errorf("fail_on: %w", err)
	}
	return s, true, nil
}

// Validate checks the settings that cannot be checked while decoding.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("scan_timeout must not be negative, got %s", c.ScanTimeout)
	}
	if _, _, err := c.FailOnLevel(); err != nil {
		return err
	}
	if c.Upload.Enabled() && c.Upload.Endpoint == "" {
		return errors.New("upload.bucket is set but upload.endpoint is empty")
	}
	return nil
}
