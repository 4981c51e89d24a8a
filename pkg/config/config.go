// Package config provides the configuration system for shopbulk.
// A single Config structure describes one extraction run: the store to
// connect to, the entities to extract, and the tunables for retry, polling
// and output handling.
package config

import (
	"strings"
	"time"

	"github.com/storekit-io/shopbulk/pkg/errors"
)

// Config is the top-level configuration for an extraction run
type Config struct {
	// StoreName is the shop subdomain, without ".myshopify.com"
	StoreName string `yaml:"store_name" json:"store_name"`
	// APIToken is the Admin API access token
	APIToken string `yaml:"api_token" json:"api_token"`
	// APIVersion selects the Admin API version
	APIVersion string `yaml:"api_version" json:"api_version"`

	// Endpoints lists the logical entities to extract, in order
	Endpoints []string `yaml:"endpoints" json:"endpoints"`

	// BatchSize is the page size for legacy cursor pagination (1..250)
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// LoadingOptions narrows the extraction window
	LoadingOptions LoadingOptions `yaml:"loading_options" json:"loading_options"`

	// Features toggles optional document fragments
	Features FeatureFlags `yaml:"features" json:"features"`

	// Retry configures throttling backoff
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Polling configures bulk job status polling
	Polling PollingConfig `yaml:"polling" json:"polling"`

	// Output configures the table sink
	Output OutputConfig `yaml:"output" json:"output"`

	// Debug retains downloaded artifacts and enables verbose logging
	Debug bool `yaml:"debug" json:"debug"`
}

// LoadingOptions bounds the extraction window for date-filterable entities
type LoadingOptions struct {
	DateSince string `yaml:"date_since" json:"date_since"` // YYYY-MM-DD
	DateTo    string `yaml:"date_to" json:"date_to"`       // YYYY-MM-DD
}

// FeatureFlags selects optional document fragments at composition time
type FeatureFlags struct {
	ProductMetafields bool `yaml:"product_metafields" json:"product_metafields"`
	VariantMetafields bool `yaml:"variant_metafields" json:"variant_metafields"`
	OrderTransactions bool `yaml:"order_transactions" json:"order_transactions"`
	ArchivedProducts  bool `yaml:"archived_products" json:"archived_products"`
}

// RetryConfig configures the throttling retry ceiling
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
}

// PollingConfig configures the tiered bulk job poll cadence.
// ShortInterval applies inside the initial window, LongInterval after it.
type PollingConfig struct {
	ShortInterval time.Duration `yaml:"short_interval" json:"short_interval"`
	LongInterval  time.Duration `yaml:"long_interval" json:"long_interval"`
	InitialWindow time.Duration `yaml:"initial_window" json:"initial_window"`
	// Timeout bounds total polling time; zero trusts the job to terminate
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// OutputConfig configures where tables and manifests land
type OutputConfig struct {
	// Directory receives one CSV + one manifest per table
	Directory string `yaml:"directory" json:"directory"`
	// WorkDir holds downloaded artifacts during processing
	WorkDir string `yaml:"work_dir" json:"work_dir"`
	// BucketPrefix prefixes table identifiers in manifests
	BucketPrefix string `yaml:"bucket_prefix" json:"bucket_prefix"`
}

// validEndpoints are the logical entities the extractor knows how to drive
var validEndpoints = map[string]bool{
	"orders":             true,
	"orders_legacy":      true,
	"products":           true,
	"products_legacy":    true,
	"customers":          true,
	"customers_legacy":   true,
	"inventory":          true,
	"inventory_items":    true,
	"locations":          true,
	"products_drafts":    true,
	"products_archived":  true,
	"product_metafields": true,
	"variant_metafields": true,
	"events":             true,
}

// Default returns a configuration with production defaults applied
func Default() *Config {
	return &Config{
		APIVersion: "2025-10",
		Endpoints:  []string{"orders", "products"},
		BatchSize:  50,
		Retry: RetryConfig{
			MaxAttempts:  6,
			InitialDelay: 1 * time.Second,
			MaxDelay:     60 * time.Second,
		},
		Polling: PollingConfig{
			ShortInterval: 5 * time.Second,
			LongInterval:  15 * time.Second,
			InitialWindow: 60 * time.Second,
		},
		Output: OutputConfig{
			Directory:    "out/tables",
			WorkDir:      "tmp",
			BucketPrefix: "in.c-shopify",
		},
	}
}

// Normalize cleans up user-supplied fields in place
func (c *Config) Normalize() {
	c.StoreName = strings.ToLower(strings.TrimSpace(c.StoreName))
	c.StoreName = strings.TrimSuffix(c.StoreName, ".myshopify.com")
	c.APIToken = strings.TrimSpace(c.APIToken)
}

// Validate checks the configuration, returning a config error on failure
func (c *Config) Validate() error {
	if c.StoreName == "" {
		return errors.New(errors.ErrorTypeConfig, "store name cannot be empty")
	}
	if c.APIToken == "" {
		return errors.New(errors.ErrorTypeConfig, "API token cannot be empty")
	}
	if c.BatchSize < 1 || c.BatchSize > 250 {
		return errors.Newf(errors.ErrorTypeConfig, "batch size must be between 1 and 250, got %d", c.BatchSize)
	}
	if len(c.Endpoints) == 0 {
		return errors.New(errors.ErrorTypeConfig, "at least one endpoint must be configured")
	}
	for _, endpoint := range c.Endpoints {
		if !validEndpoints[endpoint] {
			return errors.Newf(errors.ErrorTypeConfig, "invalid endpoint %q", endpoint)
		}
	}
	if c.Polling.ShortInterval <= 0 || c.Polling.LongInterval <= 0 {
		return errors.New(errors.ErrorTypeConfig, "poll intervals must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New(errors.ErrorTypeConfig, "retry max attempts must be at least 1")
	}
	return nil
}

// ShopURL returns the full shop URL
func (c *Config) ShopURL() string {
	return "https://" + c.StoreName + ".myshopify.com"
}

// GraphQLEndpoint returns the Admin GraphQL endpoint for the configured version
func (c *Config) GraphQLEndpoint() string {
	return c.ShopURL() + "/admin/api/" + c.APIVersion + "/graphql.json"
}
