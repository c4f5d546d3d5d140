//-------------------------------------------------------------------------
//
// pgEdge Retail ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for pgedge-retail-etl.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Key resolution strategies for the fact load.
const (
	KeyResolutionPreload = "preload"
	KeyResolutionLookup  = "lookup"
)

// Policies for fact rows whose dimension keys cannot be resolved.
const (
	LookupMissSkip = "skip"
	LookupMissFail = "fail"
)

// MaxBatchSize bounds load.batch_size so a fact batch stays well under the
// PostgreSQL bind parameter limit (six parameters per row).
const MaxBatchSize = 5000

// DateLayout is the layout used for date options such as report.from.
const DateLayout = "2006-01-02"

// Config holds all configuration for pgedge-retail-etl.
type Config struct {
	// Connection is the PostgreSQL connection string.
	Connection string `mapstructure:"connection"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is "console" or "json".
	LogFormat string `mapstructure:"log_format"`

	// Init holds configuration for the init subcommand.
	Init InitConfig `mapstructure:"init"`

	// Load holds configuration for the load subcommand.
	Load LoadConfig `mapstructure:"load"`

	// Generate holds configuration for the generate subcommand.
	Generate GenerateConfig `mapstructure:"generate"`

	// Report holds configuration for the report subcommand.
	Report ReportConfig `mapstructure:"report"`
}

// InitConfig holds configuration for warehouse initialization.
type InitConfig struct {
	// DropExisting migrates the warehouse down before migrating up.
	DropExisting bool `mapstructure:"drop_existing"`
}

// LoadConfig holds configuration for an ETL run.
type LoadConfig struct {
	// Input is the path of the export to load (.csv or .xlsx).
	Input string `mapstructure:"input"`

	// Format overrides detection by file extension ("csv" or "xlsx").
	Format string `mapstructure:"format"`

	// Sheet is the worksheet to read from an .xlsx export (default: first sheet).
	Sheet string `mapstructure:"sheet"`

	// Delimiter is the CSV field separator.
	Delimiter string `mapstructure:"delimiter"`

	// BatchSize is the number of fact rows per multi-row insert, and the
	// number of keys per dimension upsert statement.
	BatchSize int `mapstructure:"batch_size"`

	// KeyResolution is "preload" or "lookup".
	KeyResolution string `mapstructure:"key_resolution"`

	// OnLookupMiss is "skip" or "fail".
	OnLookupMiss string `mapstructure:"on_lookup_miss"`

	// RecordRun writes a row to etl_runs for every run.
	RecordRun bool `mapstructure:"record_run"`

	// ProgressInterval is how often to log fact load progress (in rows).
	ProgressInterval int `mapstructure:"progress_interval"`
}

// GenerateConfig holds configuration for synthetic export generation.
type GenerateConfig struct {
	// Output is the path to write (.csv or .xlsx).
	Output string `mapstructure:"output"`

	// Rows is the number of order lines to write.
	Rows int `mapstructure:"rows"`

	// Seed makes the output reproducible; 0 picks a random seed.
	Seed uint64 `mapstructure:"seed"`

	// InvalidRatio is the share of rows that cleaning should reject.
	InvalidRatio float64 `mapstructure:"invalid_ratio"`

	// StartDate is the first invoice date (YYYY-MM-DD).
	StartDate string `mapstructure:"start_date"`

	// Days is the number of days the invoices span.
	Days int `mapstructure:"days"`
}

// ReportConfig holds configuration for warehouse reports.
type ReportConfig struct {
	// Name selects the report.
	Name string `mapstructure:"name"`

	// From and To bound the invoice date range (YYYY-MM-DD, inclusive).
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`

	// Optional filters.
	Country    string `mapstructure:"country"`
	CustomerID int64  `mapstructure:"customer_id"`
	ProductID  string `mapstructure:"product_id"`

	// Limit caps ranked reports.
	Limit int `mapstructure:"limit"`

	// Horizon is the number of months to forecast (monthly_sales only).
	Horizon int `mapstructure:"horizon"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Load: LoadConfig{
			Delimiter:        ",",
			BatchSize:        100,
			KeyResolution:    KeyResolutionPreload,
			OnLookupMiss:     LookupMissSkip,
			RecordRun:        true,
			ProgressInterval: 10000,
		},
		Generate: GenerateConfig{
			Output:       "online_retail.csv",
			Rows:         10000,
			InvalidRatio: 0.05,
			StartDate:    "2010-12-01",
			Days:         365,
		},
		Report: ReportConfig{
			Name:    "total_sales",
			Limit:   10,
			Horizon: 3,
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./pgedge-retail-etl.yaml
// 3. ~/.config/pgedge-retail-etl/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("pgedge-retail-etl")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pgedge-retail-etl"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Connection == "" {
		return fmt.Errorf("connection string is required")
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'console' or 'json'")
	}
	return nil
}

// ValidateLoad checks configuration required for the load command.
func (c *Config) ValidateLoad() error {
	if err := c.Validate(); err != nil {
		return err
	}
	l := c.Load
	if l.Input == "" {
		return fmt.Errorf("input file is required for load")
	}
	if l.Format != "" && l.Format != "csv" && l.Format != "xlsx" {
		return fmt.Errorf("format must be 'csv' or 'xlsx'")
	}
	if len([]rune(l.Delimiter)) != 1 {
		return fmt.Errorf("delimiter must be a single character")
	}
	if l.BatchSize < 1 || l.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch_size must be between 1 and %d", MaxBatchSize)
	}
	if l.KeyResolution != KeyResolutionPreload && l.KeyResolution != KeyResolutionLookup {
		return fmt.Errorf("key_resolution must be '%s' or '%s'",
			KeyResolutionPreload, KeyResolutionLookup)
	}
	if l.OnLookupMiss != LookupMissSkip && l.OnLookupMiss != LookupMissFail {
		return fmt.Errorf("on_lookup_miss must be '%s' or '%s'",
			LookupMissSkip, LookupMissFail)
	}
	if l.ProgressInterval < 1 {
		return fmt.Errorf("progress_interval must be at least 1")
	}
	return nil
}

// ValidateGenerate checks configuration required for the generate command.
// It does not need a connection.
func (c *Config) ValidateGenerate() error {
	g := c.Generate
	if g.Output == "" {
		return fmt.Errorf("output file is required for generate")
	}
	if g.Rows < 1 {
		return fmt.Errorf("rows must be at least 1")
	}
	if g.InvalidRatio < 0 || g.InvalidRatio >= 1 {
		return fmt.Errorf("invalid_ratio must be in [0, 1)")
	}
	if _, err := time.Parse(DateLayout, g.StartDate); err != nil {
		return fmt.Errorf("start_date must be YYYY-MM-DD: %w", err)
	}
	if g.Days < 1 {
		return fmt.Errorf("days must be at least 1")
	}
	return nil
}

// ValidateReport checks configuration required for the report command.
func (c *Config) ValidateReport() error {
	if err := c.Validate(); err != nil {
		return err
	}
	r := c.Report
	if r.Name == "" {
		return fmt.Errorf("report name is required")
	}
	from, err := time.Parse(DateLayout, r.From)
	if err != nil {
		return fmt.Errorf("from must be YYYY-MM-DD: %w", err)
	}
	to, err := time.Parse(DateLayout, r.To)
	if err != nil {
		return fmt.Errorf("to must be YYYY-MM-DD: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("to must not be before from")
	}
	if r.Limit < 1 {
		return fmt.Errorf("limit must be at least 1")
	}
	if r.Horizon < 0 {
		return fmt.Errorf("horizon must be non-negative")
	}
	return nil
}
