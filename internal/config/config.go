// =============================================================================
// ERP to CoreTax Converter - Configuration Module
// =============================================================================
//
// This module loads and validates the application configuration.
//
// CONFIGURATION SOURCES (later wins):
//   1. Built-in defaults (DefaultConfig)
//   2. The YAML file (config.yaml, or the path given with --config)
//   3. Environment: PORT overrides the port of server.addr
//
// Command-line flags are applied on top by the cmd package.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the config file looked up when --config is not given.
const DefaultConfigPath = "config.yaml"

var npwpPattern = regexp.MustCompile(`^[0-9]{15,16}$`)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for .xlsx and .csv exports when convert is run
	// without file arguments.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir receives the generated CoreTax workbooks.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir receives source files after a successful conversion.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// OutputArchiveDir receives a copy of every generated workbook.
	// Default: "./output_archive"
	OutputArchiveDir string `yaml:"output_archive_dir"`

	// ArchiveOnSuccess enables both archives.
	// Default: false
	ArchiveOnSuccess bool `yaml:"archive_on_success"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat selects the slog handler.
	// Valid values: "text", "json"
	// Default: "text"
	LogFormat string `yaml:"log_format"`

	// LogFile, when set, receives log output instead of stderr.
	LogFile string `yaml:"log_file"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputNameFormat defines the output file name.
	// Placeholders:
	//   {uuid}      - A random UUID
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
	//   {date}      - Current date (YYYYMMDD)
	//   {time}      - Current time (HHMMSS)
	//   {original}  - Input file name without extension
	//
	// Default: "CoreTax_Import_{timestamp}.xlsx"
	OutputNameFormat string `yaml:"output_name_format"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency is the maximum number of files converted at once.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// ContinueOnError keeps converting other files when one fails.
	// Default: true
	ContinueOnError bool `yaml:"continue_on_error"`

	// InputSheet is the worksheet read from .xlsx inputs.
	// Default: "" (first sheet)
	InputSheet string `yaml:"input_sheet"`

	Converter ConverterConfig `yaml:"converter"`
	Server    ServerConfig    `yaml:"server"`
}

// ConverterConfig holds the tax settings of the row transformer.
type ConverterConfig struct {
	// SellerNPWP is written to the Faktur sheet.
	// Default: "0012328415631000"
	SellerNPWP string `yaml:"seller_npwp"`

	// VATRate is the PPN rate as a fraction.
	// Default: 0.12
	VATRate float64 `yaml:"vat_rate"`
}

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8000"
	Addr string `yaml:"addr"`

	// MaxUploadMB caps the multipart upload size.
	// Default: 32
	MaxUploadMB int64 `yaml:"max_upload_mb"`

	// RequestTimeout bounds a single request.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	defaultInputDir         = "./input"
	defaultOutputDir        = "./output"
	defaultInputArchiveDir  = "./input_archive"
	defaultOutputArchiveDir = "./output_archive"
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	defaultOutputNameFormat = "CoreTax_Import_{timestamp}.xlsx"
	defaultMaxConcurrency   = 4
	defaultSellerNPWP       = "0012328415631000"
	defaultVATRate          = 0.12
	defaultServerAddr       = ":8000"
	defaultMaxUploadMB      = 32
	defaultRequestTimeout   = 60 * time.Second
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *MainConfig {
	return &MainConfig{
		InputDir:         defaultInputDir,
		OutputDir:        defaultOutputDir,
		InputArchiveDir:  defaultInputArchiveDir,
		OutputArchiveDir: defaultOutputArchiveDir,
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
		OutputNameFormat: defaultOutputNameFormat,
		MaxConcurrency:   defaultMaxConcurrency,
		ContinueOnError:  true,
		Converter: ConverterConfig{
			SellerNPWP: defaultSellerNPWP,
			VATRate:    defaultVATRate,
		},
		Server: ServerConfig{
			Addr:           defaultServerAddr,
			MaxUploadMB:    defaultMaxUploadMB,
			RequestTimeout: defaultRequestTimeout,
		},
	}
}

// WithDefaults fills blank fields with their defaults. Booleans and an
// explicit vat_rate of 0 are kept as given.
func (c *MainConfig) WithDefaults() *MainConfig {
	if c.InputDir == "" {
		c.InputDir = defaultInputDir
	}
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.InputArchiveDir == "" {
		c.InputArchiveDir = defaultInputArchiveDir
	}
	if c.OutputArchiveDir == "" {
		c.OutputArchiveDir = defaultOutputArchiveDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.OutputNameFormat == "" {
		c.OutputNameFormat = defaultOutputNameFormat
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Converter.SellerNPWP == "" {
		c.Converter.SellerNPWP = defaultSellerNPWP
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	return c
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The file to read. Empty means DefaultConfigPath.
//
// RETURNS:
//   - The validated configuration. A missing file at the default path
//     yields the defaults; a missing file at an explicit path is an error.
//   - An error if the file cannot be read, parsed or validated.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultConfigPath
	}

	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.WithDefaults()
	applyEnvOverrides(config, os.Getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variables through getenv.
func applyEnvOverrides(config *MainConfig, getenv func(string) string) {
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		host, _, err := net.SplitHostPort(config.Server.Addr)
		if err != nil {
			host = ""
		}
		config.Server.Addr = net.JoinHostPort(host, port)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for invalid values.
func (c *MainConfig) Validate() error {
	var problems []string

	if c.Converter.VATRate < 0 || c.Converter.VATRate >= 1 {
		problems = append(problems, fmt.Sprintf("converter.vat_rate must be in [0, 1), got %v", c.Converter.VATRate))
	}
	if !ValidNPWP(c.Converter.SellerNPWP) {
		problems = append(problems, fmt.Sprintf("converter.seller_npwp must be 15 or 16 digits, got %q", c.Converter.SellerNPWP))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}

	if c.MaxConcurrency < 1 {
		problems = append(problems, fmt.Sprintf("max_concurrency must be at least 1, got %d", c.MaxConcurrency))
	}
	if c.Server.MaxUploadMB < 1 {
		problems = append(problems, fmt.Sprintf("server.max_upload_mb must be at least 1, got %d", c.Server.MaxUploadMB))
	}
	if c.Server.RequestTimeout < 0 {
		problems = append(problems, "server.request_timeout must not be negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ValidNPWP reports whether s is a 15 or 16 digit tax id.
func ValidNPWP(s string) bool {
	return npwpPattern.MatchString(s)
}

// MaxUploadBytes returns the upload cap in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB << 20
}
