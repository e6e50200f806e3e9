// =============================================================================
// Claims Consolidator - Configuration Module
// =============================================================================
//
// This module loads the application configuration. Settings come from three
// layers, applied in order:
//
//   1. The YAML file given with --config (optional; a missing file means
//      "use defaults")
//   2. Environment variables prefixed with CONSOLIDATOR_ and named after the
//      section and field, e.g. CONSOLIDATOR_PATHS_OUTPUT_DIR or
//      CONSOLIDATOR_LOGGING_LEVEL
//   3. Defaults for anything still unset
//
// The result is validated with struct tags before it is returned.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONSOLIDATOR"

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the whole application configuration.
type Config struct {
	Paths          PathsConfig          `yaml:"paths" envconfig:"PATHS"`
	Source         SourceConfig         `yaml:"source" envconfig:"SOURCE"`
	Classification ClassificationConfig `yaml:"classification" envconfig:"CLASSIFICATION"`
	Processing     ProcessingConfig     `yaml:"processing" envconfig:"PROCESSING"`
	Registry       RegistryConfig       `yaml:"registry" envconfig:"REGISTRY"`
	Fetch          FetchConfig          `yaml:"fetch" envconfig:"FETCH"`
	Server         ServerConfig         `yaml:"server" envconfig:"SERVER"`
	Logging        LoggingConfig        `yaml:"logging" envconfig:"LOGGING"`
}

// PathsConfig locates the working directories.
type PathsConfig struct {
	// ArchivesDir receives downloaded filing archives.
	// Default: "./data/archives"
	ArchivesDir string `yaml:"archives_dir" split_words:"true" validate:"required"`

	// ExtractDir receives one subdirectory per extracted archive. It is the
	// source tree read by consolidation.
	// Default: "./data/extracted"
	ExtractDir string `yaml:"extract_dir" split_words:"true" validate:"required"`

	// OutputDir receives every generated file.
	// Default: "./output"
	OutputDir string `yaml:"output_dir" split_words:"true" validate:"required"`
}

// SourceConfig controls how source files are decoded.
type SourceConfig struct {
	// Encoding of delimited sources: "utf-8", "iso-8859-1", "windows-1252"...
	// Invalid byte sequences are always substituted, never fatal.
	// Default: "utf-8"
	Encoding string `yaml:"encoding" split_words:"true" validate:"required"`

	// Delimiters are tried in order on delimited sources; the first one that
	// splits the header into more than one column wins.
	// Default: [";", ",", "\t"]
	Delimiters []string `yaml:"delimiters" split_words:"true" validate:"min=1,dive,len=1"`
}

// ClassificationConfig drives the event classifier. Key lists hold slugified
// column labels and are searched in order; the first populated key wins.
type ClassificationConfig struct {
	// Keywords matched case-insensitively anywhere in the description.
	Keywords []string `yaml:"keywords" split_words:"true" validate:"min=1,dive,required"`

	DescriptionKeys []string `yaml:"description_keys" split_words:"true" validate:"min=1,dive,required"`
	AmountKeys      []string `yaml:"amount_keys" split_words:"true" validate:"min=1,dive,required"`
	FilerIDKeys     []string `yaml:"filer_id_keys" split_words:"true" validate:"min=1,dive,required"`
}

// ProcessingConfig tunes the pipeline run.
type ProcessingConfig struct {
	// MaxConcurrency is the number of source files read at once.
	// Set to 1 for sequential reading. Output does not depend on it.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency" split_words:"true" validate:"min=1,max=64"`

	// Package bundles the consolidated and aggregated outputs into zip files.
	// Default: true
	Package *bool `yaml:"package" split_words:"true"`
}

// RegistryConfig locates the filer registry used for enrichment.
type RegistryConfig struct {
	// Path of the registry report on disk.
	// Default: "./data/registry/Relatorio_cadop.csv"
	Path string `yaml:"path" split_words:"true" validate:"required"`

	// URL the registry is downloaded from when Path does not exist.
	URL string `yaml:"url" split_words:"true" validate:"omitempty,url"`

	// Delimiter of the registry report.
	// Default: ";"
	Delimiter string `yaml:"delimiter" split_words:"true" validate:"len=1"`

	// Encoding of the registry report.
	// Default: "utf-8"
	Encoding string `yaml:"encoding" split_words:"true"`
}

// FetchConfig controls archive retrieval.
type FetchConfig struct {
	// BaseURL is the index page listing one directory per year.
	BaseURL string `yaml:"base_url" split_words:"true" validate:"required,url"`

	// Latest is the number of most recent quarterly archives to fetch.
	// Default: 3
	Latest int `yaml:"latest" split_words:"true" validate:"min=1"`

	// Timeout bounds each HTTP request.
	// Default: 2m
	Timeout time.Duration `yaml:"timeout" split_words:"true" validate:"gt=0"`

	// RequestsPerSecond throttles requests to the source host.
	// Default: 2
	RequestsPerSecond float64 `yaml:"requests_per_second" split_words:"true" validate:"gt=0"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent" split_words:"true"`
}

// ServerConfig controls the read-only query service.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `yaml:"addr" split_words:"true" validate:"required"`

	// Dataset is the expenses file served; defaults to the enriched output.
	Dataset string `yaml:"dataset" split_words:"true"`

	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`

	// MaxPageSize caps the page size of list endpoints.
	// Default: 100
	MaxPageSize int `yaml:"max_page_size" split_words:"true" validate:"min=1"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level: "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level" split_words:"true" validate:"oneof=debug info warn error"`

	// Format: "text" or "json".
	// Default: "text"
	Format string `yaml:"format" split_words:"true" validate:"oneof=text json"`

	// File, when set, receives a copy of every log line.
	File string `yaml:"file" split_words:"true"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default classification vocabulary.
var (
	DefaultKeywords        = []string{"event", "sinistro", "claim"}
	DefaultDescriptionKeys = []string{"descricao", "description", "descricao-conta", "account-description", "conta", "account"}
	DefaultAmountKeys      = []string{"vl-saldo-final", "final-balance", "valor", "value", "valor-despesa", "expense-value"}
	DefaultFilerIDKeys     = []string{"reg-ans", "registro-ans", "registro-operadora", "filer-id", "cnpj"}
)

// Default remote locations.
const (
	DefaultRegistryURL = "https://dadosabertos.ans.gov.br/FTP/PDA/operadoras_de_plano_de_saude_ativas/Relatorio_cadop.csv"
	DefaultFetchURL    = "https://dadosabertos.ans.gov.br/FTP/PDA/demonstracoes_contabeis/"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.Paths.ArchivesDir == "" {
		cfg.Paths.ArchivesDir = "./data/archives"
	}
	if cfg.Paths.ExtractDir == "" {
		cfg.Paths.ExtractDir = "./data/extracted"
	}
	if cfg.Paths.OutputDir == "" {
		cfg.Paths.OutputDir = "./output"
	}

	if cfg.Source.Encoding == "" {
		cfg.Source.Encoding = "utf-8"
	}
	if len(cfg.Source.Delimiters) == 0 {
		cfg.Source.Delimiters = []string{";", ",", "\t"}
	}

	if len(cfg.Classification.Keywords) == 0 {
		cfg.Classification.Keywords = clone(DefaultKeywords)
	}
	if len(cfg.Classification.DescriptionKeys) == 0 {
		cfg.Classification.DescriptionKeys = clone(DefaultDescriptionKeys)
	}
	if len(cfg.Classification.AmountKeys) == 0 {
		cfg.Classification.AmountKeys = clone(DefaultAmountKeys)
	}
	if len(cfg.Classification.FilerIDKeys) == 0 {
		cfg.Classification.FilerIDKeys = clone(DefaultFilerIDKeys)
	}

	if cfg.Processing.MaxConcurrency == 0 {
		cfg.Processing.MaxConcurrency = 4
	}
	if cfg.Processing.Package == nil {
		enabled := true
		cfg.Processing.Package = &enabled
	}

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "./data/registry/Relatorio_cadop.csv"
	}
	if cfg.Registry.URL == "" {
		cfg.Registry.URL = DefaultRegistryURL
	}
	if cfg.Registry.Delimiter == "" {
		cfg.Registry.Delimiter = ";"
	}
	if cfg.Registry.Encoding == "" {
		cfg.Registry.Encoding = "utf-8"
	}

	if cfg.Fetch.BaseURL == "" {
		cfg.Fetch.BaseURL = DefaultFetchURL
	}
	if cfg.Fetch.Latest == 0 {
		cfg.Fetch.Latest = 3
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 2 * time.Minute
	}
	if cfg.Fetch.RequestsPerSecond == 0 {
		cfg.Fetch.RequestsPerSecond = 2
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "claims-consolidator"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxPageSize == 0 {
		cfg.Server.MaxPageSize = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration file, applies environment overrides and
// defaults, and validates the result.
//
// PARAMETERS:
//   - configPath: The YAML file. A missing file is not an error.
//
// RETURNS:
//   - The loaded configuration.
//   - An error if the file cannot be parsed, an override is malformed, or a
//     value fails validation.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Defaults and environment only.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks every field against its validation tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed '%s' check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}

// DelimiterRunes returns the configured delimiter candidates as runes.
func (s SourceConfig) DelimiterRunes() []rune {
	out := make([]rune, 0, len(s.Delimiters))
	for _, d := range s.Delimiters {
		r, _ := utf8.DecodeRuneInString(d)
		out = append(out, r)
	}
	return out
}

// RegistryDelimiter returns the registry delimiter as a rune.
func (r RegistryConfig) RegistryDelimiter() rune {
	d, _ := utf8.DecodeRuneInString(r.Delimiter)
	return d
}

// PackagingEnabled reports whether outputs are bundled into archives.
func (p ProcessingConfig) PackagingEnabled() bool {
	return p.Package == nil || *p.Package
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
