// Package config provides configuration for the chunkdata commands.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "CHUNKDATA_"

// DefaultAlias is the connection alias used when none is given.
const DefaultAlias = "default"

// Config holds the configuration shared by the export and import commands.
type Config struct {
	// DataDir is the base directory relative defaults resolve against
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// SchemaPath is the entity schema file
	SchemaPath string `json:"schema" yaml:"schema"`

	// Databases maps connection aliases to databases
	Databases map[string]DatabaseConfig `json:"databases" yaml:"databases"`

	// FixtureDirs are searched for fixtures in addition to namespace dirs
	FixtureDirs []string `json:"fixture_dirs" yaml:"fixture_dirs"`

	// Export command defaults
	Export ExportConfig `json:"export" yaml:"export"`

	// Storage configuration for written chunk files
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// DatabaseConfig holds one connection alias.
type DatabaseConfig struct {
	// Path is the SQLite database file
	Path string `json:"path" yaml:"path"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	// Format is the default serialization format
	Format string `json:"format" yaml:"format"`

	// Indent is the default indentation width; 0 means compact output
	Indent int `json:"indent" yaml:"indent"`

	// Chunk is the default records-per-file threshold; 0 disables chunking
	Chunk int `json:"chunk" yaml:"chunk"`

	// OutputDir is where chunk files go when no namespace dir applies
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// DefaultBaseName names chunk files when it cannot be inferred
	DefaultBaseName string `json:"default_base_name" yaml:"default_base_name"`

	// Prune removes stale numbered chunks left by an earlier export
	Prune bool `json:"prune" yaml:"prune"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the directory relative chunk paths resolve against (for
	// local type). Export dirs already carry DataDir, so it defaults to
	// the working directory.
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    ".",
		SchemaPath: "",
		Databases:  map[string]DatabaseConfig{},
		Export: ExportConfig{
			Format:          "json",
			Indent:          0,
			Chunk:           0,
			OutputDir:       "",
			DefaultBaseName: "dump",
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
	}
}

// Resolve fills path defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.SchemaPath == "" {
		c.SchemaPath = filepath.Join(c.DataDir, "schema.yaml")
	}
	if c.Databases == nil {
		c.Databases = map[string]DatabaseConfig{}
	}
	if _, ok := c.Databases[DefaultAlias]; !ok {
		c.Databases[DefaultAlias] = DatabaseConfig{Path: filepath.Join(c.DataDir, "chunkdata.sqlite3")}
	}
	if c.Export.OutputDir == "" {
		c.Export.OutputDir = filepath.Join(c.DataDir, "fixtures")
	}
	if c.Export.DefaultBaseName == "" {
		c.Export.DefaultBaseName = "dump"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "."
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SchemaPath == "" {
		return fmt.Errorf("schema is required")
	}

	if len(c.Databases) == 0 {
		return fmt.Errorf("at least one database is required")
	}
	for alias, db := range c.Databases {
		if db.Path == "" {
			return fmt.Errorf("databases.%s.path is required", alias)
		}
	}

	if c.Export.Format == "" {
		return fmt.Errorf("export.format is required")
	}
	if c.Export.Indent < 0 {
		return fmt.Errorf("export.indent must be >= 0, got %d", c.Export.Indent)
	}
	if c.Export.Chunk < 0 {
		return fmt.Errorf("export.chunk must be >= 0, got %d", c.Export.Chunk)
	}
	if strings.ContainsAny(c.Export.DefaultBaseName, `/\`) {
		return fmt.Errorf("export.default_base_name must not contain a path separator: %q", c.Export.DefaultBaseName)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	return nil
}

// DatabasePaths returns the alias to database file map.
func (c *Config) DatabasePaths() map[string]string {
	paths := make(map[string]string, len(c.Databases))
	for alias, db := range c.Databases {
		paths[alias] = db.Path
	}
	return paths
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CHUNKDATA_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := getenv("SCHEMA"); v != "" {
		cfg.SchemaPath = v
	}
	if v := getenv("DATABASE_PATH"); v != "" {
		if cfg.Databases == nil {
			cfg.Databases = map[string]DatabaseConfig{}
		}
		cfg.Databases[DefaultAlias] = DatabaseConfig{Path: v}
	}
	if v := getenv("FIXTURE_DIRS"); v != "" {
		cfg.FixtureDirs = filepath.SplitList(v)
	}

	// Export configuration
	if v := getenv("EXPORT_FORMAT"); v != "" {
		cfg.Export.Format = v
	}
	if v := getenv("EXPORT_INDENT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Export.Indent)
	}
	if v := getenv("EXPORT_CHUNK"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Export.Chunk)
	}
	if v := getenv("EXPORT_OUTPUT_DIR"); v != "" {
		cfg.Export.OutputDir = v
	}
	if v := getenv("EXPORT_BASE_NAME"); v != "" {
		cfg.Export.DefaultBaseName = v
	}
	if v := getenv("EXPORT_PRUNE"); v != "" {
		cfg.Export.Prune = parseBool(v)
	}

	// Storage configuration
	if v := getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := getenv("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := getenv("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := getenv("S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := getenv("S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}
	if v := getenv("S3_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = parseBool(v)
	}
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
