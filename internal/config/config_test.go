package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_ResolveValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/chunkdata"
	cfg.Resolve()

	if cfg.SchemaPath != "/srv/chunkdata/schema.yaml" {
		t.Errorf("SchemaPath = %q", cfg.SchemaPath)
	}
	if got := cfg.DatabasePaths()[DefaultAlias]; got != "/srv/chunkdata/chunkdata.sqlite3" {
		t.Errorf("default database = %q", got)
	}
	if cfg.Export.OutputDir != "/srv/chunkdata/fixtures" {
		t.Errorf("OutputDir = %q", cfg.Export.OutputDir)
	}
	if cfg.Storage.Path != "." {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]func(*Config){
		"negative chunk":    func(c *Config) { c.Export.Chunk = -1 },
		"negative indent":   func(c *Config) { c.Export.Indent = -2 },
		"empty format":      func(c *Config) { c.Export.Format = "" },
		"bad storage":       func(c *Config) { c.Storage.Type = "ftp" },
		"s3 without bucket": func(c *Config) { c.Storage.Type = "s3" },
		"empty db path":     func(c *Config) { c.Databases["archive"] = DatabaseConfig{} },
		"base name path":    func(c *Config) { c.Export.DefaultBaseName = "a/b" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "chunkdata.yaml")
	yamlData := `
schema: testapp.yaml
databases:
  default: {path: test.sqlite3}
  archive: {path: archive.sqlite3}
fixture_dirs: [fixtures, more]
export:
  chunk: 300
  indent: 2
storage:
  type: s3
  s3: {bucket: dumps, prefix: nightly}
`
	if err := os.WriteFile(yamlPath, []byte(yamlData), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Export.Chunk != 300 || cfg.Export.Indent != 2 {
		t.Errorf("export = %+v", cfg.Export)
	}
	if cfg.Export.Format != "json" || cfg.Export.DefaultBaseName != "dump" {
		t.Errorf("defaults lost: %+v", cfg.Export)
	}
	if len(cfg.Databases) != 2 || cfg.Databases["archive"].Path != "archive.sqlite3" {
		t.Errorf("databases = %+v", cfg.Databases)
	}
	if cfg.Storage.S3.Bucket != "dumps" || cfg.Storage.S3.Prefix != "nightly" {
		t.Errorf("s3 = %+v", cfg.Storage.S3)
	}

	jsonPath := filepath.Join(dir, "chunkdata.json")
	if err := os.WriteFile(jsonPath, []byte(`{"export": {"format": "yaml"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadFromFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFromFile json failed: %v", err)
	}
	if cfg.Export.Format != "yaml" {
		t.Errorf("format = %q", cfg.Export.Format)
	}

	if _, err := LoadFromFile(filepath.Join(dir, "chunkdata.toml")); err == nil {
		t.Error("expected error for missing file")
	}
	tomlPath := filepath.Join(dir, "other.toml")
	os.WriteFile(tomlPath, []byte("x = 1"), 0644)
	if _, err := LoadFromFile(tomlPath); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHUNKDATA_SCHEMA", "/etc/chunkdata/schema.yaml")
	t.Setenv("CHUNKDATA_DATABASE_PATH", "/var/lib/app.sqlite3")
	t.Setenv("CHUNKDATA_FIXTURE_DIRS", "a"+string(os.PathListSeparator)+"b")
	t.Setenv("CHUNKDATA_EXPORT_CHUNK", "500")
	t.Setenv("CHUNKDATA_EXPORT_PRUNE", "true")
	t.Setenv("CHUNKDATA_S3_PATH_STYLE", "1")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.SchemaPath != "/etc/chunkdata/schema.yaml" {
		t.Errorf("SchemaPath = %q", cfg.SchemaPath)
	}
	if cfg.Databases[DefaultAlias].Path != "/var/lib/app.sqlite3" {
		t.Errorf("default database = %+v", cfg.Databases)
	}
	if len(cfg.FixtureDirs) != 2 || cfg.FixtureDirs[1] != "b" {
		t.Errorf("FixtureDirs = %v", cfg.FixtureDirs)
	}
	if cfg.Export.Chunk != 500 || !cfg.Export.Prune {
		t.Errorf("export = %+v", cfg.Export)
	}
	if !cfg.Storage.S3.UsePathStyle {
		t.Error("expected path style")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("CHUNKDATA_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHUNKDATA_TEST_DOTENV", "")
	os.Unsetenv("CHUNKDATA_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("CHUNKDATA_TEST_DOTENV"); got != "loaded" {
		t.Errorf("CHUNKDATA_TEST_DOTENV = %q", got)
	}

	if err := LoadDotEnv(filepath.Join(dir, "nothing.env")); err != nil {
		t.Errorf("missing files should be ignored: %v", err)
	}
}
