package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the YAML database declaration file.
type File struct {
	Databases []Database `yaml:"databases"`
}

// Database declares one managed database.
type Database struct {
	Name       string `yaml:"name"`
	Location   string `yaml:"location"`
	Worker     bool   `yaml:"worker"`
	Persistent bool   `yaml:"persistent"`
	// Migrations is the path of a compiled migration log. Relative paths are
	// resolved against the config file's directory.
	Migrations         string `yaml:"migrations"`
	PreMigrationScript string `yaml:"pre_migration_script"`
	// AutoMigrate defaults to true.
	AutoMigrate *bool   `yaml:"auto_migrate"`
	Default     bool    `yaml:"default"`
	Expose      bool    `yaml:"expose"`
	StorageKey  string  `yaml:"storage_key"`
	PostgresDSN string  `yaml:"postgres_dsn"`
	Tables      []Table `yaml:"tables"`
}

// Table declares a table reachable through FindMany.
type Table struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// Migrates reports whether the database migrates on first use.
func (d Database) Migrates() bool {
	return d.Migrations != "" && (d.AutoMigrate == nil || *d.AutoMigrate)
}

// LoadFile reads and validates a YAML database declaration file.
func LoadFile(path string) (File, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return File{}, fmt.Errorf("read config file: %w", err)
	}

	file, err := Parse(raw)
	if err != nil {
		return File{}, fmt.Errorf("config file %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range file.Databases {
		if p := file.Databases[i].Migrations; p != "" && !filepath.IsAbs(p) {
			file.Databases[i].Migrations = filepath.Join(base, p)
		}
	}
	return file, nil
}

// Parse decodes and validates YAML. Unknown keys are rejected.
func Parse(raw []byte) (File, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := file.Validate(); err != nil {
		return File{}, err
	}
	return file, nil
}

// Validate reports every problem in the declarations.
func (f File) Validate() error {
	var problems []string
	seen := make(map[string]bool, len(f.Databases))
	defaults := 0

	for i, db := range f.Databases {
		name := strings.TrimSpace(db.Name)
		if name == "" {
			problems = append(problems, fmt.Sprintf("databases[%d]: name is required", i))
			continue
		}
		if seen[name] {
			problems = append(problems, fmt.Sprintf("databases[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if db.Default {
			defaults++
		}
		if db.PostgresDSN != "" && (db.Worker || db.Location != "" || db.Migrations != "") {
			problems = append(problems, fmt.Sprintf("%s: postgres_dsn cannot be combined with worker, location or migrations", name))
		}
		for j, table := range db.Tables {
			if strings.TrimSpace(table.Name) == "" {
				problems = append(problems, fmt.Sprintf("%s: tables[%d]: name is required", name, j))
			}
		}
	}
	if defaults > 1 {
		problems = append(problems, "at most one database may be the default")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid database declarations: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Default returns the name of the database marked default, if any.
func (f File) Default() (string, bool) {
	for _, db := range f.Databases {
		if db.Default {
			return db.Name, true
		}
	}
	return "", false
}
