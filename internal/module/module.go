// Package module discovers application modules and the tables they declare.
package module

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/koba/dbsync/internal/database"
	"github.com/koba/dbsync/internal/schema"
)

// Module is one application module: a database and the tables it owns
type Module struct {
	Name string
	// Database is the connection configuration read from the module file.
	// Environment variables override it when the module is migrated.
	Database database.Config
	// Extensions to install in the database. Nil means the default set.
	Extensions []string
	Tables     []*schema.Table
}

// Validate checks every table and rejects duplicate table names
func (m *Module) Validate() error {
	seen := make(map[string]bool, len(m.Tables))
	for _, t := range m.Tables {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("module %s: %w", m.Name, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("module %s: %w: duplicate table %s", m.Name, schema.ErrInvalidSchema, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// Table looks up a table by name
func (m *Module) Table(name string) (*schema.Table, bool) {
	for _, t := range m.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Source supplies the modules to migrate
type Source interface {
	Modules() ([]*Module, error)
}

// Registry is a Source for modules declared in Go code
type Registry struct {
	modules []*Module
}

// Register adds a module. Modules are migrated in registration order.
func (r *Registry) Register(m *Module) {
	r.modules = append(r.modules, m)
}

func (r *Registry) Modules() ([]*Module, error) {
	for _, m := range r.modules {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return r.modules, nil
}

// file is the on-disk layout of <apps>/<name>/<name>.yaml
type file struct {
	Name       string          `yaml:"name"`
	Database   database.Config `yaml:"database"`
	Extensions []string        `yaml:"extensions"`
	Tables     []tableFile     `yaml:"tables"`
}

type tableFile struct {
	Name    string       `yaml:"name"`
	Columns []columnFile `yaml:"columns"`
}

// columnFile accepts either an explicit type or a model kind such as str
type columnFile struct {
	schema.FieldSchema `yaml:",inline"`
	Kind               string `yaml:"kind"`
}

// LoadFile reads one module file. Tables without a primary key get the
// implicit auto-incrementing id column.
func LoadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse module file %s: %w", path, err)
	}

	m := &Module{
		Name:       f.Name,
		Database:   f.Database,
		Extensions: f.Extensions,
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	for _, tf := range f.Tables {
		fields := make([]schema.FieldSchema, 0, len(tf.Columns))
		for _, c := range tf.Columns {
			field := c.FieldSchema
			if field.SQLType == "" && c.Kind != "" {
				field.SQLType = schema.TypeForKind(c.Kind)
			}
			fields = append(fields, field)
		}

		table := schema.NewTable(tf.Name, fields...)
		if !table.HasPrimaryKey() && !table.HasField("id") {
			table = schema.NewModelTable(tf.Name, fields...)
		}
		m.Tables = append(m.Tables, table)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Dir is a Source reading <dir>/<name>/<name>.yaml for every subdirectory
type Dir struct {
	Path string
	// Only restricts discovery to the named module when set
	Only string
}

func (d Dir) Modules() ([]*Module, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read apps directory: %w", err)
	}

	var modules []*Module
	for _, entry := range entries {
		if !entry.IsDir() || (d.Only != "" && entry.Name() != d.Only) {
			continue
		}

		path, ok := moduleFile(filepath.Join(d.Path, entry.Name()), entry.Name())
		if !ok {
			continue
		}
		m, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}

	if d.Only != "" && len(modules) == 0 {
		return nil, fmt.Errorf("module %s not found in %s", d.Only, d.Path)
	}
	return modules, nil
}

func moduleFile(dir, name string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
