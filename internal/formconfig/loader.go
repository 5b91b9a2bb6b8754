// Package formconfig loads intake form configurations, keeps the registry of
// programs the service offers, and lints configurations for defects the
// engine would otherwise only report at runtime.
package formconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/intake/internal/formflow"
)

// ErrInvalidForm is returned for configurations missing the fields every
// form needs (id, program, at least one screen).
var ErrInvalidForm = errors.New("invalid form configuration")

// Decode parses a YAML or JSON form configuration and indexes it. name is
// used in error messages only.
func Decode(data []byte, name string) (*formflow.Form, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var form formflow.Form
	if err := dec.Decode(&form); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w: empty document", name, ErrInvalidForm)
		}
		return nil, fmt.Errorf("%s: decode: %w", name, err)
	}

	switch {
	case strings.TrimSpace(form.ID) == "":
		return nil, fmt.Errorf("%s: %w: id is required", name, ErrInvalidForm)
	case strings.TrimSpace(form.Program) == "":
		return nil, fmt.Errorf("%s: %w: program is required", name, ErrInvalidForm)
	case len(form.Screens) == 0:
		return nil, fmt.Errorf("%s: %w: no screens", name, ErrInvalidForm)
	}

	form.Index()
	return &form, nil
}

// LoadFile reads and decodes a single configuration file.
func LoadFile(filename string) (*formflow.Form, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read form config: %w", err)
	}
	return Decode(data, filename)
}

// isConfigFile reports whether name has a supported configuration extension.
func isConfigFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadFS decodes every configuration file directly under dir in fsys, in
// lexical file order.
func LoadFS(fsys fs.FS, dir string) ([]*formflow.Form, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read form config dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var forms []*formflow.Form
	for _, entry := range entries {
		if entry.IsDir() || !isConfigFile(entry.Name()) {
			continue
		}
		p := path.Join(dir, entry.Name())
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read form config %s: %w", p, err)
		}
		form, err := Decode(data, p)
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	return forms, nil
}
