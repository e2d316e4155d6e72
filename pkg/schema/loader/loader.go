// Package loader reads schema documents from disk. Documents are YAML or
// JSON files with a modules list at the top; a directory of documents is
// merged into a single root in file-name order.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"itemcore/pkg/schema"
)

var documentExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// Load reads a schema root from path. A directory is merged; a file is
// parsed on its own. The result is structurally validated.
func Load(path string) (*schema.Root, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	var root *schema.Root
	if info.IsDir() {
		root, err = loadDir(path)
	} else {
		root, err = loadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if problems := root.Validate(); len(problems) > 0 {
		return nil, &InvalidDocumentError{Path: path, Problems: problems}
	}
	return root, nil
}

// Parse decodes a single document from raw bytes. The format is chosen by
// extension; anything not named .json is treated as YAML.
func Parse(name string, data []byte) (*schema.Root, error) {
	var root schema.Root
	if strings.EqualFold(filepath.Ext(name), ".json") {
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return &root, nil
	}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &root, nil
}

func loadFile(path string) (*schema.Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(path, data)
}

func loadDir(dir string) (*schema.Root, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !documentExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no schema documents in %s", dir)
	}
	sort.Strings(names)
	merged := &schema.Root{}
	for _, name := range names {
		part, err := loadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if err := merge(merged, part); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return merged, nil
}

// merge appends part's modules into root, rejecting duplicate module names
// so two documents cannot silently shadow each other.
func merge(root, part *schema.Root) error {
	for _, mod := range part.Modules {
		if _, exists := root.FindModule(mod.Name); exists {
			return fmt.Errorf("duplicate module %q", mod.Name)
		}
		root.Modules = append(root.Modules, mod)
	}
	return nil
}

// InvalidDocumentError reports structural problems found after parsing.
type InvalidDocumentError struct {
	Path     string
	Problems []schema.Problem
}

func (e *InvalidDocumentError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Path+": "+p.Message)
	}
	return fmt.Sprintf("invalid schema %s: %s", e.Path, strings.Join(msgs, "; "))
}
