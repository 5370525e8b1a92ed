// Package parser loads jobs documents: YAML decoding, settings
// validation and normalization of the document enumerations.
package parser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/jobtree/internal/template"
	"github.com/me/jobtree/pkg/jobfile"
	"github.com/me/jobtree/pkg/model"
)

// Parser converts raw jobs-document YAML into a jobfile.File.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser with the given logger.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "parser")}
}

// Load reads and parses the jobs document at path.
func (p *Parser) Load(path string) (*jobfile.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs document: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve jobs document path: %w", err)
	}
	return p.Parse(data, abs)
}

// Parse parses a jobs document. The document is a flat mapping of
// settings; the jobs entry maps job names to their descriptions.
// foreach values that are not sequences are evaluated as expressions,
// so axes can be written as ranges.
func (p *Parser) Parse(data []byte, path string) (*jobfile.File, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty jobs document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("jobs document must be a mapping, got %s", nodeKind(root))
	}

	f := &jobfile.File{Path: path}
	if err := p.applySettings(f, root); err != nil {
		return nil, err
	}
	if f.Jobs == nil {
		return nil, fmt.Errorf("jobs section is required")
	}
	if f.Settings.Constants == nil {
		f.Settings.Constants = make(map[string]string)
	}

	p.logger.Debug("parsed jobs document",
		"path", path,
		"jobs", len(f.Jobs),
		"axes", len(f.Settings.Enumerations),
	)
	return f, nil
}

// ApplyOverrides lays a YAML mapping of settings over an already
// parsed document, replacing each named setting wholesale. This backs
// the run command's --settings flag.
func (p *Parser) ApplyOverrides(f *jobfile.File, data []byte) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("settings overrides: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("settings overrides must be a mapping, got %s", nodeKind(root))
	}
	return p.applySettings(f, root)
}

// applySettings decodes the entries of a settings mapping node into f,
// rejecting unknown keys as a group.
func (p *Parser) applySettings(f *jobfile.File, root *yaml.Node) error {
	var unknown []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		value := root.Content[i+1]
		if !jobfile.IsValidSetting(key) {
			unknown = append(unknown, key)
			continue
		}

		var err error
		switch key {
		case "account":
			f.Settings.Account, err = decodeString(value, key)
		case "logdir":
			f.Settings.LogDir, err = decodeString(value, key)
		case "workdir":
			f.Settings.WorkDir, err = decodeString(value, key)
		case "const":
			f.Settings.Constants, err = decodeScalarMap(value, key)
		case "foreach":
			f.Settings.Enumerations, err = p.decodeEnumerations(value)
		case "provenance_variables":
			f.Settings.Provenance, err = decodeProvenance(value)
		case "scheduler":
			f.Settings.Scheduler = nil
			if err = value.Decode(&f.Settings.Scheduler); err != nil {
				err = fmt.Errorf("scheduler must be a mapping: %w", err)
			}
		case "skip_in_name":
			f.Settings.SkipInName = nil
			if err = value.Decode(&f.Settings.SkipInName); err != nil {
				err = fmt.Errorf("skip_in_name must be a list of names: %w", err)
			}
		case "jobs":
			f.Jobs = nil
			if err = value.Decode(&f.Jobs); err != nil {
				err = fmt.Errorf("jobs must map names to descriptions: %w", err)
			}
		}
		if err != nil {
			return err
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown settings: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// decodeEnumerations walks the foreach mapping in document order.
// Sequence values are taken as-is; scalar values are evaluated as
// expressions and their result becomes the axis.
func (p *Parser) decodeEnumerations(node *yaml.Node) ([]jobfile.Enumeration, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("foreach must be a mapping, got %s", nodeKind(node))
	}
	var enums []jobfile.Enumeration
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		value := node.Content[i+1]
		switch value.Kind {
		case yaml.SequenceNode:
			var values []any
			if err := value.Decode(&values); err != nil {
				return nil, fmt.Errorf("foreach %s: %w", name, err)
			}
			enums = append(enums, jobfile.Enumeration{Name: name, Values: values})
		case yaml.ScalarNode:
			var v any
			if err := value.Decode(&v); err != nil {
				return nil, fmt.Errorf("foreach %s: %w", name, err)
			}
			values, err := template.EvalList(model.FormatValue(v))
			if err != nil {
				return nil, fmt.Errorf("foreach %s: %w", name, err)
			}
			enums = append(enums, jobfile.Enumeration{Name: name, Values: values})
		default:
			return nil, fmt.Errorf("foreach %s must be a list or an expression", name)
		}
	}
	return enums, nil
}

// decodeProvenance walks provenance_variables in document order so
// the recorded attributes keep their position.
func decodeProvenance(node *yaml.Node) ([]jobfile.ProvenanceVariable, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("provenance_variables must be a mapping, got %s", nodeKind(node))
	}
	var out []jobfile.ProvenanceVariable
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		tmpl, err := decodeString(node.Content[i+1], "provenance_variables."+name)
		if err != nil {
			return nil, err
		}
		out = append(out, jobfile.ProvenanceVariable{Name: name, Template: tmpl})
	}
	return out, nil
}

func decodeString(node *yaml.Node, key string) (string, error) {
	var s string
	if err := node.Decode(&s); err != nil {
		return "", fmt.Errorf("%s must be a string: %w", key, err)
	}
	return s, nil
}

func decodeScalarMap(node *yaml.Node, key string) (map[string]string, error) {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%s must be a mapping: %w", key, err)
	}
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("%s.%s must be a scalar, got %T", key, name, v)
		}
		out[name] = model.FormatValue(v)
	}
	return out, nil
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return "unknown"
}
