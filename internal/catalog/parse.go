package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/daymake/pkg/model"
)

var knownFields = map[string]bool{
	"id":          true,
	"description": true,
	"command":     true,
	"start_after": true,
	"days":        true,
	"depends_on":  true,
}

// field is the raw text of one definition key. Scalars keep their source
// text verbatim; seq is set for YAML sequences.
type field struct {
	value string
	items []string
	seq   bool
}

// ParseDefinition builds a job from the contents of one definition file.
// The id always comes from the caller, never from the file. Missing or
// malformed fields are replaced with defaults; each substitution is reported
// in the returned diagnostics.
func ParseDefinition(id string, data []byte) (*model.Job, []string) {
	var diags []string
	fields, err := parseYAML(data)
	if err != nil {
		diags = append(diags, fmt.Sprintf("not a YAML mapping (%v), reading key: value lines", err))
		fields = parseLines(data)
	}

	job := &model.Job{ID: id}

	if _, ok := fields["id"]; ok {
		diags = append(diags, "extraneous id field ignored, id is derived from the file path")
	}

	if f, ok := fields["description"]; ok {
		job.Description = f.value
	} else {
		diags = append(diags, "missing description")
	}

	job.Command = strings.TrimSpace(fields["command"].value)
	if job.Command == "" {
		diags = append(diags, fmt.Sprintf("missing command, using %q", model.DefaultCommand))
		job.Command = model.DefaultCommand
	}

	job.StartAfter = model.DefaultStartAfter
	if f, ok := fields["start_after"]; ok {
		raw := strings.TrimSpace(f.value)
		t, err := time.Parse("15:04", raw)
		if err != nil {
			diags = append(diags, fmt.Sprintf("malformed start_after %q, assuming %s", raw, model.DefaultStartAfter))
		} else {
			job.StartAfter = t.Format("15:04")
		}
	} else {
		diags = append(diags, fmt.Sprintf("missing start_after, assuming %s", model.DefaultStartAfter))
	}

	if f, ok := fields["days"]; ok {
		job.Days = strings.TrimSpace(f.value)
	} else {
		job.Days = model.DefaultDays
	}

	switch f, ok := fields["depends_on"]; {
	case !ok:
		job.DependsOn = []string{}
	case f.seq:
		job.DependsOn = model.NormalizeDependsOn(f.items)
	default:
		job.DependsOn = model.ParseDependsOn(f.value)
	}

	var unknown []string
	for k := range fields {
		if !knownFields[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		diags = append(diags, "unknown fields: "+strings.Join(unknown, ", "))
	}

	return job, diags
}

// parseYAML reads a top-level mapping through yaml.Node so that scalar
// values are kept as written: "007" stays "007" and "yes" stays "yes".
func parseYAML(data []byte) (map[string]field, error) {
	fields := make(map[string]field)
	if len(bytes.TrimSpace(data)) == 0 {
		return fields, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return fields, nil
	}
	root := resolve(doc.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level is not a mapping", root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := resolve(root.Content[i+1])
		switch val.Kind {
		case yaml.ScalarNode:
			fields[key] = field{value: scalarText(val)}
		case yaml.SequenceNode:
			f := field{seq: true, items: make([]string, 0, len(val.Content))}
			for _, item := range val.Content {
				item = resolve(item)
				if item.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("line %d: %s items must be scalars", item.Line, key)
				}
				f.items = append(f.items, scalarText(item))
			}
			fields[key] = f
		default:
			return nil, fmt.Errorf("line %d: %s must be a scalar or a list", val.Line, key)
		}
	}
	return fields, nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// scalarText returns the value as written; an explicit null is empty.
func scalarText(n *yaml.Node) string {
	if n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

// parseLines reads the plain format: one "key: value" per line, lines
// starting with '#' and lines without ':' ignored, last occurrence wins.
func parseLines(data []byte) map[string]field {
	fields := make(map[string]field)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = field{value: strings.TrimSpace(value)}
	}
	return fields
}
