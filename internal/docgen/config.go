package docgen

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// section is one table in the config reference: the fields of an
// object found at a dotted path in the file.
type section struct {
	path   string
	desc   string
	schema *jsonschema.Schema
}

// RenderConfigMarkdown writes one field table per object in s. Nested
// objects and map values with properties get their own section, named
// by their dotted path ("github", "agents.<role>").
func RenderConfigMarkdown(w io.Writer, s *jsonschema.Schema) error {
	title := s.Title
	if title == "" {
		title = "Configuration Reference"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if s.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", s.Description)
	}
	b.WriteString(Banner)

	for _, sec := range collectSections("", s) {
		heading := sec.path
		if heading == "" {
			heading = "Top level"
		}
		fmt.Fprintf(&b, "## %s\n\n", heading)
		if sec.desc != "" {
			fmt.Fprintf(&b, "%s\n\n", cell(sec.desc))
		}
		writeFieldTable(&b, sec.schema)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// collectSections walks s depth-first. The object itself comes first,
// then its nested sections in property order.
func collectSections(path string, s *jsonschema.Schema) []section {
	if s == nil || s.Properties == nil || s.Properties.Len() == 0 {
		return nil
	}
	out := []section{{path: path, desc: s.Description, schema: s}}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		child := join(path, pair.Key)
		prop := pair.Value
		switch {
		case prop.Properties != nil && prop.Properties.Len() > 0:
			out = append(out, collectSections(child, prop)...)
		case prop.AdditionalProperties != nil:
			nested := collectSections(child+".<name>", prop.AdditionalProperties)
			if len(nested) > 0 && nested[0].desc == "" {
				nested[0].desc = prop.Description
			}
			out = append(out, nested...)
		}
	}
	return out
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func writeFieldTable(b *strings.Builder, s *jsonschema.Schema) {
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}
	b.WriteString("| Field | Type | Required | Description |\n")
	b.WriteString("|-------|------|----------|-------------|\n")
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		req := ""
		if required[pair.Key] {
			req = "**yes**"
		}
		fmt.Fprintf(b, "| `%s` | %s | %s | %s |\n", pair.Key, typeName(pair.Value), req, describe(pair.Value))
	}
	b.WriteString("\n")
}

// typeName renders the property type the way a config author reads it.
func typeName(prop *jsonschema.Schema) string {
	switch {
	case prop.Properties != nil && prop.Properties.Len() > 0:
		return "object"
	case prop.Type == "object" && prop.AdditionalProperties != nil:
		if prop.AdditionalProperties.Properties != nil && prop.AdditionalProperties.Properties.Len() > 0 {
			return "table of objects"
		}
		return "table of " + orAny(prop.AdditionalProperties.Type)
	case prop.Type == "array" && prop.Items != nil:
		return "list of " + orAny(prop.Items.Type)
	case len(prop.OneOf) > 0:
		var types []string
		for _, alt := range prop.OneOf {
			types = append(types, orAny(alt.Type))
		}
		sort.Strings(types)
		return strings.Join(types, " or ")
	}
	return orAny(prop.Type)
}

func orAny(t string) string {
	if t == "" {
		return "any"
	}
	return t
}

// describe returns the description with enum values appended.
func describe(prop *jsonschema.Schema) string {
	desc := prop.Description
	if len(prop.Enum) > 0 {
		vals := make([]string, len(prop.Enum))
		for i, v := range prop.Enum {
			vals[i] = fmt.Sprintf("`%v`", v)
		}
		desc = strings.TrimSpace(desc + " One of " + strings.Join(vals, ", ") + ".")
	}
	return cell(desc)
}

// cell makes s safe inside a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
