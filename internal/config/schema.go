package config

import "github.com/invopop/jsonschema"

// Schema returns the JSON Schema describing the config file. Field
// names are the same in every supported format.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "json",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := r.Reflect(&File{})
	s.Title = "Tinker Agent Configuration"
	s.Description = "Schema for tinker.toml (also tinker.yaml and tinker.json)."
	return s
}
