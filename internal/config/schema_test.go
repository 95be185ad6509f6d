package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSchemaDescribesFile(t *testing.T) {
	data, err := json.Marshal(Schema())
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"project_id"`, `"rails_ws_url"`, `"app_private_key_path"`, `"mcp_api_key"`, `"Tinker Agent Configuration"`} {
		if !strings.Contains(s, want) {
			t.Errorf("schema missing %s", want)
		}
	}
	if !strings.Contains(s, `"enum":["token","app"]`) {
		t.Errorf("schema missing github.method enum: %s", s)
	}
}
