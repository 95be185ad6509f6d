package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// normalize rewrites, in place, the scalar fields that users commonly
// write as numbers or booleans into strings, so that every format
// decodes into the same [File]. Role names under agents are lowercased
// to match how role arguments are read.
func normalize(raw map[string]any) error {
	if err := stringField(raw, "project_id"); err != nil {
		return err
	}
	if gh, ok := raw["github"]; ok && gh != nil {
		m, ok := gh.(map[string]any)
		if !ok {
			return fmt.Errorf("github: expected a table, got %T", gh)
		}
		for _, k := range []string{"token", "app_client_id", "app_installation_id"} {
			if err := stringField(m, k); err != nil {
				return fmt.Errorf("github: %w", err)
			}
		}
	}
	if err := stringMap(raw, "env"); err != nil {
		return err
	}
	agents, ok := raw["agents"]
	if !ok || agents == nil {
		return nil
	}
	am, ok := agents.(map[string]any)
	if !ok {
		return fmt.Errorf("agents: expected a table, got %T", agents)
	}
	roles := make(map[string]any, len(am))
	for name, a := range am {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := roles[key]; dup {
			return fmt.Errorf("agents: role %q is defined more than once", key)
		}
		roles[key] = a
		if a == nil {
			continue
		}
		m, ok := a.(map[string]any)
		if !ok {
			return fmt.Errorf("agents.%s: expected a table, got %T", name, a)
		}
		if err := stringField(m, "mcp_api_key"); err != nil {
			return fmt.Errorf("agents.%s: %w", name, err)
		}
		if err := stringMap(m, "env"); err != nil {
			return fmt.Errorf("agents.%s: %w", name, err)
		}
	}
	raw["agents"] = roles
	return nil
}

func stringField(m map[string]any, key string) error {
	v, ok := m[key]
	if !ok {
		return nil
	}
	s, err := stringify(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	m[key] = s
	return nil
}

func stringMap(m map[string]any, key string) error {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	env, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: expected a table of strings, got %T", key, v)
	}
	for k, ev := range env {
		s, err := stringify(ev)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", key, k, err)
		}
		env[k] = s
	}
	return nil
}

func stringify(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10), nil
		}
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case json.Number:
		return x.String(), nil
	default:
		return "", fmt.Errorf("expected a scalar, got %T", v)
	}
}
