// Package gitcfg writes git configuration through the git CLI.
package gitcfg

import (
	"context"
	"fmt"
	"strings"

	"github.com/RoM4iK/tinker-agent/internal/runner"
)

// Config edits one git configuration scope.
type Config struct {
	r     runner.Runner
	scope string
}

// Global returns a Config for the user's global git configuration.
func Global(r runner.Runner) *Config {
	return &Config{r: r, scope: "--global"}
}

// Set writes key = value, replacing any existing value.
func (c *Config) Set(ctx context.Context, key, value string) error {
	if _, err := c.run(ctx, "config", c.scope, key, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Get returns the value of key, or "" when it is unset.
func (c *Config) Get(ctx context.Context, key string) (string, error) {
	res, err := c.r.Output(ctx, "git", "config", c.scope, "--get", key)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	// Exit 1 means the key is not set.
	if res.Code == 1 {
		return "", nil
	}
	if res.Code != 0 {
		return "", fmt.Errorf("reading %s: exit %d: %s", key, res.Code, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// InsteadOf rewrites SSH remotes on host to HTTPS so token
// authentication applies to them.
func (c *Config) InsteadOf(ctx context.Context, host string) error {
	return c.Set(ctx, fmt.Sprintf("url.https://%s/.insteadOf", host), fmt.Sprintf("git@%s:", host))
}

// run executes a git command and returns its stdout.
func (c *Config) run(ctx context.Context, args ...string) (string, error) {
	res, err := c.r.Output(ctx, "git", args...)
	if err != nil {
		return "", err
	}
	if res.Code != 0 {
		return "", fmt.Errorf("git %s: %s: exit %d", strings.Join(args, " "), strings.TrimSpace(res.Stderr), res.Code)
	}
	return res.Stdout, nil
}
