//go:build !unix

package runner

var replaceProcess func(path string, argv []string, env []string) error
