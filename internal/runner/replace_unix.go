//go:build unix

package runner

import "golang.org/x/sys/unix"

func replaceProcess(path string, argv []string, env []string) error {
	return unix.Exec(path, argv, env)
}
