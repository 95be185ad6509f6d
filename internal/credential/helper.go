package credential

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// GitUsername is the user name paired with installation and static
// tokens for HTTPS git operations.
const GitUsername = "x-access-token"

// GitHelper speaks the git credential helper protocol. For "get" it
// reads the request attributes from in and answers with a token for
// host; requests for other hosts or protocols get an empty answer so
// git falls through to its next helper. "store" and "erase" are
// accepted and ignored.
func GitHelper(ctx context.Context, op string, in io.Reader, out io.Writer, src Source, host string) error {
	switch op {
	case "get":
	case "store", "erase":
		_, _ = io.Copy(io.Discard, in)
		return nil
	default:
		return fmt.Errorf("unknown credential operation %q", op)
	}

	req, err := readAttrs(in)
	if err != nil {
		return fmt.Errorf("reading credential request: %w", err)
	}
	if p := req["protocol"]; p != "" && p != "https" {
		return nil
	}
	if h := req["host"]; h != "" && h != host {
		return nil
	}

	tok, err := src.Token(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "protocol=https\nhost=%s\nusername=%s\npassword=%s\n", host, GitUsername, tok)
	return err
}

// readAttrs parses key=value lines up to a blank line or EOF.
func readAttrs(in io.Reader) (map[string]string, error) {
	attrs := make(map[string]string)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			attrs[k] = v
		}
	}
	return attrs, sc.Err()
}
