// Package util provides input helpers for the playground CLI.
package util

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/fluxbase-eu/playground/internal/session"
)

// StdinPath selects standard input as the source document
const StdinPath = "-"

// ReadSource reads the source document from path, or from stdin when path
// is "-".
func ReadSource(path string, stdin io.Reader) (string, error) {
	if path == StdinPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	return string(data), nil
}

// FragmentFromInput accepts a bare token, a "#token" fragment or a full link
// and returns the fragment including its prefix.
func FragmentFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty input", session.ErrInvalidToken)
	}

	if strings.Contains(input, "://") {
		u, err := url.Parse(input)
		if err != nil {
			return "", fmt.Errorf("invalid link: %w", err)
		}
		if u.Fragment == "" {
			return "", fmt.Errorf("%w: link has no fragment", session.ErrInvalidToken)
		}
		return session.FragmentPrefix + u.Fragment, nil
	}

	if strings.HasPrefix(input, session.FragmentPrefix) {
		return input, nil
	}
	return session.FragmentPrefix + input, nil
}

// DecodeInput decodes any form accepted by FragmentFromInput. Unlike
// session.FromFragment it reports malformed input instead of falling back to
// the default state.
func DecodeInput(input string) (session.State, error) {
	fragment, err := FragmentFromInput(input)
	if err != nil {
		return session.State{}, err
	}
	return session.Decode(strings.TrimPrefix(fragment, session.FragmentPrefix))
}
