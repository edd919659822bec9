package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Placeholder is replaced by the load path in a command template.
const Placeholder = "{}"

// ErrEmptyCommand is returned when a command template has no words.
var ErrEmptyCommand = errors.New("empty command")

// Argv splits a command template into words and substitutes path for every
// Placeholder. When the template has no placeholder, path is appended as the
// last argument.
func Argv(template, path string) ([]string, error) {
	words, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", template, err)
	}

	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}

	substituted := false

	for i, w := range words {
		if strings.Contains(w, Placeholder) {
			words[i] = strings.ReplaceAll(w, Placeholder, path)
			substituted = true
		}
	}

	if !substituted {
		words = append(words, path)
	}

	return words, nil
}
