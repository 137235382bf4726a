package runner

import "sort"

// Language describes how to run a solution written in one language.
// Script runs under sh with the source in $SOLUTION and stdin data in $SAMPLE_INPUT.
type Language struct {
	Name   string
	Image  string
	Script string
	Env    []string
}

// DefaultLanguages returns the supported runtimes keyed by name
func DefaultLanguages() map[string]Language {
	return map[string]Language{
		"python": {
			Name:   "python",
			Image:  "python:3.12-alpine",
			Script: `printf '%s' "$SAMPLE_INPUT" | python3 -c "$SOLUTION"`,
			Env:    []string{"PYTHONDONTWRITEBYTECODE=1"},
		},
		"javascript": {
			Name:   "javascript",
			Image:  "node:20-alpine",
			Script: `printf '%s' "$SAMPLE_INPUT" | node -e "$SOLUTION"`,
		},
		"go": {
			Name:  "go",
			Image: "golang:1.22-alpine",
			Script: `mkdir -p /tmp/prog && printf '%s' "$SOLUTION" > /tmp/prog/main.go && ` +
				`cd /tmp/prog && printf '%s' "$SAMPLE_INPUT" | go run main.go`,
			Env: []string{"HOME=/tmp", "GOCACHE=/tmp/gocache", "GOPATH=/tmp/gopath", "GO111MODULE=off"},
		},
	}
}

// SupportedLanguages lists language names in sorted order
func (r *DockerRunner) SupportedLanguages() []string {
	names := make([]string, 0, len(r.languages))
	for name := range r.languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
