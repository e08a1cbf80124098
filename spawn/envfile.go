package spawn

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadEnvironmentFiles implements the EnvironmentFile= glob semantics: each
// pattern is glob-expanded, every matching file's KEY=VALUE lines are
// appended in order (later files/lines override earlier ones at exec time,
// since the pipeline simply appends onto the inherited environment). A
// pattern prefixed with "-" tolerates a missing match instead of failing.
func LoadEnvironmentFiles(patterns []string) ([]string, error) {
	var env []string
	for _, pattern := range patterns {
		optional := strings.HasPrefix(pattern, "-")
		glob := strings.TrimPrefix(pattern, "-")

		matches, err := filepath.Glob(glob)
		if err != nil {
			return nil, fmt.Errorf("glob environment file %q: %w", glob, err)
		}
		if len(matches) == 0 && !optional {
			return nil, fmt.Errorf("environment file %q: no matches", glob)
		}

		for _, path := range matches {
			lines, err := parseEnvironmentFile(path)
			if err != nil {
				if optional && os.IsNotExist(err) {
					continue
				}
				return nil, err
			}
			env = append(env, lines...)
		}
	}
	return env, nil
}

func parseEnvironmentFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open environment file %s: %w", path, err)
	}
	defer f.Close()

	var env []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "=") {
			continue
		}
		env = append(env, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read environment file %s: %w", path, err)
	}
	return env, nil
}
