package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFeedList reads a newline-delimited list of feed URLs. Blank lines and
// lines starting with '#' are ignored.
func LoadFeedList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed list: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feed list: %w", err)
	}

	return urls, nil
}
