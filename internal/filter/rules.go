package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Rules is the parsed content of a filter rules file.
type Rules struct {
	Includes []string
	Excludes []string
}

// LoadRules reads a rules file. Format:
//
//	+ pattern   include
//	- pattern   exclude
//	pattern     exclude
//	# comment   ignored, as are blank lines
func LoadRules(path string) (Rules, error) {
	f, err := os.Open(path)
	if err != nil {
		return Rules{}, fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	var rules Rules
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		include := false
		pattern := line
		switch {
		case strings.HasPrefix(line, "+ "):
			include = true
			pattern = strings.TrimSpace(line[2:])
		case strings.HasPrefix(line, "- "):
			pattern = strings.TrimSpace(line[2:])
		}

		if _, err := Compile(pattern); err != nil {
			return Rules{}, fmt.Errorf("filter file %s line %d: %w", path, lineNum, err)
		}
		if include {
			rules.Includes = append(rules.Includes, pattern)
		} else {
			rules.Excludes = append(rules.Excludes, pattern)
		}
	}
	if err := sc.Err(); err != nil {
		return Rules{}, fmt.Errorf("read filter file %s: %w", path, err)
	}
	return rules, nil
}
