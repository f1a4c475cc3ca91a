package extractor

import (
	"regexp"
	"strings"
)

var (
	// messageStart matches the first line of a VietinBank or Vietcombank SMS.
	messageStart = regexp.MustCompile(`^(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}\|TK:|SD TK\s)`)

	// pageFooter matches page numbers printed by SMS backup exporters.
	pageFooter = regexp.MustCompile(`(?i)^(page|trang)\s+\d+(\s*(/|of)\s*\d+)?$`)
)

// SplitMessages groups archive lines into individual SMS texts. A blank
// line or the opening of a new bank message ends the current one. Page
// numbers are dropped and other lines are wrapped continuations joined
// with a space.
func SplitMessages(lines []string) []string {
	var (
		out     []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = nil
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			flush()
			continue
		case pageFooter.MatchString(line):
			continue
		case messageStart.MatchString(line):
			flush()
		}
		current = append(current, line)
	}
	flush()
	return out
}

// ExtractMessages reads an archive and returns the SMS texts it contains.
func ExtractMessages(filePath string) ([]string, error) {
	lines, err := ExtractLines(filePath)
	if err != nil {
		return nil, err
	}
	return SplitMessages(lines), nil
}
