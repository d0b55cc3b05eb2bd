package notify

import (
	"strings"
	"unicode/utf8"
)

// telegramTextLimit is the Bot API cap on one message, in characters.
const telegramTextLimit = 4096

// splitText cuts text into parts of at most limit runes, preferring line
// breaks. Lines longer than limit are cut hard.
func splitText(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(trimmed) <= limit {
		return []string{trimmed}
	}
	var (
		parts  []string
		buf    []string
		bufLen int
	)
	flush := func() {
		if len(buf) > 0 {
			parts = append(parts, strings.Join(buf, "\n"))
			buf = buf[:0]
			bufLen = 0
		}
	}
	for _, line := range strings.Split(trimmed, "\n") {
		lineLen := utf8.RuneCountInString(line)
		sep := 0
		if len(buf) > 0 {
			sep = 1
		}
		if bufLen+sep+lineLen <= limit {
			buf = append(buf, line)
			bufLen += sep + lineLen
			continue
		}
		flush()
		if lineLen <= limit {
			buf = append(buf, line)
			bufLen = lineLen
			continue
		}
		parts = append(parts, cutLine(line, limit)...)
	}
	flush()
	return parts
}

func cutLine(line string, limit int) []string {
	runes := []rune(line)
	parts := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		if segment := strings.TrimSpace(string(runes[start:end])); segment != "" {
			parts = append(parts, segment)
		}
	}
	return parts
}
