package export

import (
	"html"
	"strings"
)

// BodyToHTML converts plain-text module bodies to HTML. Blank lines split
// paragraphs, single newlines become <br>, and blocks where every line
// starts with "- " or "* " render as bullet lists. All text is escaped.
func BodyToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var b strings.Builder
	for _, block := range splitBlocks(text) {
		lines := strings.Split(block, "\n")
		if isBulletBlock(lines) {
			b.WriteString("<ul>\n")
			for _, line := range lines {
				item := strings.TrimSpace(trimBullet(line))
				b.WriteString("<li>" + html.EscapeString(item) + "</li>\n")
			}
			b.WriteString("</ul>\n")
			continue
		}

		escaped := make([]string, 0, len(lines))
		for _, line := range lines {
			escaped = append(escaped, html.EscapeString(line))
		}
		b.WriteString("<p>" + strings.Join(escaped, "<br>\n") + "</p>\n")
	}
	return b.String()
}

// splitBlocks splits on runs of blank lines, dropping empty blocks.
func splitBlocks(text string) []string {
	var blocks []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

func isBulletBlock(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- ") && !strings.HasPrefix(trimmed, "* ") {
			return false
		}
	}
	return len(lines) > 0
}

func trimBullet(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "- ") {
		return trimmed[2:]
	}
	if strings.HasPrefix(trimmed, "* ") {
		return trimmed[2:]
	}
	return trimmed
}
