package decision

import "strings"

// extractJSON pulls the first JSON object out of model text. Models wrap
// their output in code fences, add prose around it, or leave comments and
// bare decimals such as .8 inside. Returns "" when no object is found.
func extractJSON(raw string) string {
	block := extractJSONBlock(stripCodeFences(raw))
	if block == "" {
		return ""
	}
	return normalizeLeadingDecimalNumbers(stripJSONComments(block))
}

func stripCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// extractJSONBlock finds the first balanced { ... } block in the text.
func extractJSONBlock(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// scanJSON walks s and calls emit for every byte outside string literals,
// letting it consume extra bytes by returning how many to skip. Bytes inside
// strings are copied verbatim.
func scanJSON(s string, emit func(b *strings.Builder, s string, i int) int) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		i += emit(&b, s, i)
	}
	return b.String()
}

// stripJSONComments removes // and /* */ comments outside string values.
func stripJSONComments(s string) string {
	return scanJSON(s, func(b *strings.Builder, s string, i int) int {
		if s[i] == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				j := i
				for j+1 < len(s) && s[j+1] != '\n' {
					j++
				}
				return j - i
			case '*':
				if end := strings.Index(s[i+2:], "*/"); end >= 0 {
					return end + 3
				}
				return len(s) - i - 1
			}
		}
		b.WriteByte(s[i])
		return 0
	})
}

// normalizeLeadingDecimalNumbers rewrites ".8" and "-.3" as "0.8" and "-0.3".
func normalizeLeadingDecimalNumbers(s string) string {
	return scanJSON(s, func(b *strings.Builder, s string, i int) int {
		c := s[i]
		if c == '.' && i+1 < len(s) && isDigit(s[i+1]) && !precededByDigit(s, i) {
			b.WriteString("0.")
			return 0
		}
		b.WriteByte(c)
		return 0
	})
}

func precededByDigit(s string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch c := s[j]; {
		case isDigit(c):
			return true
		case c == '-':
			continue
		default:
			return false
		}
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
