package helpers

import "strings"

// StripCodeFence returns the body of the first fenced code block in s.
// An optional language tag after the opening fence (e.g. ```json) is skipped.
// Both ``` and ~~~ fences are recognised.
func StripCodeFence(s string) (string, bool) {
	for _, fence := range []string{"```", "~~~"} {
		i := strings.Index(s, fence)
		if i == -1 {
			continue
		}
		rest := s[i+len(fence):]
		nl := strings.IndexByte(rest, '\n')
		if nl == -1 {
			continue
		}
		// Everything between the opening fence line and the closing fence.
		body := rest[nl+1:]
		end := strings.Index(body, fence)
		if end == -1 {
			continue
		}
		return strings.TrimSpace(body[:end]), true
	}
	return "", false
}

// ExtractBalancedJSON scans s for the first balanced JSON object or array,
// ignoring braces and brackets that appear inside string literals.
func ExtractBalancedJSON(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			if out, ok := balancedFrom(s, i); ok {
				return out, true
			}
		}
	}
	return "", false
}

func balancedFrom(s string, start int) (string, bool) {
	var (
		stack    []byte
		inString bool
		escape   bool
	)
	stack = append(stack, s[start])
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			top := stack[len(stack)-1]
			if (top == '{' && c != '}') || (top == '[' && c != ']') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
