package service

import (
	"regexp"
	"strings"
)

// Local reasoning models (qwen3, deepseek-r1) emit their chain of thought
// inside <think> blocks. Users only see what follows.

var reasoningTagRe = regexp.MustCompile(`(?i)<\s*(/?)\s*(?:think|thinking|thought)\b[^<>]*>`)

// StripReasoning removes reasoning blocks from a model reply. Tags inside
// fenced or inline code are left alone. An unclosed opening tag hides the rest
// of the reply; a stray closing tag hides everything before it.
func StripReasoning(reply string) string {
	if !reasoningTagRe.MatchString(reply) {
		return reply
	}
	code := codeSpans(reply)

	var b strings.Builder
	last := 0
	depth := 0
	for _, m := range reasoningTagRe.FindAllStringSubmatchIndex(reply, -1) {
		if inSpans(m[0], code) {
			continue
		}
		closing := m[3] > m[2]
		switch {
		case !closing:
			if depth == 0 {
				b.WriteString(reply[last:m[0]])
			}
			depth++
		case depth > 0:
			depth--
		default:
			// </think> without an opening tag: the template put <think> in the prompt
			b.Reset()
		}
		last = m[1]
	}
	if depth == 0 {
		b.WriteString(reply[last:])
	}
	return strings.TrimSpace(b.String())
}

type span struct{ start, end int }

var inlineCodeRe = regexp.MustCompile("`[^`\n]+`")

// codeSpans returns the byte ranges of fenced blocks and inline code.
func codeSpans(s string) []span {
	var spans []span
	offset := 0
	open := -1
	for _, line := range strings.SplitAfter(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			if open < 0 {
				open = offset
			} else {
				spans = append(spans, span{open, offset + len(line)})
				open = -1
			}
		}
		offset += len(line)
	}
	if open >= 0 {
		spans = append(spans, span{open, len(s)})
	}
	for _, m := range inlineCodeRe.FindAllStringIndex(s, -1) {
		if !inSpans(m[0], spans) {
			spans = append(spans, span{m[0], m[1]})
		}
	}
	return spans
}

func inSpans(pos int, spans []span) bool {
	for _, sp := range spans {
		if pos >= sp.start && pos < sp.end {
			return true
		}
	}
	return false
}
