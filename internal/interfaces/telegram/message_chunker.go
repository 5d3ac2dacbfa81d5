package telegram

import (
	"strings"
	"unicode/utf8"
)

// MessageLimit Telegram 单条消息长度上限 (字符)
const MessageLimit = 4096

// chunkBudget 留出 HTML 转换后标签膨胀的余量
const chunkBudget = 3500

var sentenceEnds = []string{". ", "。", "！", "？", "! ", "? "}

// ChunkMessage splits a Markdown reply into pieces that fit in one Telegram
// message each. Splits prefer paragraph, then line, then sentence, then word
// boundaries. A code fence cut in half is closed and reopened.
func ChunkMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= chunkBudget {
		return []string{text}
	}

	var chunks []string
	remaining := text
	reopen := ""
	for remaining != "" {
		remaining = reopen + remaining
		reopen = ""
		if utf8.RuneCountInString(remaining) <= chunkBudget {
			chunks = append(chunks, remaining)
			break
		}

		cut := splitPoint(remaining, byteOffset(remaining, chunkBudget))
		chunk := strings.TrimRight(remaining[:cut], " \n")
		remaining = strings.TrimLeft(remaining[cut:], " \n")

		if fence, open := openFence(chunk); open {
			chunk += "\n```"
			reopen = fence + "\n"
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitPoint 在 limit 之前寻找最合适的分割位置
func splitPoint(s string, limit int) int {
	window := s[:limit]
	if i := strings.LastIndex(window, "\n\n"); i >= limit/2 {
		return i
	}
	if i := strings.LastIndex(window, "\n"); i >= limit/2 {
		return i
	}
	best := -1
	for _, end := range sentenceEnds {
		if i := strings.LastIndex(window, end); i >= 0 && i+len(end) > best {
			best = i + len(end)
		}
	}
	if best >= limit/2 {
		return best
	}
	if i := strings.LastIndex(window, " "); i >= limit/3 {
		return i
	}
	return limit
}

// byteOffset returns the byte index of the n-th rune.
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}

// openFence reports whether chunk ends inside a code fence, returning the
// fence line (with its language) to reopen it.
func openFence(chunk string) (string, bool) {
	fence := ""
	open := false
	for _, line := range strings.Split(chunk, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if open {
			open = false
			fence = ""
		} else {
			open = true
			fence = trimmed
		}
	}
	return fence, open
}
