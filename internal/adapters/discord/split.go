package discord

import "strings"

// MessageLimit задаёт максимальную длину сообщения Discord в символах.
const MessageLimit = 2000

// SplitMessage режет текст на части не длиннее limit, по возможности по границам строк.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= limit {
			parts = appendChunk(parts, runes)
			break
		}
		cut := lastNewline(runes[:limit+1])
		if cut <= 0 {
			cut = limit
		}
		parts = appendChunk(parts, runes[:cut])
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == '\n' {
			runes = runes[1:]
		}
	}
	return parts
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i > 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}

func appendChunk(parts []string, runes []rune) []string {
	if chunk := strings.Trim(string(runes), "\n"); chunk != "" {
		parts = append(parts, chunk)
	}
	return parts
}
