package textutil

import (
	"strings"
	"unicode"
)

// SplitChunks breaks text into pieces of at most limit runes. It prefers
// sentence boundaries, then word boundaries, and hard-splits words longer
// than limit. Whitespace between pieces is dropped; no piece is empty.
func SplitChunks(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if piece := strings.TrimSpace(current.String()); piece != "" {
			chunks = append(chunks, piece)
		}
		current.Reset()
		size = 0
	}
	add := func(piece string) {
		n := runeLen(piece)
		sep := 0
		if size > 0 {
			sep = 1
		}
		if size+sep+n > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			current.WriteByte(' ')
		}
		current.WriteString(piece)
		size += sep + n
	}

	for _, sentence := range splitSentences(text) {
		if runeLen(sentence) <= limit {
			add(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			for _, part := range hardSplit(word, limit) {
				add(part)
			}
		}
	}
	flush()
	return chunks
}

// splitSentences cuts after '.', '!' or '?' (and any closing quotes or
// brackets) when followed by whitespace. Paragraph breaks also end a sentence.
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	rs := []rune(text)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		end := -1
		switch {
		case r == '.' || r == '!' || r == '?':
			j := i + 1
			for j < len(rs) && strings.ContainsRune(`"')]”’`, rs[j]) {
				j++
			}
			if j == len(rs) || unicode.IsSpace(rs[j]) {
				end = j
			}
		case r == '\n' && i+1 < len(rs) && rs[i+1] == '\n':
			end = i
		}
		if end < 0 {
			continue
		}
		if s := strings.Join(strings.Fields(string(rs[start:end])), " "); s != "" {
			out = append(out, s)
		}
		start = end
		i = end
	}
	if start < len(rs) {
		if s := strings.Join(strings.Fields(string(rs[start:])), " "); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hardSplit(word string, limit int) []string {
	rs := []rune(word)
	if len(rs) <= limit {
		return []string{word}
	}
	var out []string
	for len(rs) > limit {
		out = append(out, string(rs[:limit]))
		rs = rs[limit:]
	}
	if len(rs) > 0 {
		out = append(out, string(rs))
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
