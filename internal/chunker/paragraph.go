package chunker

import "strings"

// ByParagraph splits text into chunks no larger than maxSize, used by the
// Agent Runtime to stream an answer back to the client. Per spec §4.K:
// split on blank-line paragraph boundaries, greedily pack lines within a
// paragraph up to maxSize, then hard-split anything still oversized.
func ByParagraph(text string, maxSize int) []string {
	if text == "" {
		return nil
	}

	paragraphs := splitParagraphs(text)

	var chunks []string
	for _, p := range paragraphs {
		if len(p) <= maxSize {
			chunks = append(chunks, p)
			continue
		}
		chunks = append(chunks, packLines(p, maxSize)...)
	}

	var final []string
	for _, c := range chunks {
		if len(c) <= maxSize {
			final = append(final, c)
			continue
		}
		final = append(final, hardSplit(c, maxSize)...)
	}

	return final
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.Trim(p, "\n")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func packLines(paragraph string, maxSize int) []string {
	lines := strings.Split(paragraph, "\n")

	var chunks []string
	var current strings.Builder

	for _, line := range lines {
		candidateLen := current.Len() + len(line)
		if current.Len() > 0 {
			candidateLen++ // separating newline
		}
		if current.Len() > 0 && candidateLen > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func hardSplit(s string, maxSize int) []string {
	var out []string
	runes := []rune(s)
	for i := 0; i < len(runes); i += maxSize {
		end := i + maxSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
