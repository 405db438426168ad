package text

import (
	"strings"
	"unicode/utf8"
)

// separators in preference order: paragraph breaks, line breaks, spaces,
// then raw runes as a last resort.
var separators = []string{"\n\n", "\n", " "}

// Splitter cuts a block of text into overlapping windows of at most Size
// runes. It prefers splitting on the coarsest separator that appears within
// the budget, so words are only broken when a single word exceeds the window.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) *Splitter {
	return &Splitter{Size: size, Overlap: overlap}
}

// Split returns the trimmed, non-empty windows of text. Boundaries never
// cross the given block; callers split page by page.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.split(text, separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	if utf8.RuneCountInString(text) <= s.Size {
		return []string{text}
	}

	sep := ""
	var rest []string
	for i, c := range seps {
		if strings.Contains(text, c) {
			sep = c
			rest = seps[i+1:]
			break
		}
	}
	if sep == "" {
		return s.splitRunes(text)
	}

	var chunks []string
	var fitting []string
	flush := func() {
		if len(fitting) > 0 {
			chunks = append(chunks, s.merge(fitting, sep)...)
			fitting = nil
		}
	}

	for _, part := range strings.Split(text, sep) {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) > s.Size {
			// An oversized part is split at the next finer separator and its
			// windows are emitted as-is, never joined with neighbours.
			flush()
			chunks = append(chunks, s.split(part, rest)...)
		} else {
			fitting = append(fitting, part)
		}
	}
	flush()
	return chunks
}

// merge packs units into windows of at most Size, carrying a tail of at most
// Overlap runes of previous units into the next window.
func (s *Splitter) merge(units []string, sep string) []string {
	var chunks []string
	var cur []string
	total := 0
	sepLen := utf8.RuneCountInString(sep)

	for _, u := range units {
		extra := utf8.RuneCountInString(u)
		if len(cur) > 0 {
			extra += sepLen
		}

		if total+extra > s.Size && len(cur) > 0 {
			if c := strings.TrimSpace(strings.Join(cur, sep)); c != "" {
				chunks = append(chunks, c)
			}
			for len(cur) > 0 && (total > s.Overlap || total+extra > s.Size) {
				total -= utf8.RuneCountInString(cur[0])
				if len(cur) > 1 {
					total -= sepLen
				}
				cur = cur[1:]
				extra = utf8.RuneCountInString(u)
				if len(cur) > 0 {
					extra += sepLen
				}
			}
		}

		cur = append(cur, u)
		total += extra
	}

	if c := strings.TrimSpace(strings.Join(cur, sep)); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

// splitRunes is the character-level fallback for a single oversized word:
// fixed windows with an Overlap-sized stride back.
func (s *Splitter) splitRunes(text string) []string {
	step := s.Size - s.Overlap
	if step <= 0 {
		step = s.Size
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.Size
		if end > len(runes) {
			end = len(runes)
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
