package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// SectionGeneral is the tag used before any section marker has been seen.
const SectionGeneral = "general"

// DefaultMinParagraphLen is the paragraph length at or below which a paragraph
// is treated as page furniture (page numbers, running headers) and dropped.
const DefaultMinParagraphLen = 20

const paragraphSep = "\n\n"

type SectionRule struct {
	Pattern *regexp.Regexp
	Label   string
}

type Chunk struct {
	ID          string `json:"id"`
	CompanyName string `json:"company_name"`
	Ticker      string `json:"ticker"`
	Content     string `json:"content"`
	SectionType string `json:"section_type"`
	ChunkIndex  int    `json:"chunk_index"`
}

// Chunker splits filing text into overlapping, section-tagged chunks.
// Section rules are tried in order and the first match wins.
type Chunker struct {
	rules           []SectionRule
	minParagraphLen int
}

func NewChunker(rules []SectionRule) *Chunker {
	return &Chunker{rules: rules, minParagraphLen: DefaultMinParagraphLen}
}

// WithMinParagraphLen returns a copy of the chunker using a different noise threshold.
func (c *Chunker) WithMinParagraphLen(n int) *Chunker {
	cp := *c
	cp.minParagraphLen = n
	return &cp
}

// Paragraphs splits text on blank lines and drops short noise paragraphs.
func (c *Chunker) Paragraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, paragraphSep) {
		p = strings.TrimSpace(p)
		if len(p) > c.minParagraphLen {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// Section returns the label of the first rule matching paragraph.
func (c *Chunker) Section(paragraph string) (string, bool) {
	for _, r := range c.rules {
		if r.Pattern.MatchString(paragraph) {
			return r.Label, true
		}
	}
	return "", false
}

// Chunk accumulates paragraphs into buffers of at most size bytes, separators
// included. A closed buffer carries the section active when it was closed; the
// next buffer is seeded with the last overlap bytes of the closed one, which
// may start mid-word.
func (c *Chunker) Chunk(text, companyName, ticker string, size, overlap int) []Chunk {
	var chunks []Chunk
	section := SectionGeneral
	prefix := strings.ToLower(ticker)

	var current string
	emit := func() {
		content := strings.TrimSpace(current)
		if content == "" {
			return
		}
		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:          fmt.Sprintf("%s_%d", prefix, idx),
			CompanyName: companyName,
			Ticker:      ticker,
			Content:     content,
			SectionType: section,
			ChunkIndex:  idx,
		})
	}

	for _, para := range c.Paragraphs(text) {
		if label, ok := c.Section(para); ok {
			section = label
		}

		grow := len(para)
		if current != "" {
			grow += len(paragraphSep)
		}
		if len(current)+grow > size {
			emit()
			if overlap > 0 && current != "" {
				current = tail(current, overlap) + paragraphSep + para
			} else {
				current = para
			}
			continue
		}

		if current == "" {
			current = para
		} else {
			current += paragraphSep + para
		}
	}

	emit()
	return chunks
}

// tail returns at most the last n bytes of s, starting on a rune boundary.
func tail(s string, n int) string {
	if n >= len(s) {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
