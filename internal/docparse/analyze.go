// Package docparse extracts plain text from uploaded documents and mines
// it for structured data: contact details, dates, URLs, and keywords.
package docparse

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ExtractedData is the structured content mined from a document's text.
type ExtractedData struct {
	Emails         []string `json:"emails"`
	PhoneNumbers   []string `json:"phoneNumbers"`
	Dates          []string `json:"dates"`
	URLs           []string `json:"urls"`
	Keywords       []string `json:"keywords"`
	WordCount      int      `json:"wordCount"`
	CharacterCount int      `json:"characterCount"`
	ParagraphCount int      `json:"paragraphCount"`
}

// Metadata summarizes a parse run.
type Metadata struct {
	FileType       string    `json:"fileType"`
	ProcessedAt    time.Time `json:"processedAt"`
	HasContactInfo bool      `json:"hasContactInfo"`
	HasDates       bool      `json:"hasDates"`
	HasURLs        bool      `json:"hasUrls"`
}

// Analysis is the full result of Analyze.
type Analysis struct {
	ExtractedData ExtractedData `json:"extractedData"`
	Metadata      Metadata      `json:"metadata"`
}

var (
	emailRE = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	phoneREs = []*regexp.Regexp{
		regexp.MustCompile(`(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		regexp.MustCompile(`\+\d{1,3}\s?\d{1,4}\s?\d{1,4}\s?\d{1,9}`),
		regexp.MustCompile(`\d{3}[-.\s]?\d{3}[-.\s]?\d{4}`),
	}

	dateREs = []*regexp.Regexp{
		regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
		regexp.MustCompile(`\d{4}[/-]\d{1,2}[/-]\d{1,2}`),
		regexp.MustCompile(`(?i)(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`(?i)\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{4}`),
	}

	urlRE = regexp.MustCompile(`(?i)https?://[-\w.]+(?::\d+)?(?:/[\w/_.]*(?:\?[\w&=%.]*)?(?:#[\w.]*)?)?`)

	wordRE      = regexp.MustCompile(`\b[A-Z][a-z]+\b|\b\w{4,}\b`)
	paragraphRE = regexp.MustCompile(`\n\s*\n`)
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "were": {},
	"been": {}, "be": {}, "have": {}, "has": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "could": {},
	"should": {}, "may": {}, "might": {}, "must": {}, "can": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "what": {},
	"which": {}, "who": {}, "whom": {}, "whose": {}, "where": {},
	"when": {}, "why": {}, "how": {}, "all": {}, "each": {}, "every": {},
	"both": {}, "few": {}, "more": {}, "most": {}, "other": {},
	"some": {}, "such": {}, "no": {}, "nor": {}, "not": {}, "only": {},
	"own": {}, "same": {}, "so": {}, "than": {}, "too": {}, "very": {},
	"just": {}, "now": {}, "then": {}, "here": {}, "there": {}, "any": {},
}

const maxKeywords = 20

// ErrEmptyContent is returned by Analyze when there is no text to mine.
var ErrEmptyContent = errors.New("content must be a non-empty string")

// Analyze mines content for contact details, dates, URLs, and the top
// keywords, and returns the analysis with per-run metadata.
func Analyze(content, fileType string) (*Analysis, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if fileType == "" {
		fileType = "unknown"
	}

	data := ExtractedData{
		Emails:         Emails(content),
		PhoneNumbers:   Phones(content),
		Dates:          Dates(content),
		URLs:           URLs(content),
		Keywords:       Keywords(content),
		WordCount:      len(strings.Fields(content)),
		CharacterCount: len([]rune(content)),
		ParagraphCount: countParagraphs(content),
	}

	meta := Metadata{
		FileType:       fileType,
		ProcessedAt:    time.Now().UTC(),
		HasContactInfo: len(data.Emails) > 0 || len(data.PhoneNumbers) > 0,
		HasDates:       len(data.Dates) > 0,
		HasURLs:        len(data.URLs) > 0,
	}

	return &Analysis{ExtractedData: data, Metadata: meta}, nil
}

// Emails returns the distinct email addresses found in text.
func Emails(text string) []string {
	return dedupe(emailRE.FindAllString(text, -1))
}

// Phones returns the distinct phone numbers found in text.
func Phones(text string) []string {
	var all []string
	for _, re := range phoneREs {
		all = append(all, re.FindAllString(text, -1)...)
	}
	return dedupe(all)
}

// Dates returns the distinct date strings found in text, covering
// numeric and month-name formats.
func Dates(text string) []string {
	var all []string
	for _, re := range dateREs {
		all = append(all, re.FindAllString(text, -1)...)
	}
	return dedupe(all)
}

// URLs returns the distinct http and https URLs found in text.
func URLs(text string) []string {
	return dedupe(urlRE.FindAllString(text, -1))
}

// Keywords returns up to 20 of the most frequent words in text, lowercased,
// with common stop words removed. Ties keep first-occurrence order.
func Keywords(text string) []string {
	words := wordRE.FindAllString(text, -1)

	freq := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, w := range words {
		lw := strings.ToLower(w)
		if len(lw) < 3 {
			continue
		}
		if _, stop := stopWords[lw]; stop {
			continue
		}
		if _, ok := freq[lw]; !ok {
			firstSeen[lw] = i
		}
		freq[lw]++
	}

	keywords := make([]string, 0, len(freq))
	for w := range freq {
		keywords = append(keywords, w)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return firstSeen[keywords[i]] < firstSeen[keywords[j]]
	})

	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

func countParagraphs(text string) int {
	n := 0
	for _, p := range paragraphRE.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// dedupe removes duplicates preserving first-occurrence order. It returns
// an empty, non-nil slice for empty input so JSON encodes [] not null.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
