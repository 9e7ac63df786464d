// Package sanitizer decomposes free-text media filenames into a display
// title, release year, quality tag and keyword tags.
package sanitizer

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// KeywordSeparator joins matched keyword tags in the persisted column.
const KeywordSeparator = ","

var (
	yearPattern = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)
	// A run of exactly four digits; letters may touch it ("2160p", "Heat1995").
	fourDigitPattern  = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var separatorReplacer = strings.NewReplacer(
	".", " ",
	"[", " ", "]", " ",
	"(", " ", ")", " ",
	"-", " ", "_", " ", "/", " ",
)

// Fields is the structured result of sanitizing one filename. Year and
// Quality are empty when absent; an empty string means unknown.
type Fields struct {
	Title    string
	Year     string
	Quality  string
	Keywords []string
}

// KeywordString renders the keyword tags the way they are persisted.
func (f Fields) KeywordString() string {
	return strings.Join(f.Keywords, KeywordSeparator)
}

// Sanitizer holds the compiled vocabulary patterns. It is safe for
// concurrent use.
type Sanitizer struct {
	vocab          Vocabulary
	qualityPattern *regexp.Regexp
	extPattern     *regexp.Regexp
}

// New compiles a sanitizer for the given vocabulary. Empty tag sets
// disable the corresponding extraction.
func New(vocab Vocabulary) *Sanitizer {
	vocab = vocab.normalized()
	return &Sanitizer{
		vocab:          vocab,
		qualityPattern: alternation(`\b(`, vocab.QualityTags, `)\b`),
		extPattern:     alternation(`(?i)\.(`, vocab.Extensions, `)$`),
	}
}

// Default returns a sanitizer for DefaultVocabulary.
func Default() *Sanitizer {
	return New(DefaultVocabulary())
}

func alternation(prefix string, values []string, suffix string) *regexp.Regexp {
	if len(values) == 0 {
		return nil
	}
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = regexp.QuoteMeta(value)
	}
	return regexp.MustCompile(prefix + strings.Join(quoted, "|") + suffix)
}

// Sanitize parses raw. It returns nil only for empty (or all-whitespace)
// input; every other input yields a result, possibly with empty fields.
//
// Year and title are extracted by independent passes: the year is the
// first 19xx/20xx token, while the title is cut at the first run of exactly
// four digits of any value, including resolutions such as "2160p". For
// names such as "1917.2019.1080p" the two disagree and the title comes back
// empty.
func (s *Sanitizer) Sanitize(raw string) *Fields {
	raw = norm.NFC.String(raw)
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	return &Fields{
		Title:    s.cleanTitle(raw),
		Year:     year(raw),
		Quality:  s.quality(raw),
		Keywords: s.keywords(raw),
	}
}

func year(raw string) string {
	if m := yearPattern.FindStringSubmatch(raw); len(m) == 2 {
		return m[1]
	}
	return ""
}

func (s *Sanitizer) quality(raw string) string {
	if s.qualityPattern == nil {
		return ""
	}
	if m := s.qualityPattern.FindStringSubmatch(raw); len(m) == 2 {
		return m[1]
	}
	return ""
}

func (s *Sanitizer) keywords(raw string) []string {
	upper := strings.ToUpper(raw)
	matched := make([]string, 0, len(s.vocab.KeywordTags))
	for _, tag := range s.vocab.KeywordTags {
		if strings.Contains(upper, strings.ToUpper(tag)) {
			matched = append(matched, tag)
		}
	}
	return matched
}

func (s *Sanitizer) cleanTitle(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if s.extPattern != nil {
		cleaned = s.extPattern.ReplaceAllString(cleaned, "")
	}
	cleaned = separatorReplacer.Replace(cleaned)
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if loc := fourDigitPattern.FindStringSubmatchIndex(cleaned); loc != nil {
		cleaned = strings.TrimSpace(cleaned[:loc[2]])
	}
	return cleaned
}
