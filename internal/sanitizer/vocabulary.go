package sanitizer

import "strings"

// Vocabulary holds the enumerated tag sets the sanitizer matches against.
// Order matters: quality tags are tried as alternatives of a single pattern
// and keyword tags are reported in declaration order.
type Vocabulary struct {
	QualityTags []string `yaml:"quality_tags" json:"quality_tags"`
	KeywordTags []string `yaml:"keyword_tags" json:"keyword_tags"`
	Extensions  []string `yaml:"extensions" json:"extensions"`
}

// DefaultVocabulary returns the tag sets observed on the source listing.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		QualityTags: []string{"1080p", "720p", "2160p"},
		KeywordTags: []string{"BluRay", "REMUX", "UNTOUCHED", "HDR10", "IMAX", "Hallowed", "REMASTERED"},
		Extensions:  []string{"mkv", "mp4", "mov", "avi", "wmv", "flv", "webm"},
	}
}

// normalized drops blanks and duplicates while keeping first-seen order.
// Keyword and extension duplicates are compared case-insensitively since
// both are matched that way.
func (v Vocabulary) normalized() Vocabulary {
	return Vocabulary{
		QualityTags: dedupe(v.QualityTags, false),
		KeywordTags: dedupe(v.KeywordTags, true),
		Extensions:  dedupe(trimDots(v.Extensions), true),
	}
}

func dedupe(values []string, foldCase bool) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		key := value
		if foldCase {
			key = strings.ToUpper(value)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}

func trimDots(values []string) []string {
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = strings.TrimPrefix(strings.TrimSpace(value), ".")
	}
	return out
}
