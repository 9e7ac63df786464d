package sanitizer

import (
	"reflect"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	s := Default()

	tests := []struct {
		name     string
		input    string
		title    string
		year     string
		quality  string
		keywords string
	}{
		{
			name:     "dotted release name",
			input:    "The.Thing.2011.1080p.BluRay.REMUX.mkv",
			title:    "The Thing",
			year:     "2011",
			quality:  "1080p",
			keywords: "BluRay,REMUX",
		},
		{
			name:     "brackets and underscores",
			input:    "Blade_Runner.[Final-Cut].(1982).2160p.HDR10.IMAX.mp4",
			title:    "Blade Runner Final Cut",
			year:     "1982",
			quality:  "2160p",
			keywords: "HDR10,IMAX",
		},
		{
			name:     "no year keeps whole cleaned string",
			input:    "Some Home Movie 720p.MOV",
			title:    "Some Home Movie 720p",
			year:     "",
			quality:  "720p",
			keywords: "",
		},
		{
			name:     "unknown extension is kept",
			input:    "Alien.1979.srt",
			title:    "Alien",
			year:     "1979",
			quality:  "",
			keywords: "",
		},
		{
			name:     "keyword match is case insensitive",
			input:    "Heat.1995.remastered.bluray.mkv",
			title:    "Heat",
			year:     "1995",
			quality:  "",
			keywords: "BluRay,REMASTERED",
		},
		{
			name:     "quality tag is case sensitive",
			input:    "Heat.1995.1080P.mkv",
			title:    "Heat",
			year:     "1995",
			quality:  "",
			keywords: "",
		},
		{
			name:     "first quality tag in the string wins",
			input:    "Dune.2021.2160p.from.1080p.source.mkv",
			title:    "Dune",
			year:     "2021",
			quality:  "2160p",
			keywords: "",
		},
		{
			name:     "slashes and repeated whitespace collapse",
			input:    "  Mad / Max   Fury -- Road 2015 ",
			title:    "Mad Max Fury Road",
			year:     "2015",
			quality:  "",
			keywords: "",
		},
		{
			name:     "resolution is the first four-digit run",
			input:    "Arrival.2160p.REMUX.mkv",
			title:    "Arrival",
			year:     "",
			quality:  "2160p",
			keywords: "REMUX",
		},
		{
			name:     "no year cuts at 1080p",
			input:    "Movie.1080p.BluRay.x264.mkv",
			title:    "Movie",
			year:     "",
			quality:  "1080p",
			keywords: "BluRay",
		},
		{
			name:     "year glued to the title",
			input:    "Heat1995.1080p.mkv",
			title:    "Heat",
			year:     "1995",
			quality:  "1080p",
			keywords: "",
		},
		{
			name:     "five-digit run is not split",
			input:    "Area.51234.Files.720p.mkv",
			title:    "Area 51234 Files 720p",
			year:     "",
			quality:  "720p",
			keywords: "",
		},
		{
			name:     "only separators",
			input:    "._-",
			title:    "",
			year:     "",
			quality:  "",
			keywords: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got == nil {
				t.Fatalf("Sanitize(%q) returned nil", tt.input)
			}
			if got.Title != tt.title {
				t.Errorf("title = %q, want %q", got.Title, tt.title)
			}
			if got.Year != tt.year {
				t.Errorf("year = %q, want %q", got.Year, tt.year)
			}
			if got.Quality != tt.quality {
				t.Errorf("quality = %q, want %q", got.Quality, tt.quality)
			}
			if got.KeywordString() != tt.keywords {
				t.Errorf("keywords = %q, want %q", got.KeywordString(), tt.keywords)
			}
		})
	}
}

func TestSanitizeEmptyInput(t *testing.T) {
	s := Default()
	for _, input := range []string{"", "   ", "\t\n"} {
		if got := s.Sanitize(input); got != nil {
			t.Errorf("Sanitize(%q) = %+v, want nil", input, got)
		}
	}
}

// The year field and the title cut are separate passes over the input.
// These cases pin down where they disagree.
func TestSanitizeYearAndTitleCutAreIndependent(t *testing.T) {
	s := Default()

	tests := []struct {
		input string
		title string
		year  string
	}{
		// Title starts with a 4-digit run: the cut leaves nothing.
		{"1917.2019.1080p.BluRay.mkv", "", "1917"},
		// Cut happens at 3000 although it is not a recognised year.
		{"Futurama.3000.Into.The.Wild.2010.mkv", "Futurama", "2010"},
		// The title itself looks like a year.
		{"2001.A.Space.Odyssey.1968.mkv", "", "2001"},
	}

	for _, tt := range tests {
		got := s.Sanitize(tt.input)
		if got.Title != tt.title || got.Year != tt.year {
			t.Errorf("Sanitize(%q) = (%q, %q), want (%q, %q)", tt.input, got.Title, got.Year, tt.title, tt.year)
		}
	}
}

func TestSanitizeTitleIdempotent(t *testing.T) {
	s := Default()
	inputs := []string{
		"The.Thing.2011.1080p.BluRay.REMUX.mkv",
		"Blade_Runner.[Final-Cut].(1982).2160p.HDR10.IMAX.mp4",
		"Some Home Movie 720p.MOV",
		"Mad / Max   Fury -- Road 2015",
		"A.B.C",
		"Arrival.2160p.REMUX.mkv",
		"Heat1995.1080p.mkv",
		"Area.51234.Files.720p.mkv",
	}

	for _, input := range inputs {
		first := s.Sanitize(input)
		if first.Title == "" {
			continue
		}
		second := s.Sanitize(first.Title)
		if second == nil || second.Title != first.Title {
			t.Errorf("re-sanitizing %q changed title to %+v", first.Title, second)
		}
	}
}

func TestSanitizeQualityEmptyWithoutTags(t *testing.T) {
	s := Default()
	inputs := []string{"Heat.1995.mkv", "480p.DVDRip", "1080i.broadcast", "x1080p"}
	for _, input := range inputs {
		if got := s.Sanitize(input); got.Quality != "" {
			t.Errorf("Sanitize(%q).Quality = %q, want empty", input, got.Quality)
		}
	}
}

func TestSanitizeKeywordsOrderedAndUnique(t *testing.T) {
	s := Default()
	got := s.Sanitize("IMAX.REMUX.remux.Hallowed.BluRay.IMAX.UNTOUCHED.mkv")

	want := []string{"BluRay", "REMUX", "UNTOUCHED", "IMAX", "Hallowed"}
	if !reflect.DeepEqual(got.Keywords, want) {
		t.Errorf("keywords = %v, want %v", got.Keywords, want)
	}
}

func TestCustomVocabulary(t *testing.T) {
	s := New(Vocabulary{
		QualityTags: []string{"480p", "480p", " "},
		KeywordTags: []string{"DVDRip", "dvdrip", "WEB-DL"},
		Extensions:  []string{".ts"},
	})

	got := s.Sanitize("Old.Show.1999.480p.WEB-DL.DVDRip.ts")
	if got.Quality != "480p" {
		t.Errorf("quality = %q, want 480p", got.Quality)
	}
	if got.KeywordString() != "DVDRip,WEB-DL" {
		t.Errorf("keywords = %q, want DVDRip,WEB-DL", got.KeywordString())
	}
	if got.Title != "Old Show" {
		t.Errorf("title = %q, want %q", got.Title, "Old Show")
	}

	// mkv is no longer a known extension, so it survives as a word.
	if got := s.Sanitize("Old.Show.mkv"); got.Title != "Old Show mkv" {
		t.Errorf("title = %q, want %q", got.Title, "Old Show mkv")
	}
}

func TestEmptyVocabulary(t *testing.T) {
	s := New(Vocabulary{})
	got := s.Sanitize("The.Thing.2011.1080p.BluRay.mkv")
	if got.Quality != "" || len(got.Keywords) != 0 {
		t.Errorf("expected no tags, got %+v", got)
	}
	if !strings.HasPrefix(got.Title, "The Thing") {
		t.Errorf("title = %q", got.Title)
	}
}
