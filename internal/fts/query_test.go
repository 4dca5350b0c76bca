package fts

import (
	"errors"
	"testing"
)

func TestParseQueryType(t *testing.T) {
	tests := []struct {
		input       string
		want        QueryType
		shouldError bool
	}{
		{"", QueryTypePlain, false},
		{"plain", QueryTypePlain, false},
		{"PHRASE", QueryTypePhrase, false},
		{"wfts", QueryTypeWebsearch, false},
		{"fts", QueryTypeFTS, false},
		{"regex", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseQueryType(tc.input)
			if tc.shouldError {
				if !errors.Is(err, ErrInvalidQuery) {
					t.Errorf("expected ErrInvalidQuery for %q, got %v", tc.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPlainToFTS5(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello world", `"hello" AND "world"`},
		{"single", `"single"`},
		{"  spaces  between  ", `"spaces" AND "between"`},
		{"re: deploy-v2", `"re:" AND "deploy-v2"`},
		{`say "hi"`, `"say" AND "hi"`},
		{"", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := plainToFTS5(tc.input); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPhraseToFTS5(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello world", `"hello world"`},
		{"  spaces  ", `"spaces"`},
		{"   ", ""},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := phraseToFTS5(tc.input); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWebsearchToFTS5(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"cat or dog", `"cat" OR "dog"`},
		{"cat OR dog", `"cat" OR "dog"`},
		{"dog -cat", `"dog" NOT "cat"`},
		{"-cat", ""},
		{"-cat dog", `"dog"`},
		{`"fat cat"`, `"fat cat"`},
		{`"fat cat" dog`, `"fat cat" "dog"`},
		{`"fat cat" or dog -mouse`, `"fat cat" OR "dog" NOT "mouse"`},
		{"dog or", `"dog"`},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := websearchToFTS5(tc.input); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFTSToFTS5(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"'cat' & 'dog'", "cat AND dog"},
		{"'cat' | 'dog'", "cat OR dog"},
		{"'dog' & !'cat'", "dog AND NOT cat"},
		{"'cat':*", "cat*"},
		{"'fat' & 'cat' | 'dog'", "fat AND cat OR dog"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ftsToFTS5(tc.input); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConvertQuery(t *testing.T) {
	got, err := ConvertQuery("fat cat", "")
	if err != nil {
		t.Fatalf("ConvertQuery failed: %v", err)
	}
	if got != `"fat" AND "cat"` {
		t.Errorf("got %q", got)
	}

	for _, tc := range []struct{ query, kind string }{
		{"", "plain"},
		{"   ", "phrase"},
		{"cat", "soundex"},
		{"-cat", "websearch"},
	} {
		if _, err := ConvertQuery(tc.query, tc.kind); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("ConvertQuery(%q, %q): expected ErrInvalidQuery, got %v", tc.query, tc.kind, err)
		}
	}
}

func TestSplitPreservingQuotes(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"hello world", []string{"hello", "world"}},
		{`"hello world"`, []string{`"hello world"`}},
		{`foo "hello world" bar`, []string{"foo", `"hello world"`, "bar"}},
		{"", nil},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got := splitPreservingQuotes(tc.input)
			if len(got) != len(tc.want) {
				t.Fatalf("length: got %d, want %d", len(got), len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("[%d]: got %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}
