package validate

import (
	"slices"
	"strings"
	"testing"
)

func TestSanitizeContent(t *testing.T) {
	t.Parallel()

	v := New(WithMaxContentLength(64))

	tests := []struct {
		name         string
		in           string
		want         string
		wantWarnings []string
	}{
		{
			name: "plain text is kept",
			in:   "A page about Go.",
			want: "A page about Go.",
		},
		{
			name: "nfkc folds compatibility forms",
			in:   "ｆｕｌｌ width",
			want: "full width",
		},
		{
			name:         "script removed with body",
			in:           "<div>Buy <b>now</b></div><script>alert('x')</script>",
			want:         "Buy now",
			wantWarnings: []string{"<script> element removed"},
		},
		{
			name:         "event handler and javascript url",
			in:           `<a href="javascript:void(0)" onmouseover="x()">Link</a>`,
			want:         "Link",
			wantWarnings: []string{"event handler attribute removed", "javascript url removed"},
		},
		{
			name:         "void elements reported",
			in:           `<meta http-equiv="refresh" content="0"><link rel="x" href="y">Body`,
			want:         "Body",
			wantWarnings: []string{"<meta> element removed", "<link> element removed"},
		},
		{
			name:         "nested iframe",
			in:           `Before<iframe src="x"><p>inside</p></iframe>After`,
			want:         "Before After",
			wantWarnings: []string{"<iframe> element removed"},
		},
		{
			name:         "truncated",
			in:           strings.Repeat("x", 100),
			want:         strings.Repeat("x", 64),
			wantWarnings: []string{"content truncated to 64 bytes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, warnings := v.SanitizeContent(tt.in)
			if got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
			for _, w := range tt.wantWarnings {
				if !slices.Contains(warnings, w) {
					t.Errorf("missing warning %q in %v", w, warnings)
				}
			}
			if len(tt.wantWarnings) == 0 && len(warnings) != 0 {
				t.Errorf("unexpected warnings %v", warnings)
			}
		})
	}
}

func TestTruncateUTF8(t *testing.T) {
	t.Parallel()

	s := "ab日本"
	if got := truncateUTF8(s, 4); got != "ab" {
		t.Errorf("truncateUTF8 split a rune: %q", got)
	}
	if got := truncateUTF8(s, 5); got != "ab日" {
		t.Errorf("got %q", got)
	}
	if got := truncateUTF8(s, 100); got != s {
		t.Errorf("got %q", got)
	}
}
