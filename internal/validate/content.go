package validate

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// droppedElements are removed together with everything inside them.
var droppedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"iframe":   true,
	"object":   true,
	"noscript": true,
	"template": true,
}

// droppedVoidElements carry no text but are reported when present.
var droppedVoidElements = map[string]bool{
	"embed": true,
	"link":  true,
	"meta":  true,
}

// SanitizeContent normalizes caller content to NFKC, truncates it to the
// configured length and, when it contains markup, reduces it to plain text
// with active elements removed. The warnings describe each kind of removal.
func (v *Validator) SanitizeContent(raw string) (string, []string) {
	var warnings []string

	content := norm.NFKC.String(raw)
	if len(content) > v.maxContentLength {
		content = truncateUTF8(content, v.maxContentLength)
		warnings = append(warnings, fmt.Sprintf("content truncated to %d bytes", v.maxContentLength))
	}

	if !strings.Contains(content, "<") {
		return content, warnings
	}

	text, threats := stripMarkup(content)
	return text, append(warnings, threats...)
}

// stripMarkup walks the token stream and keeps only text outside dropped
// elements. Attributes never survive, so event handlers and javascript:
// URLs disappear with their tags; they are still reported.
func stripMarkup(content string) (string, []string) {
	var (
		out    strings.Builder
		skip   int
		seen   = make(map[string]bool)
		report []string
	)
	warn := func(w string) {
		if !seen[w] {
			seen[w] = true
			report = append(report, w)
		}
	}

	z := html.NewTokenizer(strings.NewReader(content))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				warn("content markup could not be fully parsed")
			}
			return strings.Join(strings.Fields(out.String()), " "), report

		case html.TextToken:
			if skip == 0 {
				out.Write(z.Text())
				out.WriteByte(' ')
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if strings.HasPrefix(string(key), "on") {
					warn("event handler attribute removed")
				}
				if strings.HasPrefix(strings.ToLower(strings.TrimSpace(string(val))), "javascript:") {
					warn("javascript url removed")
				}
			}
			switch {
			case droppedElements[tag]:
				warn("<" + tag + "> element removed")
				if tt == html.StartTagToken {
					skip++
				}
			case droppedVoidElements[tag]:
				warn("<" + tag + "> element removed")
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if droppedElements[string(name)] && skip > 0 {
				skip--
			}
		}
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
