package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/nao1215/sitescope/internal/model"
)

// maxElements caps each extracted element list so a huge page cannot blow
// up the prompt or the cached result.
const maxElements = 200

// parseHTML fills page from an HTML body.
func parseHTML(page *model.Page, body []byte, base *url.URL) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	page.Title = collapseSpace(doc.Find("title").First().Text())
	page.Description = metaContent(doc, "description")
	page.Keywords = metaContent(doc, "keywords")
	if page.Description == "" {
		if og, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
			page.Description = strings.TrimSpace(og)
		}
	}

	doc.Find("h1, h2, h3, h4, h5, h6").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		if text != "" {
			page.Headings = append(page.Headings, model.Heading{Level: int(goquery.NodeName(s)[1] - '0'), Text: text})
		}
		return len(page.Headings) < maxElements
	})

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		abs, ok := resolveURL(base, href)
		if !ok {
			return true
		}
		page.Anchors = append(page.Anchors, model.Element{
			Source:   abs.String(),
			Text:     collapseSpace(s.Text()),
			External: !sameHost(base, abs),
		})
		return len(page.Anchors) < maxElements
	})

	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		el := model.Element{Alt: strings.TrimSpace(s.AttrOr("alt", ""))}
		if abs, ok := resolveURL(base, src); ok {
			el.Source = abs.String()
		}
		page.Images = append(page.Images, el)
		return len(page.Images) < maxElements
	})

	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		form := model.Form{
			Method: strings.ToLower(s.AttrOr("method", "get")),
		}
		if abs, ok := resolveURL(base, s.AttrOr("action", "")); ok {
			form.Action = abs.String()
		}
		s.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
			typ := strings.ToLower(in.AttrOr("type", goquery.NodeName(in)))
			if typ == "submit" || typ == "button" {
				return
			}
			_, required := in.Attr("required")
			form.Inputs = append(form.Inputs, model.FormInput{
				Type:        typ,
				Name:        in.AttrOr("name", ""),
				Placeholder: in.AttrOr("placeholder", ""),
				Required:    required,
			})
		})
		page.Forms = append(page.Forms, form)
		return len(page.Forms) < maxElements
	})

	doc.Find(`button, input[type="submit"], input[type="button"], [role="button"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := collapseSpace(s.Text())
		if text == "" {
			text = strings.TrimSpace(s.AttrOr("value", s.AttrOr("aria-label", "")))
		}
		page.Buttons = append(page.Buttons, model.Element{
			Text: text,
			Type: strings.ToLower(s.AttrOr("type", "button")),
		})
		return len(page.Buttons) < maxElements
	})

	doc.Find(`nav, [role="navigation"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if text := collapseSpace(s.Text()); text != "" {
			page.Navigation = append(page.Navigation, text)
		}
		return len(page.Navigation) < maxElements
	})

	page.Content = readableText(body, base, doc)
	return nil
}

// readableText returns the main article text, or the visible body text
// when readability finds nothing.
func readableText(body []byte, base *url.URL, doc *goquery.Document) string {
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err == nil {
		if text := collapseSpace(article.TextContent); text != "" {
			return text
		}
	}
	bodySel := doc.Find("body").Clone()
	bodySel.Find("script, style, noscript, template").Remove()
	return collapseSpace(bodySel.Text())
}

func metaContent(doc *goquery.Document, name string) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(s.AttrOr("name", ""), name) {
			content = strings.TrimSpace(s.AttrOr("content", ""))
			return false
		}
		return true
	})
	return content
}

// resolveURL resolves href against base, keeping only http(s) targets.
func resolveURL(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	u, err := base.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, false
	}
	u.Fragment = ""
	return u, true
}

// sameHost compares hosts ignoring case and a leading "www.".
func sameHost(a, b *url.URL) bool {
	ha := strings.TrimPrefix(strings.ToLower(a.Hostname()), "www.")
	hb := strings.TrimPrefix(strings.ToLower(b.Hostname()), "www.")
	return ha == hb
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
