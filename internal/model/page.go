package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Page is the raw page data supplied by the scraper.
// The pipeline treats it as read-only input to every step.
type Page struct {
	// URL is the normalized URL that was fetched.
	URL string `json:"url"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the MIME type of the response.
	ContentType string `json:"content_type"`

	// Title is the text of the <title> element.
	Title string `json:"title,omitempty"`

	// Description is the content of <meta name="description">.
	Description string `json:"description,omitempty"`

	// Keywords is the content of <meta name="keywords">.
	Keywords string `json:"keywords,omitempty"`

	// Headings holds h1-h6 elements in document order.
	Headings []Heading `json:"headings,omitempty"`

	// Anchors contains all anchor (<a>) elements.
	Anchors []Element `json:"anchors,omitempty"`

	// Images contains all <img> elements.
	Images []Element `json:"images,omitempty"`

	// Forms contains all HTML forms found on the page.
	Forms []Form `json:"forms,omitempty"`

	// Buttons contains <button> and button-like <input> elements.
	Buttons []Element `json:"buttons,omitempty"`

	// Navigation holds the text of <nav> and menu-like containers.
	Navigation []string `json:"navigation,omitempty"`

	// Content is the readable text of the page, already sanitized
	// and truncated to the configured maximum.
	Content string `json:"content"`

	// Hash is the SHA-256 hash of the raw body.
	Hash string `json:"hash,omitempty"`

	// FetchedAt is when the page was retrieved.
	FetchedAt time.Time `json:"fetched_at"`
}

// Heading is a single h1-h6 element.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Form represents an HTML form element.
type Form struct {
	// Action is the form's action URL.
	Action string `json:"action"`

	// Method is the HTTP method, lower-cased. Defaults to "get".
	Method string `json:"method"`

	// Inputs contains the form's input fields.
	Inputs []FormInput `json:"inputs,omitempty"`
}

// FormInput represents an input field in a form.
type FormInput struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Element represents a generic HTML element with a source URL.
// Used for images, anchors and buttons.
type Element struct {
	// Source is the element's src or href attribute, resolved to absolute form.
	Source string `json:"source,omitempty"`

	// Alt is the alt text (for images).
	Alt string `json:"alt,omitempty"`

	// Text is the inner text content.
	Text string `json:"text,omitempty"`

	// Type is the element type attribute (for buttons).
	Type string `json:"type,omitempty"`

	// External reports whether an anchor leaves the page's host.
	External bool `json:"external,omitempty"`
}

// ComputeHash sets Hash from the given raw body.
func (p *Page) ComputeHash(raw []byte) {
	if len(raw) == 0 {
		p.Hash = ""
		return
	}
	sum := sha256.Sum256(raw)
	p.Hash = hex.EncodeToString(sum[:])
}

// IsHTML returns true if the page content type indicates HTML.
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// Summary returns the subset of the page echoed in results.
func (p *Page) Summary() PageSummary {
	if p == nil {
		return PageSummary{}
	}
	return PageSummary{
		Title:         p.Title,
		Description:   p.Description,
		ContentLength: len(p.Content),
	}
}

// ExternalLinkCount returns the number of anchors pointing off-host.
func (p *Page) ExternalLinkCount() int {
	n := 0
	for _, a := range p.Anchors {
		if a.External {
			n++
		}
	}
	return n
}
