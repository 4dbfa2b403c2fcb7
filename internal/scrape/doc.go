// Package scrape fetches a target page and extracts the data the analysis
// steps work on.
//
// A Fetcher issues a single GET per request (no crawling), bounded by a
// body size limit and the caller's context. Per-host cookies, headers and
// user agents come from the scraper.sites section of the configuration.
//
// Parsing uses goquery for structure (title, meta tags, headings, links,
// forms, buttons, navigation) and go-readability for the readable main
// text. When readability finds no article the visible body text is used.
//
// Design decision: the fetcher does not sanitize text. Page content goes
// through the same validator sanitization as caller-supplied content before
// any step sees it, so there is one place that decides what is safe.
package scrape
