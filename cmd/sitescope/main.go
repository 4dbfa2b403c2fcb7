// Package main provides the entry point for the sitescope CLI.
//
// sitescope analyzes web pages with a language model: it classifies the
// site, summarizes it, and reviews its UX and design.
//
// Usage:
//
//	sitescope analyze <url>
//	sitescope analyze --quick <url> <url>
//
// See --help for all available options.
package main

// main is the entry point for sitescope.
func main() {
	Execute()
}
