// Package config provides configuration structures and utilities for sitescope.
// It defines the defaults for the admission pipeline (validator, rate limiter,
// cache, executor, orchestrator), the language-model provider and the scraper,
// and loads overrides from a YAML configuration file.
package config
