// Package sanitize cleans inbound text before it reaches the Prompt
// Assembler: stripping NULs, enforcing a length cap, and scanning for known
// prompt-injection patterns.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxLength is the character cap applied when Options.MaxLength is
// left at zero.
const DefaultMaxLength = 100000

// filteredMarker replaces a matched injection pattern when stripping is on.
const filteredMarker = "[FILTERED]"

// injectionPatterns is a fixed list of known prompt-injection phrasings.
// Matching is case-insensitive; patterns are intentionally loose substrings
// rather than full NLP classification -- this is a blunt first line of
// defense, not a guarantee.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)ignore\s+the\s+above`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(prior|previous)\s+instructions`),
	regexp.MustCompile(`(?i)\[INST\]`),
	regexp.MustCompile(`(?i)<\|im_start\|>`),
	regexp.MustCompile(`(?i)<\|im_end\|>`),
	regexp.MustCompile(`(?i)^system\s*:`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(developer|dan|jailbreak)\s+mode`),
	regexp.MustCompile(`(?i)reveal\s+your\s+(system\s+)?prompt`),
}

// Options configures a Sanitize call.
type Options struct {
	MaxLength              int
	StripInjectionPatterns bool
}

// DefaultOptions returns the spec defaults: a 100k character cap with
// injection-pattern stripping enabled.
func DefaultOptions() Options {
	return Options{MaxLength: DefaultMaxLength, StripInjectionPatterns: true}
}

// Result is the outcome of sanitizing one input string.
type Result struct {
	Sanitized        string
	InjectionDetected bool
	DetectedPatterns  []string
	WasTruncated      bool
}

// ErrEmptyInput is returned when the input is empty after trimming NULs and
// surrounding whitespace.
var ErrEmptyInput = fmt.Errorf("sanitize: input is empty")

// Sanitize strips NUL bytes unconditionally, truncates to opts.MaxLength,
// and -- when opts.StripInjectionPatterns is set -- scans for known
// injection phrasings, replacing each match with [FILTERED] and recording
// it in Result.DetectedPatterns.
func Sanitize(input string, opts Options) (*Result, error) {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}

	cleaned := strings.ReplaceAll(input, "\x00", "")
	if strings.TrimSpace(cleaned) == "" {
		return nil, ErrEmptyInput
	}

	result := &Result{}

	runes := []rune(cleaned)
	if len(runes) > opts.MaxLength {
		cleaned = string(runes[:opts.MaxLength])
		result.WasTruncated = true
	}

	if opts.StripInjectionPatterns {
		for _, pattern := range injectionPatterns {
			if pattern.MatchString(cleaned) {
				result.InjectionDetected = true
				result.DetectedPatterns = append(result.DetectedPatterns, pattern.String())
				cleaned = pattern.ReplaceAllString(cleaned, filteredMarker)
			}
		}
	}

	result.Sanitized = cleaned
	return result, nil
}
