package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/scipunch/findnews/config"
	"github.com/scipunch/findnews/fetcher/types"
)

// Pipeline applies an ordered list of named filters to feed entries
type Pipeline struct {
	stages []stage
}

type stage struct {
	name    string
	config  config.Filter
	exclude []*regexp.Regexp
	urls    []*regexp.Regexp
}

// New builds the pipeline for names out of the configured filters. Unknown
// names and invalid patterns are errors.
func New(filters map[string]config.Filter, names []string) (*Pipeline, error) {
	p := &Pipeline{stages: make([]stage, 0, len(names))}

	for _, name := range names {
		cfg, ok := filters[name]
		if !ok {
			return nil, fmt.Errorf("filter %q is not defined", name)
		}

		exclude, err := compile(cfg.ExcludePatterns)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}
		urls, err := compile(cfg.ExcludeURLs)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}

		p.stages = append(p.stages, stage{name: name, config: cfg, exclude: exclude, urls: urls})
	}

	return p, nil
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Len is the number of filters in the pipeline
func (p *Pipeline) Len() int {
	return len(p.stages)
}

// Include reports whether item passes every filter. When it does not, the
// second value names the filter and rule that rejected it.
func (p *Pipeline) Include(item types.FeedItem) (bool, string) {
	for _, s := range p.stages {
		if reason := s.reject(item); reason != "" {
			return false, s.name + ":" + reason
		}
	}
	return true, ""
}

func (s stage) reject(item types.FeedItem) string {
	text := item.Title + " " + item.Summary

	if s.config.MinLength > 0 && len(text) < s.config.MinLength {
		return "min_length"
	}
	if s.config.MinWords > 0 && countWords(text) < s.config.MinWords {
		return "min_words"
	}
	for i, re := range s.exclude {
		if re.MatchString(text) {
			return "exclude_pattern[" + s.config.ExcludePatterns[i] + "]"
		}
	}
	for i, re := range s.urls {
		if re.MatchString(item.Link) {
			return "exclude_url[" + s.config.ExcludeURLs[i] + "]"
		}
	}
	if s.config.RequireParagraphs && !hasMultipleParagraphs(item.Summary) {
		return "require_paragraphs"
	}
	return ""
}

// countWords counts runs of letters and digits
func countWords(text string) int {
	words := 0
	inWord := false

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if !inWord {
				words++
				inWord = true
			}
		} else {
			inWord = false
		}
	}

	return words
}

// hasMultipleParagraphs checks for at least two non-blank lines
func hasMultipleParagraphs(text string) bool {
	nonEmpty := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			nonEmpty++
		}
	}
	return nonEmpty >= 2
}
