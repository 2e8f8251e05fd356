// Package parser converts one raw patch-notes HTML document into the
// typed Patch -> Section -> Change hierarchy. Parsing is a pure
// transformation: identical input bytes always produce an identical
// Document, including all change identifiers.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"patchsage/internal/util"
	"patchsage/pkg/patch"

	"golang.org/x/net/html"
)

var (
	// ErrEmptyDocument indicates the input contained no parseable markup.
	ErrEmptyDocument = errors.New("empty document")
	// ErrMissingTitle indicates no title heading or element could be found.
	ErrMissingTitle = errors.New("missing patch title")
)

// ParseError is returned for malformed or unexpected document shapes.
// It is fatal to the ingestion run that produced it.
type ParseError struct {
	Reason    error
	SourceURL string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.SourceURL, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

// Options controls parsing behavior that varies between callers.
type Options struct {
	// ImplicitGeneralSection assigns text that appears before the first
	// heading to a "General" section at order 0. When false, such text
	// is discarded.
	ImplicitGeneralSection bool
}

var patchIDRe = regexp.MustCompile(`\b(\d{1,2})[.-](\d{1,2})\b`)

var noiseHeadings = map[string]bool{
	"share":            true,
	"copy link":        true,
	"riot games":       true,
	"news":             true,
	"play now":         true,
	"related articles": true,
}

var noiseChanges = map[string]bool{
	"share":      true,
	"copy link":  true,
	"read more":  true,
	"learn more": true,
}

var timestampRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}t\d{2}:\d{2}`)

const (
	minChangeLen = 12
	maxChangeLen = 500

	generalSectionName = "General"
)

// elementEvent is one captured element in document order, with its
// whitespace-normalized text content.
type elementEvent struct {
	tag        string
	attrs      map[string]string
	text       string
	inArticle  bool
	inMain     bool
	inListItem bool
}

type parsedHTML struct {
	title  string
	metas  []map[string]string
	events []elementEvent
}

// Parse converts raw HTML bytes plus their source URL into a Document.
// It fails with a ParseError wrapping ErrEmptyDocument or
// ErrMissingTitle; it never mutates external state.
func Parse(data []byte, sourceURL string, opts Options) (*patch.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Reason: ErrEmptyDocument, SourceURL: sourceURL}
	}

	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Reason: fmt.Errorf("malformed markup: %w", err), SourceURL: sourceURL}
	}

	doc := collect(root)
	events := scopedEvents(doc.events)
	if len(events) == 0 {
		return nil, &ParseError{Reason: ErrEmptyDocument, SourceURL: sourceURL}
	}

	title := extractTitle(doc, events)
	if title == "" {
		return nil, &ParseError{Reason: ErrMissingTitle, SourceURL: sourceURL}
	}

	patchID := findPatchID(title, sourceURL)
	publishedAt := extractPublishedAt(doc, events)

	sections := buildSections(events, opts)

	result := &patch.Document{
		Patch: patch.Patch{
			ID:          patchID,
			Title:       title,
			URL:         sourceURL,
			PublishedAt: publishedAt,
		},
	}

	for order, raw := range sections {
		section := patch.Section{
			Name:    raw.name,
			Order:   order,
			Changes: make([]patch.Change, 0, len(raw.changes)),
		}
		for idx, text := range raw.changes {
			section.Changes = append(section.Changes, patch.Change{
				ID:          patch.ChangeID(patchID, order, idx),
				Text:        text,
				SectionName: raw.name,
				SourceURL:   sourceURL,
				Order:       idx,
			})
		}
		result.Sections = append(result.Sections, section)
	}

	return result, nil
}

// findPatchID extracts a "major.minor" version from the given values,
// zero-padding the minor part ("12-2" and "12.02" both become "12.02").
// Falls back to "latest" when no value carries a version.
func findPatchID(values ...string) string {
	for _, value := range values {
		match := patchIDRe.FindStringSubmatch(value)
		if match == nil {
			continue
		}
		major := strings.TrimLeft(match[1], "0")
		if major == "" {
			major = "0"
		}
		minor := match[2]
		if len(minor) == 1 {
			minor = "0" + minor
		}
		return major + "." + minor
	}
	return "latest"
}

// scopedEvents narrows parsing to the article body when one exists, so
// navigation chrome and footers around the article are never treated as
// sections.
func scopedEvents(events []elementEvent) []elementEvent {
	for _, pick := range []func(elementEvent) bool{
		func(e elementEvent) bool { return e.inArticle },
		func(e elementEvent) bool { return e.inMain },
	} {
		var scoped []elementEvent
		for _, event := range events {
			if pick(event) {
				scoped = append(scoped, event)
			}
		}
		if len(scoped) > 0 {
			return scoped
		}
	}
	return events
}

func extractMeta(doc parsedHTML, key, value string) string {
	for _, meta := range doc.metas {
		if meta[key] == value {
			if content := util.NormalizeSpace(meta["content"]); content != "" {
				return content
			}
		}
	}
	return ""
}

func extractTitle(doc parsedHTML, events []elementEvent) string {
	if title := extractMeta(doc, "property", "og:title"); title != "" {
		return title
	}
	for _, event := range events {
		if event.tag == "h1" && event.text != "" {
			return event.text
		}
	}
	return doc.title
}

func extractPublishedAt(doc parsedHTML, events []elementEvent) string {
	if published := extractMeta(doc, "property", "article:published_time"); published != "" {
		return published
	}
	for _, event := range events {
		if event.tag != "time" {
			continue
		}
		if dt := util.NormalizeSpace(event.attrs["datetime"]); dt != "" {
			return dt
		}
		if event.text != "" {
			return event.text
		}
	}
	return ""
}

type rawSection struct {
	name    string
	changes []string
}

// buildSections walks the scoped events in document order. Each kept
// h2/h3 starts a new section; list items and paragraphs accumulate into
// the current one. Sections keep their position even when no change
// survives filtering: a heading with nothing under it is informative.
func buildSections(events []elementEvent, opts Options) []rawSection {
	var sections []rawSection
	current := -1

	implicit := rawSection{name: generalSectionName}
	seen := make(map[[2]string]bool)

	appendChange := func(section *rawSection, text string) {
		key := [2]string{section.name, text}
		if seen[key] {
			return
		}
		seen[key] = true
		section.changes = append(section.changes, text)
	}

	for _, event := range events {
		switch event.tag {
		case "h2", "h3":
			normalized := strings.ToLower(event.text)
			if normalized == "related articles" {
				// Everything after the related-articles block is
				// cross-promotion, not patch content.
				return assemble(implicit, sections, opts)
			}
			if event.text == "" || noiseHeadings[normalized] {
				continue
			}
			sections = append(sections, rawSection{name: event.text})
			current = len(sections) - 1
		case "li", "p":
			if event.tag == "p" && event.inListItem {
				continue
			}
			if !keepChange(event.text) {
				continue
			}
			if current < 0 {
				appendChange(&implicit, event.text)
				continue
			}
			appendChange(&sections[current], event.text)
		}
	}

	return assemble(implicit, sections, opts)
}

func assemble(implicit rawSection, sections []rawSection, opts Options) []rawSection {
	if opts.ImplicitGeneralSection && len(implicit.changes) > 0 {
		return append([]rawSection{implicit}, sections...)
	}
	return sections
}

func keepChange(text string) bool {
	if text == "" {
		return false
	}
	normalized := strings.ToLower(text)
	if noiseChanges[normalized] {
		return false
	}
	if strings.HasPrefix(normalized, "related articles") {
		return false
	}
	if strings.Contains(normalized, "game updates") && strings.Contains(normalized, "patch notes") {
		return false
	}
	if timestampRe.MatchString(normalized) {
		return false
	}
	if len(normalized) < minChangeLen || len(normalized) > maxChangeLen {
		return false
	}
	return true
}
