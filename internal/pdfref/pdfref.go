// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdfref pulls the reference list out of a PDF and splits it into
// candidate entries.
package pdfref

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// minEntryLen is the shortest text kept as a candidate reference.
const minEntryLen = 40

// minEntries is the candidate count below which paragraph splitting is tried.
const minEntries = 3

var (
	headingRe   = regexp.MustCompile(`(?im)^(References|Bibliography|Works Cited)\b`)
	entryMarkRe = regexp.MustCompile(`^(\d+\.|\[\d+\]|•|-)\s+`)
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// ErrEmpty is returned for a zero-length upload.
var ErrEmpty = errors.New("empty PDF")

// ExtractText returns the plain text of every page, joined by newlines.
// Pages whose content cannot be decoded are skipped.
func ExtractText(data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("reading PDF: %w", err)
	}

	var chunks []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		txt, err := page.GetPlainText(nil)
		if err != nil || txt == "" {
			continue
		}
		chunks = append(chunks, txt)
	}
	return strings.Join(chunks, "\n"), nil
}

// ReferencesSection returns text from the first line starting with a
// References, Bibliography, or Works Cited heading. Without a heading the
// whole text is returned.
func ReferencesSection(full string) string {
	loc := headingRe.FindStringIndex(full)
	if loc == nil {
		return full
	}
	return full[loc[0]:]
}

// SplitCandidates breaks a reference section into entries. Blank lines and
// list markers ("1.", "[1]", bullets, dashes) start a new entry; entries
// of 40 characters or fewer are dropped. When that yields fewer than three
// entries and the text has more paragraphs, paragraphs are used instead.
func SplitCandidates(refText string) []string {
	var (
		entries []string
		buf     []string
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		entry := collapse(strings.Join(buf, " "))
		if len(entry) > minEntryLen {
			entries = append(entries, entry)
		}
		buf = buf[:0]
	}

	for _, ln := range strings.Split(refText, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			flush()
			continue
		}
		if entryMarkRe.MatchString(ln) {
			flush()
		}
		buf = append(buf, ln)
	}
	flush()

	if len(entries) >= minEntries {
		return entries
	}

	var paras []string
	for _, p := range paragraphRe.Split(refText, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	if len(paras) <= len(entries) {
		return entries
	}
	entries = entries[:0]
	for _, p := range paras {
		if len(p) > minEntryLen {
			entries = append(entries, collapse(p))
		}
	}
	return entries
}

// References extracts the reference section of a PDF and its candidates.
func References(data []byte) (section string, candidates []string, err error) {
	full, err := ExtractText(data)
	if err != nil {
		return "", nil, err
	}
	section = ReferencesSection(full)
	return section, SplitCandidates(section), nil
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
