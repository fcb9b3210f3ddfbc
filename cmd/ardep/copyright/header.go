// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package copyright

import (
	"strings"
	"time"
)

const (
	DefaultCompany = "Frickly Systems GmbH"
	DefaultLicense = "Apache-2.0"
)

// Options control how a header is normalized.
type Options struct {
	// Companies are the holders counted as the company. A header naming
	// none of them gets a notice for the first one.
	Companies []string
	// License is the SPDX identifier every header carries. An existing
	// identifier is replaced.
	License string
	// Style is used for the company notice when no existing holder line
	// suggests one. It also applies to rewritten notices when
	// UpdateCopyrights is set.
	Style Style
	// UpdateCopyrights re-renders the company's own notices with the
	// current year.
	UpdateCopyrights bool
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	var companies []string
	for _, c := range o.Companies {
		if c = strings.TrimSpace(c); c != "" {
			companies = append(companies, c)
		}
	}
	if len(companies) == 0 {
		companies = []string{DefaultCompany}
	}
	o.Companies = companies
	if o.License == "" {
		o.License = DefaultLicense
	}
	if o.Style == StyleUnset {
		o.Style = StyleSPDXYear
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Header is the text of a file header with the comment markers removed.
type Header struct {
	opts  Options
	lines []string
}

func NewHeader(opts Options) *Header {
	return &Header{opts: opts.withDefaults()}
}

func (h *Header) AddLines(lines ...string) {
	for _, l := range lines {
		h.lines = append(h.lines, strings.TrimRight(l, "\r\n"))
	}
}

func (h *Header) HasLicense() bool {
	for _, l := range h.lines {
		if IsLicenseLine(l) {
			return true
		}
	}
	return false
}

func (h *Header) HasCopyright() bool {
	for _, l := range h.lines {
		if IsHolderLine(l) {
			return true
		}
	}
	return false
}

// Format returns the normalized header: holder lines (with the company
// added if missing), the license line, and any remaining text below it,
// separated by single blank entries. The second result reports whether the
// normalized header differs from the input.
func (h *Header) Format() ([]string, bool) {
	var holders, other []string

	for _, entry := range h.lines {
		stripped := strings.TrimSpace(entry)
		switch {
		case stripped == "":
			other = append(other, "")
		case IsLicenseLine(stripped):
			// Replaced by the configured identifier below.
		case IsHolderLine(stripped):
			holders = append(holders, stripped)
		default:
			other = append(other, stripped)
		}
	}

	holders = h.ensureCompany(holders)
	license := License{Identifier: h.opts.License}.String()

	var result []string
	result = append(result, holders...)
	if len(result) > 0 {
		result = append(result, "")
	}
	result = append(result, license)

	if cleaned := trimBlankEdges(other); len(cleaned) > 0 {
		result = append(result, "")
		result = append(result, cleaned...)
	}

	result = squashBlanks(result)
	if len(result) > 0 && result[len(result)-1] == "" {
		result = result[:len(result)-1]
	}

	return result, !equalLines(result, h.lines)
}

func (h *Header) ensureCompany(holders []string) []string {
	year := h.opts.Now().Year()

	found := false
	for i, holder := range holders {
		if !h.namesCompany(holder) {
			continue
		}
		found = true
		if !h.opts.UpdateCopyrights {
			continue
		}
		n, err := ParseNotice(holder)
		if err != nil {
			continue
		}
		n.Year, n.Years = year, ""
		holders[i] = n.Format(h.opts.Style)
	}
	if found {
		return holders
	}

	style := h.opts.Style
	for _, holder := range holders {
		if s := noticeStyle(holder); s != StyleUnset {
			style = s
			break
		}
	}
	notice := Notice{Holder: h.opts.Companies[0], Year: year}
	return append(holders, notice.Format(style))
}

func (h *Header) namesCompany(holder string) bool {
	for _, company := range h.opts.Companies {
		if strings.Contains(holder, company) {
			return true
		}
	}
	return false
}

func trimBlankEdges(entries []string) []string {
	start, end := 0, len(entries)
	for start < end && strings.TrimSpace(entries[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(entries[end-1]) == "" {
		end--
	}
	return entries[start:end]
}

func squashBlanks(entries []string) []string {
	var squashed []string
	previousBlank := false
	for _, entry := range entries {
		blank := strings.TrimSpace(entry) == ""
		if blank && previousBlank {
			continue
		}
		if blank {
			entry = ""
		}
		squashed = append(squashed, entry)
		previousBlank = blank
	}
	return squashed
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
