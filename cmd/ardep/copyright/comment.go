// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package copyright

import (
	"strings"
)

// commentStyle is the comment dialect a header is written in.
type commentStyle int

const (
	blockComment commentStyle = iota
	lineComment
	hashComment
)

// styleScanLimit is how many lines are inspected to guess the comment style.
const styleScanLimit = 20

// SplitLines splits text into lines, keeping the line terminators.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func JoinLines(lines []string) string {
	return strings.Join(lines, "")
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func ensureNewline(line string) string {
	if strings.HasSuffix(line, "\n") {
		return line
	}
	return line + "\n"
}

func trimLeadingBlank(lines []string) []string {
	for len(lines) > 0 && isBlank(lines[0]) {
		lines = lines[1:]
	}
	return lines
}

func withTrailingNewline(lines []string) []string {
	if n := len(lines); n > 0 {
		lines[n-1] = ensureNewline(lines[n-1])
	}
	return lines
}

// detectCStyle guesses whether a C-family header uses // or /* */ comments.
func detectCStyle(lines []string) commentStyle {
	for i, line := range lines {
		if i >= styleScanLimit {
			break
		}
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if strings.HasPrefix(stripped, "//") {
			return lineComment
		}
		if strings.HasPrefix(stripped, "/*") || strings.HasPrefix(stripped, "*") {
			return blockComment
		}
	}
	return blockComment
}

// splitHeader separates the leading comment in style from the rest of the
// lines. A block comment that has code after its closing marker is not
// treated as a header.
func splitHeader(lines []string, style commentStyle) (header, rest []string) {
	if len(lines) == 0 {
		return nil, nil
	}

	switch style {
	case lineComment, hashComment:
		marker := "//"
		if style == hashComment {
			marker = "#"
		}
		idx := 0
		for idx < len(lines) && strings.HasPrefix(strings.TrimLeft(lines[idx], " \t"), marker) {
			idx++
		}
		return lines[:idx], lines[idx:]
	}

	if !strings.HasPrefix(strings.TrimLeft(lines[0], " \t"), "/*") {
		return nil, lines
	}
	for idx, line := range lines {
		// The opening "/*" itself may not close the comment.
		search := line
		if idx == 0 {
			search = strings.TrimLeft(line, " \t")[2:]
		}
		end := strings.Index(search, "*/")
		if end < 0 {
			continue
		}
		if strings.TrimSpace(search[end+2:]) != "" {
			return nil, lines
		}
		return lines[:idx+1], lines[idx+1:]
	}
	// Unterminated comment: leave the file alone.
	return nil, lines
}

// headerContent removes the comment markers from header lines.
func headerContent(header []string, style commentStyle) []string {
	var content []string
	switch style {
	case lineComment, hashComment:
		marker := "//"
		if style == hashComment {
			marker = "#"
		}
		for _, line := range header {
			stripped := strings.TrimLeft(line, " \t")
			if !strings.HasPrefix(stripped, marker) {
				continue
			}
			text := strings.TrimPrefix(stripped[len(marker):], " ")
			content = append(content, strings.TrimRight(text, "\r\n"))
		}
		return content
	}

	for idx, line := range header {
		stripped := strings.TrimRight(line, "\r\n")
		if idx == 0 {
			after := ""
			if i := strings.Index(stripped, "/*"); i >= 0 {
				after = stripped[i+2:]
			}
			after = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(after), "*/"))
			if after != "" {
				content = append(content, after)
			}
			continue
		}
		if i := strings.Index(stripped, "*/"); i >= 0 {
			before := strings.TrimSpace(stripped[:i])
			before = strings.TrimLeft(strings.TrimPrefix(before, "*"), " \t")
			if before != "" {
				content = append(content, before)
			}
			break
		}
		stripped = strings.TrimSpace(stripped)
		if strings.HasPrefix(stripped, "*") {
			stripped = strings.TrimLeft(stripped[1:], " \t")
		}
		content = append(content, stripped)
	}
	return content
}

func renderHeader(content []string, style commentStyle) []string {
	var lines []string
	switch style {
	case lineComment, hashComment:
		marker := "//"
		if style == hashComment {
			marker = "#"
		}
		for _, entry := range content {
			if text := strings.TrimRight(entry, " \t"); text != "" {
				lines = append(lines, marker+" "+text+"\n")
			} else {
				lines = append(lines, marker+"\n")
			}
		}
		return lines
	}

	lines = append(lines, "/*\n")
	for _, entry := range content {
		if text := strings.TrimRight(entry, " \t"); text != "" {
			lines = append(lines, " * "+text+"\n")
		} else {
			lines = append(lines, " *\n")
		}
	}
	return append(lines, " */\n")
}

// isRedundantHeader reports whether a header holds nothing but license and
// copyright lines.
func isRedundantHeader(header []string, style commentStyle) bool {
	for _, entry := range headerContent(header, style) {
		stripped := strings.TrimSpace(entry)
		if stripped == "" || IsLicenseLine(stripped) || IsHolderLine(stripped) {
			continue
		}
		return false
	}
	return true
}

// stripRedundantHeader drops a second comment block directly following the
// rewritten header if it only repeats license or copyright information.
func stripRedundantHeader(lines []string, styles ...commentStyle) ([]string, bool) {
	if len(lines) == 0 {
		return lines, false
	}
	stripped := strings.TrimLeft(lines[0], " \t")
	for _, style := range styles {
		var prefix string
		switch style {
		case blockComment:
			prefix = "/*"
		case lineComment:
			prefix = "//"
		case hashComment:
			prefix = "#"
		}
		if !strings.HasPrefix(stripped, prefix) {
			continue
		}
		header, remainder := splitHeader(lines, style)
		if len(header) > 0 && isRedundantHeader(header, style) {
			return trimLeadingBlank(remainder), true
		}
		return lines, false
	}
	return lines, false
}

// consumeLegacyHashHeader drops leading blank lines and '#'-style SPDX lines
// left over from earlier tooling.
func consumeLegacyHashHeader(lines []string) []string {
	for len(lines) > 0 {
		stripped := strings.TrimSpace(lines[0])
		switch {
		case stripped == "", stripped == "#",
			strings.HasPrefix(stripped, "# "+licensePrefix),
			strings.HasPrefix(stripped, "# "+spdxCopyrightPrefix):
			lines = lines[1:]
		default:
			return lines
		}
	}
	return lines
}
