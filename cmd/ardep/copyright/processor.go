// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package copyright

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Processor rewrites the header of a single file.
type Processor interface {
	// Process returns the rewritten lines and whether they differ from
	// the input. Lines keep their terminators.
	Process(lines []string) ([]string, bool)
}

// ProcessorFor returns the processor for the file at path, or nil if the
// file type is not handled.
func ProcessorFor(path string, opts Options) Processor {
	name := filepath.Base(path)
	switch {
	case name == "CMakeLists.txt", strings.HasPrefix(name, "Kconfig"):
		return &HashProcessor{Options: opts}
	}

	switch filepath.Ext(name) {
	case ".c", ".h", ".cpp", ".hpp":
		return &CProcessor{Options: opts}
	case ".dts", ".dtsi", ".overlay":
		return &DevicetreeProcessor{Options: opts}
	case ".py":
		return &HashProcessor{Options: opts, Python: true}
	case ".yaml", ".yml":
		return &HashProcessor{Options: opts}
	}
	return nil
}

func rewrite(opts Options, content []string) []string {
	h := NewHeader(opts)
	h.AddLines(content...)
	lines, _ := h.Format()
	return lines
}

// CProcessor handles C and C++ sources and headers.
type CProcessor struct {
	Options
}

func (p *CProcessor) Process(original []string) ([]string, bool) {
	working := original

	shebang := ""
	if len(working) > 0 && strings.HasPrefix(working[0], "#!") {
		shebang = ensureNewline(working[0])
		working = working[1:]
	}

	working = consumeLegacyHashHeader(working)

	style := detectCStyle(working)
	header, rest := splitHeader(working, style)
	rest = consumeLegacyHashHeader(rest)
	rest, _ = stripRedundantHeader(rest, blockComment, lineComment)

	content := rewrite(p.Options, headerContent(header, style))
	if shebang != "" && style == blockComment {
		content = append([]string{""}, content...)
	}
	rendered := renderHeader(content, style)

	var result []string
	if shebang != "" {
		result = append(result, shebang)
		if style == lineComment {
			result = append(result, "//\n")
		}
	}
	result = append(result, rendered...)
	if gap := cGapLine(rest, style); gap != "" {
		result = append(result, gap)
	}
	result = append(result, rest...)
	result = withTrailingNewline(result)

	return result, !equalLines(result, original)
}

func cGapLine(rest []string, style commentStyle) string {
	if len(rest) == 0 || isBlank(rest[0]) {
		return ""
	}
	first := strings.TrimLeft(rest[0], " \t")
	if style == lineComment && (strings.HasPrefix(first, "//") || strings.HasPrefix(first, "/*")) {
		return "//\n"
	}
	return "\n"
}

// DevicetreeProcessor handles devicetree sources and overlays. The header
// ends at the first preprocessor directive or node.
type DevicetreeProcessor struct {
	Options
}

func (p *DevicetreeProcessor) Process(original []string) ([]string, bool) {
	working := trimLeadingBlank(original)

	style := blockComment
	var header, rest []string
	if len(working) > 0 {
		first := strings.TrimLeft(working[0], " \t")
		switch {
		case strings.HasPrefix(first, "//"):
			style = lineComment
			header, rest = splitHeader(working, style)
		case strings.HasPrefix(first, "/*"):
			header, rest = splitHeader(working, style)
		default:
			rest = working
		}
	}

	// Only look past blank lines for a redundant header; otherwise keep the
	// spacing below the header as it was.
	if trimmed, stripped := stripRedundantHeader(trimLeadingBlank(rest), blockComment, lineComment); stripped {
		rest = trimmed
	}

	result := renderHeader(rewrite(p.Options, headerContent(header, style)), style)
	if len(rest) > 0 && !isBlank(rest[0]) {
		result = append(result, "\n")
	}
	result = append(result, rest...)
	result = withTrailingNewline(result)

	return result, !equalLines(result, original)
}

var codingCookie = regexp.MustCompile(`^[ \t\f]*#.*?coding[:=][ \t]*[-\w.]+`)

const (
	scriptBlockStart = "# /// script"
	scriptBlockEnd   = "# ///"
)

// HashProcessor handles files commented with '#': CMake, Kconfig, YAML and
// Python. For Python files a shebang, an encoding declaration and an inline
// script metadata block stay above the header.
type HashProcessor struct {
	Options
	Python bool
}

func (p *HashProcessor) Process(original []string) ([]string, bool) {
	working := original

	var preamble []string
	if len(working) > 0 && strings.HasPrefix(working[0], "#!") {
		preamble = append(preamble, ensureNewline(working[0]))
		working = working[1:]
	}
	if p.Python {
		if len(working) > 0 && len(preamble) < 2 && codingCookie.MatchString(working[0]) {
			preamble = append(preamble, ensureNewline(working[0]))
			working = working[1:]
		}
		working, preamble = splitScriptBlock(working, preamble)
	}

	working = trimLeadingBlank(working)
	header, rest := splitHeader(working, hashComment)
	rest = trimLeadingBlank(rest)
	rest, _ = stripRedundantHeader(rest, hashComment)

	var result []string
	if len(preamble) > 0 {
		result = append(result, preamble...)
		result = append(result, "#\n")
	}
	result = append(result, renderHeader(rewrite(p.Options, headerContent(header, hashComment)), hashComment)...)
	if len(rest) > 0 {
		result = append(result, "\n")
	}
	result = append(result, rest...)
	result = withTrailingNewline(result)

	return result, !equalLines(result, original)
}

// splitScriptBlock moves a leading "# /// script" metadata block into the
// preamble.
func splitScriptBlock(lines, preamble []string) ([]string, []string) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != scriptBlockStart {
		return lines, preamble
	}
	for idx := 1; idx < len(lines); idx++ {
		if strings.TrimSpace(lines[idx]) == scriptBlockEnd {
			for _, l := range lines[:idx+1] {
				preamble = append(preamble, ensureNewline(l))
			}
			return lines[idx+1:], preamble
		}
	}
	return lines, preamble
}
