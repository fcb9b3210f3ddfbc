// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package copyright

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Style is the shape of a copyright notice line.
type Style int

const (
	StyleUnset Style = iota
	// StyleSimple is "Copyright (C) Holder".
	StyleSimple
	// StyleYear is "Copyright (C) 2025 Holder".
	StyleYear
	// StyleSPDX is "SPDX-FileCopyrightText: Copyright (C) Holder".
	StyleSPDX
	// StyleSPDXYear is "SPDX-FileCopyrightText: Copyright (C) 2025 Holder".
	StyleSPDXYear
)

var ErrInvalidStyle = errors.New("invalid copyright style")

var styleNames = map[Style]string{
	StyleSimple:   "simple",
	StyleYear:     "year",
	StyleSPDX:     "spdx",
	StyleSPDXYear: "spdx-year",
}

// Styles lists the accepted style names.
func Styles() []string {
	return []string{"simple", "year", "spdx", "spdx-year"}
}

func (s Style) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return "unset"
}

// ParseStyle parses a style name case-insensitively. The empty string yields
// StyleUnset.
func ParseStyle(str string) (Style, error) {
	if str == "" {
		return StyleUnset, nil
	}
	key := strings.ToLower(str)
	for style, name := range styleNames {
		if name == key {
			return style, nil
		}
	}
	return StyleUnset, fmt.Errorf("%w: %s", ErrInvalidStyle, str)
}

const (
	spdxCopyrightPrefix = "SPDX-FileCopyrightText:"
	licensePrefix       = "SPDX-License-Identifier:"
	copyrightWord       = "copyright"
)

var (
	yearToken  = regexp.MustCompile(`^[0-9]{4}$`)
	yearsToken = regexp.MustCompile(`^[0-9]{4}(-[0-9]{4})?,?$`)
)

// Notice is a parsed copyright line.
type Notice struct {
	Holder string
	// Year is the first year of the notice, 0 if there is none.
	Year int
	// Years is the year token as written, e.g. "2020-2024".
	Years      string
	Style      Style
	LowercaseC bool
}

// IsHolderLine reports whether line is a copyright notice.
func IsHolderLine(line string) bool {
	return noticeStyle(strings.TrimSpace(line)) != StyleUnset
}

// IsLicenseLine reports whether line carries an SPDX license identifier.
func IsLicenseLine(line string) bool {
	return strings.Contains(line, licensePrefix)
}

func noticeStyle(text string) Style {
	switch {
	case strings.HasPrefix(text, spdxCopyrightPrefix):
		if containsYear(text) {
			return StyleSPDXYear
		}
		return StyleSPDX
	case strings.HasPrefix(strings.ToLower(text), "copyright (c)"):
		if containsYear(text) {
			return StyleYear
		}
		return StyleSimple
	}
	return StyleUnset
}

func containsYear(text string) bool {
	for _, part := range strings.Fields(strings.ReplaceAll(text, "-", " ")) {
		if yearToken.MatchString(strings.TrimSuffix(part, ",")) {
			return true
		}
	}
	return false
}

// ParseNotice parses an SPDX-FileCopyrightText or "Copyright (C)" line.
func ParseNotice(line string) (Notice, error) {
	text := strings.TrimSpace(line)
	style := noticeStyle(text)
	if style == StyleUnset {
		return Notice{}, fmt.Errorf("invalid copyright line: %s", text)
	}

	content := text
	if strings.HasPrefix(content, spdxCopyrightPrefix) {
		content = strings.TrimSpace(strings.TrimPrefix(content, spdxCopyrightPrefix))
	}
	if strings.HasPrefix(strings.ToLower(content), copyrightWord) {
		content = strings.TrimSpace(content[len(copyrightWord):])
	}
	if strings.HasPrefix(strings.ToLower(content), "(c)") {
		content = strings.TrimSpace(content[len("(c)"):])
	}

	notice := Notice{
		Style:      style,
		LowercaseC: strings.Contains(text, "(c)") && !strings.Contains(text, "(C)"),
	}
	parts := strings.Fields(content)
	if len(parts) > 0 && yearsToken.MatchString(parts[0]) {
		notice.Years = strings.TrimSuffix(parts[0], ",")
		notice.Year, _ = strconv.Atoi(notice.Years[:4])
		parts = parts[1:]
	}
	notice.Holder = strings.Join(parts, " ")
	return notice, nil
}

func (n Notice) yearText() string {
	if n.Years != "" {
		return n.Years
	}
	if n.Year != 0 {
		return strconv.Itoa(n.Year)
	}
	return ""
}

// Format renders the notice in style. StyleUnset uses the notice's own style.
// Year styles fall back to their plain variant when there is no year.
func (n Notice) Format(style Style) string {
	if style == StyleUnset {
		style = n.Style
	}
	c := "(C)"
	if n.LowercaseC {
		c = "(c)"
	}
	year := n.yearText()

	switch {
	case style == StyleSimple || (style == StyleYear && year == ""):
		return fmt.Sprintf("Copyright %s %s", c, n.Holder)
	case style == StyleYear:
		return fmt.Sprintf("Copyright %s %s %s", c, year, n.Holder)
	case style == StyleSPDX || year == "":
		return fmt.Sprintf("%s Copyright %s %s", spdxCopyrightPrefix, c, n.Holder)
	default:
		return fmt.Sprintf("%s Copyright %s %s %s", spdxCopyrightPrefix, c, year, n.Holder)
	}
}

// License renders an SPDX-License-Identifier line.
type License struct {
	Identifier string
}

func (l License) String() string {
	return licensePrefix + " " + l.Identifier
}
