package copyright

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseStyle(t *testing.T) {
	tests := []struct {
		in    string
		style Style
		err   bool
	}{
		{in: "simple", style: StyleSimple},
		{in: "year", style: StyleYear},
		{in: "spdx", style: StyleSPDX},
		{in: "spdx-year", style: StyleSPDXYear},
		{in: "SIMPLE", style: StyleSimple},
		{in: "Year", style: StyleYear},
		{in: "SPDX-YEAR", style: StyleSPDXYear},
		{in: "", style: StyleUnset},
		{in: "invalid", err: true},
	}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			style, err := ParseStyle(test.in)
			if test.err {
				assert.ErrorIs(t, err, ErrInvalidStyle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.style, style)
		})
	}
}

func Test_ParseNotice(t *testing.T) {
	tests := []struct {
		in     string
		notice Notice
	}{
		{
			in:     "Copyright (C) MBition GmbH",
			notice: Notice{Holder: "MBition GmbH", Style: StyleSimple},
		},
		{
			in:     "Copyright (c) 2024 Frickly Systems GmbH",
			notice: Notice{Holder: "Frickly Systems GmbH", Year: 2024, Years: "2024", Style: StyleYear, LowercaseC: true},
		},
		{
			in:     "SPDX-FileCopyrightText: Copyright (C) 2021-2024 Frickly Systems GmbH",
			notice: Notice{Holder: "Frickly Systems GmbH", Year: 2021, Years: "2021-2024", Style: StyleSPDXYear},
		},
		{
			in:     "  SPDX-FileCopyrightText: Copyright (C) Frickly Systems GmbH  ",
			notice: Notice{Holder: "Frickly Systems GmbH", Style: StyleSPDX},
		},
	}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			n, err := ParseNotice(test.in)
			require.NoError(t, err)
			assert.Equal(t, test.notice, n)
		})
	}

	_, err := ParseNotice("Project Foo")
	assert.Error(t, err)
}

func Test_NoticeFormat(t *testing.T) {
	n := Notice{Holder: "Frickly Systems GmbH", Year: 2025}
	assert.Equal(t, "Copyright (C) Frickly Systems GmbH", n.Format(StyleSimple))
	assert.Equal(t, "Copyright (C) 2025 Frickly Systems GmbH", n.Format(StyleYear))
	assert.Equal(t, "SPDX-FileCopyrightText: Copyright (C) Frickly Systems GmbH", n.Format(StyleSPDX))
	assert.Equal(t, "SPDX-FileCopyrightText: Copyright (C) 2025 Frickly Systems GmbH", n.Format(StyleSPDXYear))

	noYear := Notice{Holder: "Foo", LowercaseC: true}
	assert.Equal(t, "Copyright (c) Foo", noYear.Format(StyleYear))
	assert.Equal(t, "SPDX-FileCopyrightText: Copyright (c) Foo", noYear.Format(StyleSPDXYear))

	parsed, err := ParseNotice("Copyright (c) 2020-2023 Foo")
	require.NoError(t, err)
	assert.Equal(t, "Copyright (c) 2020-2023 Foo", parsed.Format(StyleUnset))
}

func Test_LicenseString(t *testing.T) {
	assert.Equal(t, "SPDX-License-Identifier: Apache-2.0", License{Identifier: "Apache-2.0"}.String())
	assert.True(t, IsLicenseLine(" * SPDX-License-Identifier: MIT"))
	assert.False(t, IsLicenseLine("License: MIT"))
}
