// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rootmanifest

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/casc/lib/cascerr"
)

// Locale is a bit mask of client languages.
type Locale uint32

const (
	LocaleEnUS Locale = 0x2
	LocaleKoKR Locale = 0x4
	LocaleFrFR Locale = 0x10
	LocaleDeDE Locale = 0x20
	LocaleZhCN Locale = 0x40
	LocaleEsES Locale = 0x80
	LocaleZhTW Locale = 0x100
	LocaleEnGB Locale = 0x200
	LocaleEnCN Locale = 0x400
	LocaleEnTW Locale = 0x800
	LocaleEsMX Locale = 0x1000
	LocaleRuRU Locale = 0x2000
	LocalePtBR Locale = 0x4000
	LocaleItIT Locale = 0x8000
	LocalePtPT Locale = 0x10000

	// LocaleAll accepts every group.
	LocaleAll Locale = 0xFFFFFFFF
)

var localeNames = map[string]Locale{
	"enus": LocaleEnUS,
	"kokr": LocaleKoKR,
	"frfr": LocaleFrFR,
	"dede": LocaleDeDE,
	"zhcn": LocaleZhCN,
	"eses": LocaleEsES,
	"zhtw": LocaleZhTW,
	"engb": LocaleEnGB,
	"encn": LocaleEnCN,
	"entw": LocaleEnTW,
	"esmx": LocaleEsMX,
	"ruru": LocaleRuRU,
	"ptbr": LocalePtBR,
	"itit": LocaleItIT,
	"ptpt": LocalePtPT,
	"all":  LocaleAll,
}

// ParseLocale maps a name such as "enUS" (any case) to its mask. An
// empty name yields LocaleAll.
func ParseLocale(name string) (Locale, error) {
	if name == "" {
		return LocaleAll, nil
	}
	locale, ok := localeNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown locale %q: %w", name, cascerr.ErrInvalidConfig)
	}
	return locale, nil
}

// ContentFlags describe a record group's platform and packaging.
type ContentFlags uint32

const (
	ContentHighRes       ContentFlags = 0x1
	ContentWindows       ContentFlags = 0x8
	ContentMacOS         ContentFlags = 0x10
	ContentAlternate     ContentFlags = 0x80
	ContentNoNameHash    ContentFlags = 0x10000000
	ContentNotCompressed ContentFlags = 0x80000000

	// ContentAllowedMask is the union of the flags seen in valid
	// manifests. Nonzero flags sharing no bit with it mean the group
	// header was misread.
	ContentAllowedMask = ContentHighRes | ContentWindows | ContentMacOS | ContentAlternate |
		0x20000 | 0x80000 | 0x100000 | 0x200000 | 0x400000 | 0x2000000 |
		ContentNotCompressed | ContentNoNameHash | 0x20000000
)
