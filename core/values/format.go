/*
SPDX-License-Identifier: Apache-2.0

Copyright 2024 The Taxinomia Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package values

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Standard date layouts used by the short format names.
const (
	DateLayout     = "2006-01-02"
	LongDateLayout = "Monday, January 2, 2006"
	DateTimeLayout = "2006-01-02 15:04:05"
	TimeLayout     = "15:04"
	LongTimeLayout = "15:04:05"
)

// Culture carries the localization used to produce display strings.
// It is passed explicitly to everything that formats values.
type Culture struct {
	tag     language.Tag
	printer *message.Printer
}

// NewCulture creates a culture for the given language.
func NewCulture(tag language.Tag) *Culture {
	return &Culture{tag: tag, printer: message.NewPrinter(tag)}
}

// ParseCulture creates a culture from a BCP 47 tag such as "en-US" or "de".
func ParseCulture(s string) (*Culture, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parsing culture %q: %w", s, err)
	}
	return NewCulture(tag), nil
}

// Invariant is the default culture (American English).
var Invariant = NewCulture(language.AmericanEnglish)

// Tag returns the culture's language tag.
func (c *Culture) Tag() language.Tag {
	return c.tag
}

// Format converts a value to its display string.
//
// Number formats are a letter followed by an optional precision:
// n (grouped), f (fixed), p (percent), d (integer, precision is the minimum
// digit count) and g (general). Date formats are the short names d, D, t, T,
// g or any Go layout. Strings are returned unchanged and nil becomes "".
func (c *Culture) Format(v any, format string) string {
	if c == nil {
		c = Invariant
	}
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(DateLayoutFor(format, x))
	case fmt.Stringer:
		if _, ok := numeric(v); !ok {
			return x.String()
		}
	}
	if f, ok := numeric(v); ok {
		return c.formatNumber(f, format)
	}
	return fmt.Sprint(v)
}

func (c *Culture) formatNumber(f float64, format string) string {
	kind, prec := splitFormat(format)
	switch kind {
	case 'n':
		if prec < 0 {
			prec = 2
		}
		return c.printer.Sprint(number.Decimal(f, number.MinFractionDigits(prec), number.MaxFractionDigits(prec)))
	case 'f':
		if prec < 0 {
			prec = 2
		}
		return c.printer.Sprint(number.Decimal(f, number.NoSeparator(), number.MinFractionDigits(prec), number.MaxFractionDigits(prec)))
	case 'p':
		if prec < 0 {
			prec = 2
		}
		return c.printer.Sprint(number.Percent(f, number.MinFractionDigits(prec), number.MaxFractionDigits(prec)))
	case 'd':
		opts := []number.Option{number.NoSeparator(), number.MaxFractionDigits(0)}
		if prec > 0 {
			opts = append(opts, number.MinIntegerDigits(prec))
		}
		return c.printer.Sprint(number.Decimal(f, opts...))
	}
	// General format keeps full precision so that distinct numbers never
	// share a display string.
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// splitFormat returns the lowercase format letter and precision (-1 if none).
func splitFormat(format string) (byte, int) {
	if format == "" {
		return 'g', -1
	}
	kind := format[0] | 0x20
	if len(format) == 1 {
		return kind, -1
	}
	prec, err := strconv.Atoi(format[1:])
	if err != nil {
		return 0, -1
	}
	return kind, prec
}

// DateLayoutFor maps a format to a Go time layout. An empty format picks a
// date-only layout for values without a clock component.
func DateLayoutFor(format string, t time.Time) string {
	switch format {
	case "":
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return DateLayout
		}
		return DateTimeLayout
	case "d":
		return DateLayout
	case "D":
		return LongDateLayout
	case "t":
		return TimeLayout
	case "T":
		return LongTimeLayout
	case "g", "G":
		return DateTimeLayout
	}
	return format
}

// ParseDate parses a display string produced with the given date format.
func (c *Culture) ParseDate(s, format string) (time.Time, bool) {
	layout := DateLayoutFor(format, time.Time{})
	if format == "" {
		layout = DateLayout
		if strings.Contains(s, ":") {
			layout = DateTimeLayout
		}
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
