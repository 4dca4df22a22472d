// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.
// Copyright 2024 WJQSERVER. All rights reserved.
// All rights reserved by WJQSERVER, related rights can be exercised by the infinite-iroha organization.
package dav

import (
	"errors"
	"strings"
	"time"
)

// ErrMalformedDate is returned when a header value is not a valid
// HTTP-date in any of the three forms RFC 7231 §7.1.1.1 permits.
var ErrMalformedDate = errors.New("dav: malformed HTTP-date")

// asctimeNoPad is asctime's single-digit-day variant ("Sun Nov  6 ...").
const asctimeNoPad = "Mon Jan _2 15:04:05 2006"

// ParseHTTPDate parses s under the three permitted HTTP-date formats,
// normalizing the result to UTC with whole-second precision
// (sub-second components are truncated, per spec.md §4.1/§8). Two-digit
// years (RFC 850 form) are resolved with a 50-year rolling window
// centered on the current year.
func ParseHTTPDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC1123, time.ANSIC, asctimeNoPad} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	if t, ok := parseRFC850(s); ok {
		return t.UTC().Truncate(time.Second), nil
	}
	return time.Time{}, ErrMalformedDate
}

// parseRFC850 parses the obsolete "Weekday, DD-Mon-YY HH:MM:SS GMT"
// format and resolves its two-digit year with a rolling window.
func parseRFC850(s string) (time.Time, bool) {
	const layout = "Monday, 02-Jan-06 15:04:05 MST"
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return rollYear(t), true
}

// rollYear re-anchors a two-digit year parsed as 19xx/20xx (Go's
// default) onto a 50-year window centered on the current year: if the
// parsed year is more than 50 years in the future relative to now, it
// is assumed to refer to the previous century, and vice versa.
func rollYear(t time.Time) time.Time {
	now := time.Now().UTC()
	for t.Year()-now.Year() > 50 {
		t = t.AddDate(-100, 0, 0)
	}
	for t.Year()-now.Year() < -50 {
		t = t.AddDate(100, 0, 0)
	}
	return t
}

// FormatHTTPDate formats t per RFC 7231 §7.1.1.2 (the IMF-fixdate form
// used in outgoing Last-Modified/Date headers).
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("Mon, 02 Jan 2006 15:04:05 GMT")
}
