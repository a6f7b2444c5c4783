// Copyright (c) Dirid, Inc.
// Licensed under the MIT license.

// Package time provides for custom types to translate time from JSON and other formats
// into time.Time objects.
package time

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unix provides a type that can marshal and unmarshal a string or number
// representation of the unix epoch into a time.Time object. Caches written by
// other implementations of the shared format serialize these fields either
// way, so both must be accepted on read.
type Unix struct {
	T time.Time
}

// MarshalJSON implements encoding/json.MarshalJSON().
func (u Unix) MarshalJSON() ([]byte, error) {
	if u.T.IsZero() {
		return []byte(""), nil
	}
	return []byte(fmt.Sprintf("%q", strconv.FormatInt(u.T.Unix(), 10))), nil
}

// UnmarshalJSON implements encoding/json.UnmarshalJSON().
func (u *Unix) UnmarshalJSON(b []byte) error {
	i, err := strconv.ParseInt(strings.Trim(string(b), `"`), 10, 64)
	if err != nil {
		return fmt.Errorf("unix time(%s) could not be converted from string to int: %w", string(b), err)
	}
	u.T = time.Unix(i, 0)
	return nil
}

// DurationTime provides a type that can unmarshal a duration in seconds from
// now, as returned in expires_in fields, into an absolute time.Time. A
// 10-digit value is treated as an absolute unix timestamp instead, which some
// token services return in legacy expires_on fields.
type DurationTime struct {
	T time.Time
}

// MarshalJSON implements encoding/json.MarshalJSON().
func (d DurationTime) MarshalJSON() ([]byte, error) {
	if d.T.IsZero() {
		return []byte(""), nil
	}
	return []byte(fmt.Sprintf("%d", int64(time.Until(d.T).Seconds()))), nil
}

// UnmarshalJSON implements encoding/json.UnmarshalJSON().
func (d *DurationTime) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)

	if len(str) == 10 {
		if unix, err := strconv.ParseInt(str, 10, 64); err == nil {
			d.T = time.Unix(unix, 0)
			return nil
		}
	}

	i, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("duration(%s) could not be converted from string to int: %w", string(b), err)
	}
	d.T = time.Now().Add(time.Duration(i) * time.Second)
	return nil
}
