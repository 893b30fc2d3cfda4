package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Accepted textual forms for timestamps and calendar dates. The slash forms are
// day-first, as exported by the Telangana rain-gauge network.
var (
	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"02/01/2006 15:04",
		"02/01/2006 15:04:05",
	}
	dateLayouts = []string{
		"2006-01-02",
		"02/01/2006",
	}
)

// props reads loosely typed values out of a GeoJSON properties map or a
// decoded JSON object. Form posts deliver every value as a string, so numeric
// and boolean readers accept their string spellings too.
type props map[string]any

// lookup returns the first non-null value among keys.
func (p props) lookup(keys ...string) (any, string, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, k, true
		}
	}
	return nil, "", false
}

func (p props) str(keys ...string) (string, error) {
	v, key, ok := p.lookup(keys...)
	if !ok {
		return "", nil
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	default:
		return "", Errorf(KindValidation, "%s must be a string", key)
	}
}

func (p props) number(keys ...string) (*float64, error) {
	v, key, ok := p.lookup(keys...)
	if !ok {
		return nil, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, Errorf(KindValidation, "%s must be a number", key)
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, Errorf(KindValidation, "%s must be a number, got %q", key, n)
		}
		f = parsed
	default:
		return nil, Errorf(KindValidation, "%s must be a number", key)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, Errorf(KindValidation, "%s must be finite", key)
	}
	return &f, nil
}

func (p props) integer(keys ...string) (int, error) {
	f, err := p.number(keys...)
	if err != nil || f == nil {
		return 0, err
	}
	if *f != math.Trunc(*f) {
		_, key, _ := p.lookup(keys...)
		return 0, Errorf(KindValidation, "%s must be an integer", key)
	}
	return int(*f), nil
}

func (p props) boolean(keys ...string) (bool, error) {
	v, key, ok := p.lookup(keys...)
	if !ok {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "", "false", "0", "off", "no":
			return false, nil
		case "true", "1", "on", "yes":
			return true, nil
		}
	}
	return false, Errorf(KindValidation, "%s must be a boolean", key)
}

// timestamp parses an absolute time. Relative values such as "2h ago" carry
// no anchor and resolve to the current time.
func (p props) timestamp(keys ...string) (time.Time, error) {
	s, err := p.str(keys...)
	if err != nil {
		return time.Time{}, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if strings.Contains(strings.ToLower(s), "ago") {
		return clock.Now().UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, Errorf(KindValidation, "unrecognised timestamp %q", s)
}

// optionalTime is timestamp for nullable station fields: unparseable values become nil.
func (p props) optionalTime(keys ...string) *time.Time {
	t, err := p.timestamp(keys...)
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

// optionalDate parses a calendar date, ignoring any trailing time component.
func (p props) optionalDate(keys ...string) *time.Time {
	s, err := p.str(keys...)
	if err != nil {
		return nil
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, fields[0]); err == nil {
			return &t
		}
	}
	// Full timestamps such as "2024-07-01T00:00:00Z" are truncated to their date.
	if t, err := time.Parse(time.RFC3339, fields[0]); err == nil {
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	return nil
}
