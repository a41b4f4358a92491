package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the format of every normalized timestamp.
const TimeLayout = "2006-01-02T15:04:05.000Z"

var inputTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func decodeValue(raw json.RawMessage) (interface{}, error) {
	if isNull(raw) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return map[string]interface{}{}, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return m, nil
}

// listOf returns the elements under the first present key, the value itself
// when it is an array, or a single-element list when the value is an object
// that has one of the marker fields.
func listOf(v interface{}, listKeys []string, markers []string) ([]map[string]interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return objects(t)
	case map[string]interface{}:
		if inner, ok := pick(t, listKeys...); ok {
			return listOf(inner, nil, nil)
		}
		if _, ok := pick(t, markers...); ok {
			return []map[string]interface{}{t}, nil
		}
		if len(t) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("object has none of %v", listKeys)
	}
	return nil, fmt.Errorf("expected list, got %T", v)
}

func objects(items []interface{}) ([]map[string]interface{}, error) {
	res := make([]map[string]interface{}, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("element %d: expected object, got %T", i, it)
		}
		res = append(res, m)
	}
	return res, nil
}

func pick(m map[string]interface{}, names ...string) (interface{}, bool) {
	for _, n := range names {
		if v, ok := m[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func pickString(m map[string]interface{}, names ...string) string {
	v, _ := pick(m, names...)
	return stringOf(v)
}

func pickTime(m map[string]interface{}, names ...string) string {
	v, _ := pick(m, names...)
	return timeOf(v)
}

func pickBool(m map[string]interface{}, names ...string) (bool, bool) {
	v, ok := pick(m, names...)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b && err == nil, true
	case json.Number:
		return t.String() != "0", true
	}
	return false, true
}

// stringOf renders scalars as strings. Numbers keep the digits they were sent
// with.
func stringOf(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// timeOf renders a timestamp as TimeLayout in UTC. Numbers are unix
// milliseconds. Strings that cannot be parsed are returned unchanged.
func timeOf(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case json.Number:
		return fromMillis(t.String())
	case float64:
		return time.UnixMilli(int64(t)).UTC().Format(TimeLayout)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return ""
		}
		for _, l := range inputTimeLayouts {
			if ts, err := time.Parse(l, s); err == nil {
				return ts.UTC().Format(TimeLayout)
			}
		}
		if out := fromMillis(s); out != s {
			return out
		}
		return t
	}
	return stringOf(v)
}

func fromMillis(s string) string {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC().Format(TimeLayout)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(f)).UTC().Format(TimeLayout)
	}
	return s
}
