package starblast

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// The directory and the status API are loosely typed: optional fields switch
// between strings, numbers, objects and null from one payload to the next.
// The types below read them with JavaScript truthiness so a single odd field
// never fails a whole document.

// looseString holds a JSON scalar as text. Falsy values (null, false, 0, "")
// and composite values decode to the empty string.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		*s = ""
	case data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case isNumberStart(data[0]):
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil || f == 0 {
			*s = ""
			return nil
		}
		*s = looseString(strconv.FormatFloat(f, 'f', -1, 64))
	case string(data) == "true":
		*s = "true"
	default:
		*s = ""
	}
	return nil
}

// looseNumber accepts a JSON number or a numeric string; anything else is 0.
type looseNumber float64

func (n *looseNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = string(bytes.TrimSpace([]byte(text)))
	} else if len(data) == 0 || !isNumberStart(data[0]) {
		*n = 0
		return nil
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		f = 0
	}
	*n = looseNumber(f)
	return nil
}

// truthy reports whether a raw JSON value is truthy under JavaScript rules.
func truthy(data []byte) bool {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0:
		return false
	case data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return true
		}
		return v != ""
	case isNumberStart(data[0]):
		f, err := strconv.ParseFloat(string(data), 64)
		return err == nil && f != 0
	}
	switch string(data) {
	case "null", "false":
		return false
	}
	return true
}

func isNumberStart(c byte) bool {
	return c == '-' || (c >= '0' && c <= '9')
}
