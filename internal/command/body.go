package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// BodyFormat names the strategy that produced a parameter mapping.
type BodyFormat string

const (
	FormatJSON     BodyFormat = "json"
	FormatKeyValue BodyFormat = "key-value"
)

// bodyParser is one attempt at reading a body. ok is false when the body is
// not in the parser's format.
type bodyParser struct {
	format BodyFormat
	parse  func(body string) (params Params, ok bool)
}

// bodyParsers are tried in order; the key-value parser accepts anything.
var bodyParsers = []bodyParser{
	{FormatJSON, parseJSONObject},
	{FormatKeyValue, parseKeyValue},
}

// ParseBody turns a message body into parameters. A body holding a JSON
// object is returned as that object; any other body is read line by line as
// "key: value" pairs, skipping lines that do not match.
func ParseBody(body string) (Params, BodyFormat) {
	for _, p := range bodyParsers {
		if params, ok := p.parse(body); ok {
			return params, p.format
		}
	}
	return Params{}, FormatKeyValue
}

func parseJSONObject(body string) (Params, bool) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var params Params
	if err := dec.Decode(&params); err != nil || params == nil {
		return nil, false
	}
	// Trailing data after the object means this is not a JSON body.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return params, true
}

var (
	lineBreakRegex = regexp.MustCompile(`\r\n|\r|\n`)
	keyValueRegex  = regexp.MustCompile(`^([\p{L}\p{N}_]+)\s*:\s*(.+)`)
)

func parseKeyValue(body string) (Params, bool) {
	params := Params{}
	for _, line := range lineBreakRegex.Split(body, -1) {
		m := keyValueRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		params[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
	}
	return params, true
}

// MarshalJSON keeps nil params encoding as an empty object.
func (p Params) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

// Encode renders p as a JSON object for handler payloads. Unlike
// json.Marshal it leaves <, > and & unescaped.
func (p Params) Encode() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(p)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
