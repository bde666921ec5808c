package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"finboard/internal/core"
)

// ParseTimeFrameParam reads the "frame" value. ok is false when the value
// is absent or unknown, in which case the current time frame stays.
func ParseTimeFrameParam(form url.Values) (tf core.TimeFrame, ok bool) {
	v := strings.TrimSpace(form.Get("frame"))
	if v == "" {
		return core.All, false
	}
	tf, err := core.ParseTimeFrame(v)
	if err != nil {
		return core.All, false
	}
	return tf, true
}

// ParseCriteria reads the filter drawer fields. Blank or malformed amounts
// leave that bound unset.
func ParseCriteria(form url.Values) core.FilterCriteria {
	return core.CriteriaFromInput(
		sanitizeInput(form.Get("category")),
		sanitizeInput(form.Get("min")),
		sanitizeInput(form.Get("max")),
	)
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// sanitizeInput trims and removes control characters other than tab and
// line breaks.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// maxBodyBytes bounds JSON and form bodies read by RequestBodyParser.
const maxBodyBytes = 64 << 10

// RequestBodyParser reads a small request body sent either as a JSON object
// (fetch calls from link.js) or as a urlencoded form (htmx).
type RequestBodyParser struct {
	r      *http.Request
	fields map[string]any
	form   url.Values
	parsed bool
	err    error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	return &RequestBodyParser{r: r}
}

// Parse reads the body once. A JSON content type, or a body starting with
// '{', is decoded as an object; anything else as a form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	body, err := io.ReadAll(io.LimitReader(p.r.Body, maxBodyBytes+1))
	switch {
	case err != nil:
		p.err = err
		return err
	case len(body) > maxBodyBytes:
		p.err = errors.New("request body too large")
		return p.err
	}

	trimmed := bytes.TrimSpace(body)
	if strings.HasPrefix(p.r.Header.Get("Content-Type"), "application/json") || bytes.HasPrefix(trimmed, []byte("{")) {
		if len(trimmed) == 0 {
			p.fields = map[string]any{}
			return nil
		}
		p.err = json.Unmarshal(trimmed, &p.fields)
		return p.err
	}
	p.form, p.err = url.ParseQuery(string(body))
	return p.err
}

// Get returns the sanitized value of key, or "" when it is absent or not a
// scalar.
func (p *RequestBodyParser) Get(key string) string {
	if p.fields != nil {
		return sanitizeInput(scalarString(p.fields[key]))
	}
	return sanitizeInput(p.form.Get(key))
}

// IsJSON reports whether the body was decoded as JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.fields != nil
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseFormOrFail parses the request form, returning a 400 response to
// send when that fails and nil otherwise.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
