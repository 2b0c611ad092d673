package fever

import (
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const maxFormMemory = 4 << 20

// params is the merged view of a request's query string and form body.
// Action selection arrives as boolean-presence flags in the query
// string (a flag with no value counts), but real clients are loose
// about where they put fields, so lookups consult both sides.
type params struct {
	query url.Values
	form  url.Values
}

// parseParams reads the request's query and body. Both common form
// encodings are accepted. The returned error means the body itself was
// unparseable, the one condition allowed a client-error status.
func parseParams(r *http.Request) (params, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return params{}, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return params{}, err
		}
	}
	return params{query: r.URL.Query(), form: r.PostForm}, nil
}

// has reports whether the key is present at all, in either encoding,
// regardless of value.
func (p params) has(key string) bool {
	_, inQuery := p.query[key]
	_, inForm := p.form[key]
	return inQuery || inForm
}

// value returns the first non-empty value for key, body first: write
// directives normally travel in the body, with the query string as a
// fallback for sloppy clients.
func (p params) value(key string) string {
	if v := p.form.Get(key); v != "" {
		return v
	}
	return p.query.Get(key)
}

// flagSet reports whether a boolean form flag is switched on.
func (p params) flagSet(key string) bool {
	v := strings.TrimSpace(strings.ToLower(p.value(key)))
	return v == "1" || v == "true"
}

func parseID(raw string) (int64, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// parsePositiveIDs parses a comma-separated id list, silently dropping
// malformed and non-positive tokens.
func parsePositiveIDs(raw string) []int64 {
	var ids []int64
	for _, token := range strings.Split(raw, ",") {
		if id, ok := parseID(token); ok && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// parseSignedIDs parses a comma-separated id list keeping negative
// values; group marks use sentinel ids below zero.
func parseSignedIDs(raw string) []int64 {
	var ids []int64
	for _, token := range strings.Split(raw, ",") {
		if id, ok := parseID(token); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
