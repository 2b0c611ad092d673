package fever

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParamsURLEncoded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fever?api&items&since_id=42",
		strings.NewReader("api_key=abc&mark=item"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p, err := parseParams(req)
	require.NoError(t, err)

	assert.True(t, p.has("api"))
	assert.True(t, p.has("items"))
	assert.True(t, p.has("mark"))
	assert.False(t, p.has("groups"))

	assert.Equal(t, "abc", p.value("api_key"))
	assert.Equal(t, "42", p.value("since_id"))
}

func TestParseParamsMultipart(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("api_key", "abc"))
	require.NoError(t, w.WriteField("unread_recently_read", "1"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/fever?api", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())

	p, err := parseParams(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", p.value("api_key"))
	assert.True(t, p.flagSet("unread_recently_read"))
}

func TestParseParamsBadMultipartBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fever?api",
		strings.NewReader("definitely not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")

	_, err := parseParams(req)
	assert.Error(t, err)
}

func TestValuePrefersBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fever?id=9",
		strings.NewReader("id=7"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p, err := parseParams(req)
	require.NoError(t, err)
	assert.Equal(t, "7", p.value("id"))
}

func TestFlagSet(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/fever",
		strings.NewReader("a=1&b=true&c=TRUE&d=0&e=yes&f="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	p, err := parseParams(req)
	require.NoError(t, err)

	assert.True(t, p.flagSet("a"))
	assert.True(t, p.flagSet("b"))
	assert.True(t, p.flagSet("c"))
	assert.False(t, p.flagSet("d"))
	assert.False(t, p.flagSet("e"))
	assert.False(t, p.flagSet("f"))
	assert.False(t, p.flagSet("missing"))
}

func TestParseID(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"7", 7, true},
		{" 7 ", 7, true},
		{"-3", -3, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
		{"7.5", 0, false},
	}
	for _, tc := range tests {
		got, ok := parseID(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParsePositiveIDs(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 9}, parsePositiveIDs("3,1,9"))
	assert.Equal(t, []int64{5}, parsePositiveIDs("abc,5,-2,0,,"))
	assert.Nil(t, parsePositiveIDs(""))
	assert.Nil(t, parsePositiveIDs("x,y"))
}

func TestParseSignedIDs(t *testing.T) {
	assert.Equal(t, []int64{-1, 0, 4}, parseSignedIDs("-1,0,4"))
	assert.Equal(t, []int64{2}, parseSignedIDs("junk,2"))
	assert.Nil(t, parseSignedIDs(""))
}
