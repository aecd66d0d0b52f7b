package models

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidDataURL = errors.New("invalid data URL")

// EncodeDataURL builds a self-contained base64 data URI for payload.
func EncodeDataURL(mediaType string, payload []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(payload)))
	b.WriteString("data:")
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(payload))
	return b.String()
}

// DecodeDataURL splits a data URI into its media type and raw payload.
// Only base64 payloads are accepted, which is what EncodeDataURL produces.
func DecodeDataURL(s string) (mediaType string, payload []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	meta, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	if i := strings.IndexByte(meta, ';'); i >= 0 {
		meta = meta[:i]
	}
	payload, err = base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", nil, errors.Join(ErrInvalidDataURL, err)
	}
	return meta, payload, nil
}

// DataURLSize returns the decoded payload size of a base64 data URI without
// decoding it, or 0 when s is not one.
func DataURLSize(s string) int {
	_, data, ok := strings.Cut(s, ";base64,")
	if !ok {
		return 0
	}
	n := base64.StdEncoding.DecodedLen(len(data))
	n -= strings.Count(data[max(0, len(data)-2):], "=")
	return max(n, 0)
}
