// Package snapshot captures HTTP responses so they can be stored and replayed.
package snapshot

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// Snapshot is the stored part of a response: status, headers and body.
type Snapshot struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Capture reads the response body into a snapshot.
// The response body is set back so that the response can still be handed to the caller unmodified.
func Capture(res *http.Response) (Snapshot, error) {
	s := Snapshot{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
	}
	if s.Header == nil {
		s.Header = http.Header{}
	}
	if res.Body == nil || res.Body == http.NoBody {
		return s, nil
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	// set response body back
	res.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return s, err
	}
	s.Body = body
	return s, nil
}

// Response rebuilds an HTTP response for the given request.
// Every call returns an independent response with its own header map and body reader.
func (s Snapshot) Response(req *http.Request) *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	res := &http.Response{
		Status:        strconv.Itoa(s.StatusCode) + " " + http.StatusText(s.StatusCode),
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
	if len(s.Body) == 0 {
		res.Body = http.NoBody
	} else {
		res.Body = io.NopCloser(bytes.NewReader(s.Body))
	}
	return res
}

// hop-by-hop headers, these are not forwarded by proxies
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// RemoveHopHeaders deletes the hop-by-hop headers from h.
func RemoveHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// CopyHeader adds every end-to-end header of src to dst.
// Header values already set on dst are kept.
func CopyHeader(dst, src http.Header) {
	for k, vv := range src {
		if isHopHeader(k) {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(name) == h {
			return true
		}
	}
	return false
}
