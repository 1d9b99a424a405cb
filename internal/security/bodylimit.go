package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

var errBodyTooLarge = errors.New("security: body exceeds limit")

// BodyLimit enforces a maximum request payload size before handlers run.
type BodyLimit struct {
	Max int64
}

// Middleware rejects payloads larger than Max with HTTP 413. The body is
// buffered and replaced so downstream handlers can still read it in full,
// which webhook signature checks rely on.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		}
		buf, err := readCapped(r.Body, b.Max)
		switch {
		case errors.Is(err, errBodyTooLarge):
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return
		case err != nil:
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(buf))
		r.ContentLength = int64(len(buf))
		next.ServeHTTP(w, r)
	})
}

func readCapped(body io.Reader, max int64) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(body, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) > max {
		return nil, errBodyTooLarge
	}
	return buf, nil
}
