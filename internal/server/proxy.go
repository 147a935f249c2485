package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

// maxBodyBytes caps request bodies relayed upstream.
const maxBodyBytes = 10 << 20

// hopHeaders are never relayed in either direction. Authorization is owned
// by the gateway; Accept-Encoding is dropped so the upstream body arrives
// uncompressed and can be relayed as is.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Authorization":       true,
	"Accept-Encoding":     true,
	"Content-Length":      true,
	"Host":                true,
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// handleForward relays /api/<path> to <base>/<path> through the gateway.
func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	path := "/" + strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api"), "/")

	var body []byte
	if r.Body != nil {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"error": map[string]any{"message": "request body too large"},
			})
			return
		}
		if len(data) > 0 {
			body = data
		}
	}

	header := http.Header{}
	copyHeaders(header, r.Header)

	resp, err := s.deps.Client.Forward(r.Context(), r.Method, path, r.URL.Query(), header, body)
	if err != nil {
		if !errors.IsTerminal(err) {
			s.logger.WithError(err).Warn("forward failed", "method", r.Method, "path", path)
		}
		s.writeError(w, err)
		return
	}

	copyHeaders(w.Header(), resp.Header)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}
