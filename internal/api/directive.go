package api

import (
	"io"
	"net/http"
)

// maxDirectiveBody bounds the inbound envelope size.
const maxDirectiveBody = 64 * 1024

// handleDirective processes one smart-home directive envelope.
//
// The response is always HTTP 200 with a protocol envelope: the protocol
// distinguishes application-level outcome from transport-level outcome,
// so even a rejected or failed directive is a successful HTTP exchange.
func (s *Server) handleDirective(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxDirectiveBody))
	if err != nil {
		writeBadRequest(w, "reading request body")
		return
	}

	resp := s.directive.Handle(r.Context(), body)
	writeJSON(w, http.StatusOK, resp)
}
