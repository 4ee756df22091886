package cfssl

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/inaetics/node-wiring-go/cryptoutils"
	"github.com/inaetics/node-wiring-go/interfaces"
)

// CFSSL error codes used in responses.
const (
	codeInvalidRequest = 1200
	codeSigningFailed  = 2000
	codeCAUnavailable  = 5000
)

// Handler serves the CFSSL info and sign endpoints from a CertificateAuthority.
type Handler struct {
	ca  interfaces.CertificateAuthority
	log *slog.Logger
}

// NewHandler creates a handler signing with ca.
func NewHandler(ca interfaces.CertificateAuthority, log *slog.Logger) *Handler {
	return &Handler{
		ca:  ca,
		log: log,
	}
}

// RegisterRoutes registers:
//   - POST /api/v1/cfssl/info - CA certificate
//   - POST /api/v1/cfssl/sign - sign a certificate request
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(InfoPath, h.HandleInfo)
	r.Post(SignPath, h.HandleSign)
}

// HandleInfo returns the CA certificate. The request body is ignored apart
// from having to be valid JSON when present.
//
// Status codes:
//   - 200 OK: certificate in result.certificate
//   - 400 Bad Request: malformed body
//   - 500 Internal Server Error: CA certificate unavailable
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseSize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, codeInvalidRequest, "could not read request")
		return
	}
	if len(body) > 0 {
		var req InfoRequest
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
			return
		}
	}

	caCert, err := h.ca.CACertificate()
	if err != nil {
		h.log.Error("Failed to get CA certificate", "err", err)
		h.writeError(w, http.StatusInternalServerError, codeCAUnavailable, "CA certificate unavailable")
		return
	}

	h.writeCertificate(w, string(caCert))
}

// HandleSign signs the PEM certificate request in certificate_request.
//
// Status codes:
//   - 200 OK: signed certificate in result.certificate
//   - 400 Bad Request: malformed body or CSR, or signing refused
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseSize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, codeInvalidRequest, "could not read request")
		return
	}

	var req cryptoutils.SignRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid JSON body")
		return
	}

	csr, err := cryptoutils.NewTLSCSR([]byte(req.CertificateRequest))
	if err != nil {
		h.log.Warn("Rejected certificate request", "err", err)
		h.writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}

	cert, err := h.ca.SignCSR(csr)
	if err != nil {
		h.log.Error("Failed to sign certificate request", "err", err)
		h.writeError(w, http.StatusBadRequest, codeSigningFailed, err.Error())
		return
	}

	h.log.Info("Signed certificate request", "remoteAddr", r.RemoteAddr)
	h.writeCertificate(w, string(cert))
}

func (h *Handler) writeCertificate(w http.ResponseWriter, certificate string) {
	result, err := json.Marshal(CertificateResult{Certificate: certificate})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, codeCAUnavailable, "could not encode result")
		return
	}
	h.writeEnvelope(w, http.StatusOK, Response{
		Success:  true,
		Result:   result,
		Errors:   []ResponseMessage{},
		Messages: []ResponseMessage{},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code int, message string) {
	h.writeEnvelope(w, status, Response{
		Success:  false,
		Errors:   []ResponseMessage{{Code: code, Message: message}},
		Messages: []ResponseMessage{},
	})
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
