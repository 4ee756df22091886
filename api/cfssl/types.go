package cfssl

import (
	"github.com/goccy/go-json"
)

const (
	InfoPath = "/api/v1/cfssl/info"
	SignPath = "/api/v1/cfssl/sign"
)

// ResponseMessage is an entry of the errors or messages list of an envelope.
type ResponseMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is the CFSSL response envelope.
type Response struct {
	Success  bool              `json:"success"`
	Result   json.RawMessage   `json:"result,omitempty"`
	Errors   []ResponseMessage `json:"errors"`
	Messages []ResponseMessage `json:"messages"`
}

// CertificateResult is the result object of info and sign calls.
type CertificateResult struct {
	Certificate string `json:"certificate"`
}

// InfoRequest is the body of an info call. CFSSL accepts an empty object.
type InfoRequest struct {
	Label   string `json:"label,omitempty"`
	Profile string `json:"profile,omitempty"`
}
