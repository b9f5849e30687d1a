// Package auth attaches FMP API credentials to outgoing requests.
package auth

import (
	"fmt"
	"net/http"
)

// Mode selects where the API key travels.
type Mode string

const (
	// ModeQuery sends the key as the "apikey" query parameter.
	ModeQuery Mode = "query"

	// ModeHeader sends the key in the HeaderName request header.
	ModeHeader Mode = "header"
)

// QueryParam is the query parameter FMP reads the key from.
const QueryParam = "apikey"

// HeaderName is the header FMP reads the key from in header mode.
const HeaderName = "apikey"

// Credentials holds the provider API key and how to send it.
type Credentials struct {
	APIKey string
	Mode   Mode
}

// LoadCredentials validates an API key and transport mode.
// An empty mode means ModeQuery.
func LoadCredentials(apiKey string, mode Mode) (*Credentials, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch mode {
	case "":
		mode = ModeQuery
	case ModeQuery, ModeHeader:
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}

	return &Credentials{APIKey: apiKey, Mode: mode}, nil
}

// Apply sets the API key on req. A nil receiver leaves req untouched.
func (c *Credentials) Apply(req *http.Request) {
	if c == nil || c.APIKey == "" {
		return
	}

	if c.Mode == ModeHeader {
		req.Header.Set(HeaderName, c.APIKey)
		return
	}

	q := req.URL.Query()
	q.Set(QueryParam, c.APIKey)
	req.URL.RawQuery = q.Encode()
}

// Redact returns a copy of the key safe for logs.
func (c *Credentials) Redact() string {
	if c == nil || len(c.APIKey) <= 4 {
		return "****"
	}
	return "****" + c.APIKey[len(c.APIKey)-4:]
}
