package security

import (
	"mime"
	"net/http"
)

// ValidateContentType ensures the request body is JSON, the only format the
// notification API accepts
func ValidateContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// SanitizeHeaders returns a copy of headers without credentials, for logging
func SanitizeHeaders(headers http.Header) http.Header {
	sensitiveHeaders := []string{
		"Authorization",
		"Cookie",
		"Set-Cookie",
		"X-CSRF-Token",
		"Sec-WebSocket-Key",
	}

	out := headers.Clone()
	for _, header := range sensitiveHeaders {
		out.Del(header)
	}
	return out
}
