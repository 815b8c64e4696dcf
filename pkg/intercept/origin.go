// File: pkg/intercept/origin.go
package intercept

import (
	"net/url"
	"strings"
)

// Classification tells whether a request targets the server under test.
type Classification int

const (
	External Classification = iota
	Internal
)

func (c Classification) String() string {
	if c == Internal {
		return "internal"
	}
	return "external"
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// Origin returns the scheme://host[:port] of rawURL, lowercased and without a
// default port. ok is false for URLs with an opaque origin (data:, about:,
// file:, or anything that fails to parse).
func Origin(rawURL string) (origin string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && defaultPorts[scheme] != port {
		host += ":" + port
	}
	return scheme + "://" + host, true
}

// Classify reports Internal when the origin of rawURL is a prefix of
// serverHost. serverHost is compared verbatim.
func Classify(serverHost, rawURL string) Classification {
	origin, ok := Origin(rawURL)
	if !ok || serverHost == "" {
		return External
	}
	if strings.HasPrefix(serverHost, origin) {
		return Internal
	}
	return External
}

// IsInternal is shorthand for Classify(serverHost, rawURL) == Internal.
func IsInternal(serverHost, rawURL string) bool {
	return Classify(serverHost, rawURL) == Internal
}
