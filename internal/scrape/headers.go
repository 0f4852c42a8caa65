// Package scrape fetches Amazon product pages and extracts raw listing
// fields. It is the ingestion collaborator: the pipeline core never does
// network I/O itself.
package scrape

import (
	"net/http"
	"sync"
)

// browserProfile is one realistic header set.
type browserProfile struct {
	userAgent      string
	acceptLanguage string
	acceptEncoding string
}

// HeaderRotator cycles through browser profiles so consecutive requests do
// not present identical fingerprints.
type HeaderRotator struct {
	mu       sync.Mutex
	profiles []browserProfile
	next     int
}

// NewHeaderRotator returns a rotator over the built-in profiles.
func NewHeaderRotator() *HeaderRotator {
	return &HeaderRotator{
		profiles: []browserProfile{
			{
				userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				acceptLanguage: "en-US,en;q=0.9",
				acceptEncoding: "gzip, deflate, br",
			},
			{
				userAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				acceptLanguage: "en-GB,en;q=0.9",
				acceptEncoding: "gzip, deflate, br",
			},
			{
				userAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				acceptLanguage: "en-US,en;q=0.8",
				acceptEncoding: "gzip, deflate",
			},
		},
	}
}

// Next returns the header set for the next request and advances the
// rotation.
func (h *HeaderRotator) Next() http.Header {
	h.mu.Lock()
	profile := h.profiles[h.next]
	h.next = (h.next + 1) % len(h.profiles)
	h.mu.Unlock()

	headers := http.Header{}
	headers.Set("User-Agent", profile.userAgent)
	headers.Set("Accept-Language", profile.acceptLanguage)
	headers.Set("Accept-Encoding", profile.acceptEncoding)
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	headers.Set("Connection", "keep-alive")
	headers.Set("Upgrade-Insecure-Requests", "1")
	headers.Set("Sec-Fetch-Dest", "document")
	headers.Set("Sec-Fetch-Mode", "navigate")
	headers.Set("Sec-Fetch-Site", "none")
	headers.Set("Cache-Control", "max-age=0")
	return headers
}

// UserAgents lists the rotation's user agent strings (for the renderer).
func (h *HeaderRotator) UserAgents() []string {
	agents := make([]string, len(h.profiles))
	for i, p := range h.profiles {
		agents[i] = p.userAgent
	}
	return agents
}
