package origin

import (
	"net/http"
	"strconv"
	"strings"
)

// MarkerHeader is attached by the client sandbox to every XHR it sends
// through the proxy. Its value is a decimal Marker.
const MarkerHeader = "X-Crossframe-Xhr-Marker"

// Marker is the flag set carried by MarkerHeader
type Marker uint8

const (
	// CORSSupported is set when the calling XHR implementation supports CORS
	CORSSupported Marker = 0x01
	// WithCredentials mirrors XMLHttpRequest.withCredentials
	WithCredentials Marker = 0x02
)

// Has reports whether every flag of f is set
func (m Marker) Has(f Marker) bool { return m&f == f }

// ParseMarker reads the marker flags of a request. A missing or malformed
// header yields no flags.
func ParseMarker(h http.Header) Marker {
	v := strings.TrimSpace(h.Get(MarkerHeader))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0
	}
	return Marker(n)
}

// Header renders m as a MarkerHeader value
func (m Marker) Header() string {
	return strconv.FormatUint(uint64(m), 10)
}
