// Package proxy relays XHRs issued by proxied pages to their real
// destination and hides cross-origin responses the page may not read.
//
// Requests arrive as /xhr?url=<destination>&origin=<page origin>. The
// client sandbox marks each request with origin.MarkerHeader; the marker
// is stripped before the request leaves the proxy.
package proxy
