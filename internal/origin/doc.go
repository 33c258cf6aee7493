// Package origin emulates the browser's cross-origin read rules for XHRs
// served through the proxy.
//
// The proxy makes every resource look same-origin to page scripts, so it has
// to re-apply the CORS decision itself: given the origin of the calling page,
// the headers the script sent and the headers the real server answered with,
// CheckOriginPolicy reports whether the script may observe the response.
package origin
