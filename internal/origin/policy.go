package origin

import (
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Header names in canonical format
const (
	ACAO = "Access-Control-Allow-Origin"
	ACAC = "Access-Control-Allow-Credentials"
)

const (
	valueTrue       = "true"
	valueWildcard   = "*"
	preflightMethod = http.MethodOptions
)

// Context is the captured request/response pair of one intercepted XHR
type Context struct {
	RequestOrigin   string // origin of the page that issued the request
	TargetDomain    string // origin of the destination URL
	RequestMethod   string
	RequestHeaders  http.Header
	ResponseHeaders http.Header
}

// Rule names the step of the decision that settled it
type Rule string

const (
	RuleSameOrigin      Rule = "same-origin"
	RuleCORSUnsupported Rule = "cors-unsupported"
	RulePreflight       Rule = "preflight"
	RuleCredentials     Rule = "credentials"
	RuleAllowOrigin     Rule = "allow-origin"
)

// CheckOriginPolicy reports whether the calling script may observe the
// response described by ctx.
func CheckOriginPolicy(ctx Context) bool {
	allowed, _ := Decide(ctx)
	return allowed
}

// Decide is CheckOriginPolicy that also reports the deciding rule. Missing
// or malformed headers are treated as absent, so bad input denies. An empty
// target is never same-origin.
func Decide(ctx Context) (bool, Rule) {
	if ctx.TargetDomain != "" && ctx.TargetDomain == ctx.RequestOrigin {
		return true, RuleSameOrigin
	}

	marker := ParseMarker(ctx.RequestHeaders)
	if !marker.Has(CORSSupported) {
		return false, RuleCORSUnsupported
	}

	if ctx.RequestMethod == preflightMethod {
		return true, RulePreflight
	}

	allowedOrigins := allowOrigins(ctx.ResponseHeaders)
	_, wildcard := allowedOrigins[valueWildcard]

	if marker.Has(WithCredentials) && (!allowCredentials(ctx.ResponseHeaders) || wildcard) {
		return false, RuleCredentials
	}

	_, exact := allowedOrigins[ctx.RequestOrigin]
	return wildcard || exact, RuleAllowOrigin
}

// allowOrigins normalizes every Access-Control-Allow-Origin field line to a
// set. Each line is one value; invalid lines are skipped.
func allowOrigins(h http.Header) map[string]struct{} {
	values := h.Values(ACAO)
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if !httpguts.ValidHeaderFieldValue(v) {
			continue
		}
		if v = trimOWS(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func allowCredentials(h http.Header) bool {
	v := h.Get(ACAC)
	if !httpguts.ValidHeaderFieldValue(v) {
		return false
	}
	return strings.EqualFold(trimOWS(v), valueTrue)
}

func trimOWS(s string) string {
	return strings.Trim(s, " \t")
}
