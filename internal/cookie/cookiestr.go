package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ErrMalformed reports a cookie string without a usable name
var ErrMalformed = errors.New("malformed cookie string")

// attrsOnly stands in for the name/value pair when the attributes of a
// cookie string are parsed on their own.
const attrsOnly = "_="

// ParseCookieString parses one document.cookie write. The value is everything
// between the first "=" and the first ";" and is kept verbatim, quotes,
// backslashes and non-ASCII bytes included. Only the attributes go through
// Set-Cookie parsing.
func ParseCookieString(str string) (*http.Cookie, error) {
	pair, attrs, _ := strings.Cut(str, ";")
	name, value, ok := strings.Cut(pair, "=")
	name = strings.TrimSpace(name)
	if !ok || !httpguts.ValidHeaderFieldName(name) {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, pair)
	}

	c, err := http.ParseSetCookie(attrsOnly + ";" + attrs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.Name = name
	c.Value = strings.TrimSpace(value)
	c.Raw = str
	return c, nil
}
