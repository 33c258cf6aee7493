package page

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FromHTML reads the frame tree of a document from its iframe elements.
// A frame loaded from an absolute http(s) URL takes that URL's origin; srcdoc
// and relative frames inherit origin, and srcdoc markup is read recursively.
// Unnamed frames are named after their position, e.g. "frame-0-1".
func FromHTML(html, origin string) ([]FrameSpec, error) {
	return framesOf(html, origin, "frame")
}

func framesOf(html, origin, prefix string) ([]FrameSpec, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var (
		frames  []FrameSpec
		walkErr error
	)
	doc.Find("iframe").EachWithBreak(func(i int, s *goquery.Selection) bool {
		position := fmt.Sprintf("%s-%d", prefix, i)

		spec := FrameSpec{
			Name:   frameName(s, position),
			Origin: origin,
		}
		if src, ok := s.Attr("src"); ok {
			spec.Origin = originOf(src, origin)
		}
		_, spec.Remote = s.Attr("data-remote")

		if srcdoc, ok := s.Attr("srcdoc"); ok {
			spec.Origin = origin
			children, err := framesOf(srcdoc, origin, position)
			if err != nil {
				walkErr = err
				return false
			}
			spec.Frames = children
		}

		frames = append(frames, spec)
		return true
	})
	return frames, walkErr
}

func frameName(s *goquery.Selection, fallback string) string {
	for _, attr := range []string{"name", "id"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return fallback
}

func originOf(src, parent string) string {
	u, err := url.Parse(strings.TrimSpace(src))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return parent
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return parent
	}
	return u.Scheme + "://" + u.Host
}
