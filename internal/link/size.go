package link

import (
	"errors"
	"fmt"
	"strings"

	"github.com/starford/raido/internal/apperr"
)

// MaxDimension is the upper bound accepted for link width and height.
const MaxDimension = 10000

// ParseSizeSpec parses a size of the form "W" or "WxH". Width must be
// positive and both dimensions are capped at MaxDimension. A bare width
// means the link carries no explicit height.
func ParseSizeSpec(s string) (width, height int, err error) {
	ws, hs, hasHeight := strings.Cut(s, "x")
	width, err = parseDim(ws)
	if err != nil || width == 0 {
		return 0, 0, fmt.Errorf("link: %w: %q", apperr.ErrInvalidSize, s)
	}
	if hasHeight {
		height, err = parseDim(hs)
		if err != nil || height == 0 {
			return 0, 0, fmt.Errorf("link: %w: %q", apperr.ErrInvalidSize, s)
		}
	}
	return width, height, nil
}

func parseDim(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty dimension")
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
		n = n*10 + int(c-'0')
		if n > MaxDimension {
			return 0, errors.New("dimension out of range")
		}
	}
	return n, nil
}
