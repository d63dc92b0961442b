package payout

import (
	"errors"
	"strings"
)

// ErrInvalidAmount is returned for amounts that cannot be parsed into kobo.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a display-formatted naira amount ("1,500.50") into
// kobo. Grouping commas and surrounding whitespace are stripped; at most two
// decimal places are accepted. The wire always carries numeric kobo, never a
// formatted string.
func ParseAmount(display string) (int64, error) {
	clean := strings.TrimSpace(display)
	clean = strings.TrimPrefix(clean, "₦")
	clean = strings.ReplaceAll(clean, ",", "")
	if clean == "" {
		return 0, ErrInvalidAmount
	}

	whole, fraction := clean, ""
	if idx := strings.IndexByte(clean, '.'); idx >= 0 {
		whole, fraction = clean[:idx], clean[idx+1:]
	}
	if whole == "" && fraction == "" {
		return 0, ErrInvalidAmount
	}
	if len(fraction) > 2 {
		return 0, ErrInvalidAmount
	}

	var naira int64
	for i := 0; i < len(whole); i++ {
		ch := whole[i]
		if ch < '0' || ch > '9' {
			return 0, ErrInvalidAmount
		}
		naira = naira*10 + int64(ch-'0')
	}
	kobo := naira * 100

	// Pad "5" to "50" so ".5" means 50 kobo.
	for len(fraction) < 2 {
		fraction += "0"
	}
	for i := 0; i < len(fraction); i++ {
		ch := fraction[i]
		if ch < '0' || ch > '9' {
			return 0, ErrInvalidAmount
		}
	}
	kobo += int64(fraction[0]-'0')*10 + int64(fraction[1]-'0')
	return kobo, nil
}
