package starblast

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nicebartender/starinfo/joincode"
)

const (
	// MaxMessageLength is the longest message Discord accepts, in characters.
	MaxMessageLength = 2000

	// TruncationNotice ends replies that had to be cut.
	TruncationNotice = "...\n(Message truncated due to length)"

	errorPrefix = "❌ Error: "
)

// FormatReply renders a lookup result as chat text. When err is non-nil only
// its message is shown.
func FormatReply(s *Summary, err error) string {
	if err != nil {
		return errorPrefix + err.Error()
	}
	if s == nil {
		return errorPrefix + ErrInvalidSystem.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (ID: %s)\n", s.Name, s.ID)
	fmt.Fprintf(&b, "Mode: %s | Time: %d min\n", s.Mode, s.TimeMinutes)
	fmt.Fprintf(&b, "Players: %d | ECP: %d | Crimes: %d\n", s.PlayerCount, s.CustomShipCount, s.CriminalActivity)
	fmt.Fprintf(&b, "Join: %s\n\n", joincode.Encode(s.ID, s.Address))

	if len(s.Players) > 0 {
		b.WriteString("**Players:**\n")
		b.WriteString(strings.Join(s.Players, ", "))
	} else {
		b.WriteString("No players found.")
	}

	return Truncate(b.String(), MaxMessageLength)
}

// Truncate cuts text longer than limit characters so that, with the notice
// appended, it fits in limit.
func Truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	keep := limit - utf8.RuneCountInString(TruncationNotice)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	return string(runes[:keep]) + TruncationNotice
}
