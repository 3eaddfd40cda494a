package starblast

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFormatReplyError(t *testing.T) {
	assert.Equal(t, "❌ Error: HTTP error: 500", FormatReply(nil, &HTTPError{StatusCode: 500}))
	assert.Equal(t, "❌ Error: System not found", FormatReply(nil, ErrSystemNotFound))
}

func TestFormatReplySuccess(t *testing.T) {
	s := &Summary{
		ID:              "42",
		Name:            "Alpha",
		Mode:            "ffa",
		TimeMinutes:     2,
		PlayerCount:     1,
		CustomShipCount: 0,
		Players:         []string{"Bob"},
		Address:         "a1",
	}

	want := "**Alpha** (ID: 42)\n" +
		"Mode: ffa | Time: 2 min\n" +
		"Players: 1 | ECP: 0 | Crimes: 0\n" +
		"Join: https://starblast.io/#42@a1\n\n" +
		"**Players:**\nBob"
	assert.Equal(t, want, FormatReply(s, nil))
}

func TestFormatReplyNoPlayers(t *testing.T) {
	s := &Summary{ID: "7", Name: "Quiet", Mode: "unknown"}

	got := FormatReply(s, nil)
	assert.Contains(t, got, "Join: https://starblast.io/#7\n")
	assert.True(t, strings.HasSuffix(got, "\n\nNo players found."))
	assert.NotContains(t, got, "**Players:**")
}

func TestFormatReplyJoinsPlayers(t *testing.T) {
	s := &Summary{ID: "1", Name: "n", Mode: "m", PlayerCount: 3, Players: []string{"a", "b", "c"}}
	assert.True(t, strings.HasSuffix(FormatReply(s, nil), "**Players:**\na, b, c"))
}

func TestFormatReplyTruncates(t *testing.T) {
	players := make([]string, 400)
	for i := range players {
		players[i] = "Pilot" + strings.Repeat("x", i%7)
	}
	s := &Summary{ID: "1", Name: "Crowded", Mode: "team", PlayerCount: len(players), Players: players}

	got := FormatReply(s, nil)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxMessageLength)
	assert.True(t, strings.HasSuffix(got, TruncationNotice))
	assert.True(t, strings.HasPrefix(got, "**Crowded** (ID: 1)\n"))
}

func TestTruncateCountsCharacters(t *testing.T) {
	text := strings.Repeat("й", MaxMessageLength)
	assert.Equal(t, text, Truncate(text, MaxMessageLength))

	long := text + "й"
	got := Truncate(long, MaxMessageLength)
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, TruncationNotice))
}
