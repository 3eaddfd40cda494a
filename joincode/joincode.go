package joincode

import (
	"regexp"
)

// BaseURL is the game client address that join links point at.
const BaseURL = "https://starblast.io/"

// linkPattern matches "starblast.io/#<id>" with an optional "@<address>"
// suffix. The address stops at the first slash or whitespace.
var linkPattern = regexp.MustCompile(`starblast\.io/#(\d+)(@[^/\s]*)?`)

// Ref identifies a game session. An empty Address means the session's host
// is unknown and has to be resolved through the directory.
type Ref struct {
	ID      string
	Address string
}

// Parse extracts a session reference from a Starblast link. The link may be
// embedded in surrounding text and may omit the scheme. It reports false when
// no link is found.
func Parse(link string) (Ref, bool) {
	m := linkPattern.FindStringSubmatch(link)
	if m == nil {
		return Ref{}, false
	}

	ref := Ref{ID: m[1]}
	if len(m[2]) > 1 {
		ref.Address = m[2][1:]
	}
	return ref, true
}

// Encode builds the join link for a session. The address is appended only
// when it is known.
func Encode(id, address string) string {
	link := BaseURL + "#" + id
	if address != "" {
		link += "@" + address
	}
	return link
}

// String returns the join link for the reference.
func (r Ref) String() string {
	return Encode(r.ID, r.Address)
}
