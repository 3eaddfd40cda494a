package starblast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strconv"
)

// noSystemMarker is the error value the status API sends for unknown systems.
const noSystemMarker = "no_system"

// StatusDocument is the status API payload for one system.
type StatusDocument struct {
	Name             string
	Mode             string
	Time             float64
	CriminalActivity float64
	Players          map[string]Player
	Error            string
}

func (d *StatusDocument) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return errors.New("status document is null")
	}
	*d = StatusDocument{}
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	var raw struct {
		Name             looseString     `json:"name"`
		Mode             looseString     `json:"mode"`
		Time             looseNumber     `json:"time"`
		CriminalActivity looseNumber     `json:"criminal_activity"`
		Players          json.RawMessage `json:"players"`
		Error            json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.Name = string(raw.Name)
	d.Mode = string(raw.Mode)
	d.Time = float64(raw.Time)
	d.CriminalActivity = float64(raw.CriminalActivity)
	d.Players = decodePlayers(raw.Players)
	// Only the exact string marks an unknown system.
	_ = json.Unmarshal(raw.Error, &d.Error)
	return nil
}

// decodePlayers reads the players field. An object is keyed by player id; a
// list is keyed by index. Any other value, and any entry that is not an
// object, contributes no players.
func decodePlayers(raw json.RawMessage) map[string]Player {
	var byID map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byID); err != nil {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil
		}
		byID = make(map[string]json.RawMessage, len(list))
		for i, entry := range list {
			byID[strconv.Itoa(i)] = entry
		}
	}

	players := make(map[string]Player, len(byID))
	for id, entry := range byID {
		var p Player
		if err := json.Unmarshal(entry, &p); err != nil {
			continue
		}
		players[id] = p
	}
	return players
}

// Player is an entry of StatusDocument.Players.
type Player struct {
	Name   string
	Custom bool
}

func (p *Player) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name   looseString     `json:"player_name"`
		Custom json.RawMessage `json:"custom"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// custom carries the ship definition itself, so any truthy value counts.
	*p = Player{Name: string(raw.Name), Custom: truthy(raw.Custom)}
	return nil
}

// Summary is the digest of a status document rendered back to chat.
type Summary struct {
	ID               string
	Name             string
	Mode             string
	TimeMinutes      int
	CriminalActivity int
	PlayerCount      int
	CustomShipCount  int
	Players          []string
	Address          string
}

// statusURL builds the status endpoint for a system.
func (c *Client) statusURL(id, address string) string {
	target := id
	if address != "" {
		target += "@" + address
	}
	return c.statusBaseURL + "/api/status/" + url.PathEscape(target)
}

// FetchStatus retrieves a system's status document and digests it. Exactly
// one request is made. A nil summary is always paired with one of
// ErrFetchFailed, *HTTPError, ErrSystemNotFound or ErrInvalidSystem.
func (c *Client) FetchStatus(ctx context.Context, id, address string) (*Summary, error) {
	endpoint := c.statusURL(id, address)
	slog.Debug("starblast: fetching status", "url", endpoint)

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		slog.Warn("starblast: status request failed", "url", endpoint, "err", err)
		return nil, ErrFetchFailed
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var doc StatusDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		slog.Warn("starblast: decode status failed", "url", endpoint, "err", err)
		return nil, ErrFetchFailed
	}

	return Summarize(id, address, &doc)
}

// Summarize derives a Summary from a decoded status document.
func Summarize(id, address string, doc *StatusDocument) (*Summary, error) {
	if doc.Error == noSystemMarker {
		return nil, ErrSystemNotFound
	}
	if doc.Name == "" {
		return nil, ErrInvalidSystem
	}

	s := &Summary{
		ID:               id,
		Name:             doc.Name,
		Mode:             doc.Mode,
		TimeMinutes:      int(math.Round(doc.Time / 60)),
		CriminalActivity: int(doc.CriminalActivity),
		Address:          address,
		Players:          []string{},
	}
	if s.Mode == "" {
		s.Mode = "unknown"
	}

	// Map order is random; keep the listing stable by player id.
	ids := make([]string, 0, len(doc.Players))
	for pid := range doc.Players {
		ids = append(ids, pid)
	}
	sort.Slice(ids, func(i, j int) bool { return lessPlayerID(ids[i], ids[j]) })

	for _, pid := range ids {
		p := doc.Players[pid]
		if p.Name == "" {
			continue
		}
		s.Players = append(s.Players, p.Name)
		if p.Custom {
			s.CustomShipCount++
		}
	}
	s.PlayerCount = len(s.Players)

	return s, nil
}

// lessPlayerID orders numeric ids numerically, the way the API emits them,
// and falls back to string order otherwise.
func lessPlayerID(a, b string) bool {
	if len(a) != len(b) && isDigits(a) && isDigits(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
