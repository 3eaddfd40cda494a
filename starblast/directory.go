package starblast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DirectoryEntry is one host in the directory document together with the
// systems it currently runs.
type DirectoryEntry struct {
	Address string
	Systems []DirectorySystem
}

// UnmarshalJSON reads a numeric address as text and drops systems that do not
// decode.
func (e *DirectoryEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Address looseString     `json:"address"`
		Systems json.RawMessage `json:"systems"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = DirectoryEntry{Address: string(raw.Address)}
	var systems []json.RawMessage
	if err := json.Unmarshal(raw.Systems, &systems); err != nil {
		return nil
	}
	for _, item := range systems {
		var sys DirectorySystem
		if err := json.Unmarshal(item, &sys); err != nil {
			continue
		}
		e.Systems = append(e.Systems, sys)
	}
	return nil
}

// DirectorySystem is a system listed under a host.
type DirectorySystem struct {
	ID SystemID `json:"id"`
}

// SystemID is a session id. The directory publishes ids as JSON numbers, the
// status API and links carry them as strings; both decode to the same value.
type SystemID string

func (id *SystemID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SystemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("system id: %w", err)
	}
	*id = SystemID(n.String())
	return nil
}

// FindAddress scans entries in document order and returns the address of the
// first one listing the id. Entries without an address are passed over.
func FindAddress(entries []DirectoryEntry, id string) (string, bool) {
	for _, entry := range entries {
		if entry.Address == "" {
			continue
		}
		for _, sys := range entry.Systems {
			if string(sys.ID) == id {
				return entry.Address, true
			}
		}
	}
	return "", false
}

// Directory fetches the current directory document.
func (c *Client) Directory(ctx context.Context) ([]DirectoryEntry, error) {
	resp, err := c.get(ctx, c.directoryURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode directory: %w", err)
	}

	entries := make([]DirectoryEntry, 0, len(items))
	for i, item := range items {
		var entry DirectoryEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			slog.Debug("starblast: skipping directory entry", "index", i, "err", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ResolveAddress finds the host running the system with the given id. It
// returns ErrNotInDirectory when no host lists it.
func (c *Client) ResolveAddress(ctx context.Context, id string) (string, error) {
	entries, err := c.Directory(ctx)
	if err != nil {
		return "", err
	}

	address, ok := FindAddress(entries, id)
	if !ok {
		return "", ErrNotInDirectory
	}
	return address, nil
}
