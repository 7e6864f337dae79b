// Package playlist manages the channel catalog and resolves HLS manifests
// into probeable segment lists.
package playlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"
)

// Channel is one entry of the channel catalog.
type Channel struct {
	ID        string `json:"our_id"`
	Name      string `json:"name_ru"`
	MasterURL string `json:"stream_common"`
	URL       string `json:"url"`
}

// StreamURL returns the URL to probe: the master playlist when present,
// otherwise the direct stream URL.
func (c Channel) StreamURL() string {
	if c.MasterURL != "" {
		return c.MasterURL
	}
	return c.URL
}

// Catalog is the set of known channels, backed by a JSON cache file.
type Catalog struct {
	Channels []Channel
}

// Load reads the catalog cache file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var channels []Channel
	if err := json.Unmarshal(data, &channels); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	return &Catalog{Channels: channels}, nil
}

// Save writes the catalog to the cache file.
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c.Channels, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	return nil
}

// Refresh fetches the catalog from the upstream API and replaces the
// in-memory channel list. The caller persists it with Save.
func Refresh(ctx context.Context, client *http.Client, upstreamURL string) (*Catalog, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upstreamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching catalog: upstream returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading catalog response: %w", err)
	}

	var channels []Channel
	if err := json.Unmarshal(body, &channels); err != nil {
		return nil, fmt.Errorf("parsing catalog response: %w", err)
	}

	return &Catalog{Channels: channels}, nil
}

// Select returns up to count channels that have a probeable URL, in catalog
// order. count <= 0 means all.
func (c *Catalog) Select(count int) []Channel {
	selected := make([]Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.StreamURL() == "" {
			continue
		}
		selected = append(selected, ch)
		if count > 0 && len(selected) == count {
			break
		}
	}
	return selected
}

// SortByID orders channels by ascending ID, numerically when both IDs parse
// as integers, lexically otherwise.
func SortByID(channels []Channel) {
	sort.SliceStable(channels, func(i, j int) bool {
		return LessID(channels[i].ID, channels[j].ID)
	})
}

// LessID compares two channel IDs, numeric-aware.
func LessID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}
