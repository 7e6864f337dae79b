package playlist

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

// Segment is one media segment of a resolved channel.
type Segment struct {
	URL      string
	Duration float64 // seconds, from EXTINF
	Sequence uint64
}

// Resolver fetches and parses HLS playlists for a channel.
type Resolver struct {
	client *http.Client
}

// NewResolver returns a Resolver using the given HTTP client.
// A nil client gets a default with a 10s timeout.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{client: client}
}

// Resolve fetches the channel's playlist and returns its media segments in
// playlist order with absolute URLs. For master playlists the highest-quality
// variant is followed. An empty media playlist yields an empty slice and a
// nil error; fetch and parse failures return an error.
func (r *Resolver) Resolve(ctx context.Context, ch Channel) ([]Segment, error) {
	streamURL := ch.StreamURL()
	if streamURL == "" {
		return nil, fmt.Errorf("channel %s has no stream URL", ch.ID)
	}

	base, playlist, listType, err := r.fetch(ctx, streamURL)
	if err != nil {
		return nil, err
	}

	if listType == m3u8.MASTER {
		master := playlist.(*m3u8.MasterPlaylist)
		variant := bestVariant(master)
		if variant == nil {
			return []Segment{}, nil
		}

		variantURL, err := resolveRef(base, variant.URI)
		if err != nil {
			return nil, fmt.Errorf("variant URL %q: %w", variant.URI, err)
		}

		base, playlist, listType, err = r.fetch(ctx, variantURL)
		if err != nil {
			return nil, err
		}
		if listType != m3u8.MEDIA {
			return nil, fmt.Errorf("variant %s is not a media playlist", variantURL)
		}
	}

	media := playlist.(*m3u8.MediaPlaylist)
	segments := make([]Segment, 0, media.Count())
	for i, seg := range media.Segments {
		if seg == nil {
			continue
		}
		segURL, err := resolveRef(base, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("segment URL %q: %w", seg.URI, err)
		}
		segments = append(segments, Segment{
			URL:      segURL,
			Duration: seg.Duration,
			Sequence: media.SeqNo + uint64(i),
		})
	}
	return segments, nil
}

// fetch downloads and decodes a playlist, returning the final URL for
// relative reference resolution.
func (r *Resolver) fetch(ctx context.Context, rawURL string) (*url.URL, m3u8.Playlist, m3u8.ListType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("building playlist request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("fetching playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, 0, fmt.Errorf("fetching playlist %s: status %s", rawURL, resp.Status)
	}

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(resp.Body), true)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("decoding playlist %s: %w", rawURL, err)
	}

	final := resp.Request.URL
	return final, playlist, listType, nil
}

// bestVariant picks the variant with the highest bandwidth, breaking ties by
// resolution pixel count. Returns nil for a master with no variants.
func bestVariant(master *m3u8.MasterPlaylist) *m3u8.Variant {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if best == nil {
			best = v
			continue
		}
		if v.Bandwidth > best.Bandwidth {
			best = v
		} else if v.Bandwidth == best.Bandwidth &&
			resolutionPixels(v.Resolution) > resolutionPixels(best.Resolution) {
			best = v
		}
	}
	return best
}

// resolutionPixels parses a "WxH" resolution attribute into a pixel count.
// Malformed or missing resolutions count as zero.
func resolutionPixels(res string) int {
	parts := strings.SplitN(strings.ToLower(res), "x", 2)
	if len(parts) != 2 {
		return 0
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil {
		return 0
	}
	return w * h
}

// resolveRef makes ref absolute against base.
func resolveRef(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}
