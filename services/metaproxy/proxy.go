package metaproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/stats"

	log "github.com/sirupsen/logrus"
)

const (
	artHostPattern = "tidal.com/images"
	lowResSegment  = "/640x640.jpg"
	highResSegment = "/1280x1280.jpg"
)

var ErrMissingURL = errors.New("missing url parameter")

// Fetcher is the upstream contract the proxy needs.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (json.RawMessage, error)
}

// Proxy forwards device API calls and returns their JSON, upgrading the
// album art of metadata responses to the high resolution variant.
type Proxy struct {
	fetcher    Fetcher
	upgradeArt bool
}

func New(fetcher Fetcher, upgradeArt bool) *Proxy {
	return &Proxy{fetcher: fetcher, upgradeArt: upgradeArt}
}

// Proxy fetches targetURL. The body is returned byte for byte unless it is a
// metadata response whose album art can be upgraded.
func (p *Proxy) Proxy(ctx context.Context, targetURL string) ([]byte, error) {
	if targetURL == "" {
		return nil, ErrMissingURL
	}

	log.Infof("%s Fetching data from: %s", logcolors.LogMetaProxy, targetURL)
	body, err := p.fetcher.FetchJSON(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	if !p.upgradeArt {
		return body, nil
	}
	if out, ok := rewriteAlbumArt(body); ok {
		return out, nil
	}
	return body, nil
}

// UpgradeArtURI maps a low resolution artwork URI on the known content host to
// its high resolution equivalent. Only the first occurrence is replaced and no
// other resolution is touched.
func UpgradeArtURI(uri string) (string, bool) {
	if !strings.Contains(uri, artHostPattern) || !strings.Contains(uri, lowResSegment) {
		return uri, false
	}
	return strings.Replace(uri, lowResSegment, highResSegment, 1), true
}

// rewriteAlbumArt looks for {"metaData": {"albumArtURI": "..."}} and upgrades
// that one field. Every other member keeps its raw encoding.
func rewriteAlbumArt(body []byte) ([]byte, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, false
	}
	rawMeta, ok := top["metaData"]
	if !ok {
		return nil, false
	}

	var meta map[string]json.RawMessage
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, false
	}
	rawArt, ok := meta["albumArtURI"]
	if !ok {
		return nil, false
	}

	var art string
	if err := json.Unmarshal(rawArt, &art); err != nil {
		return nil, false
	}
	upgraded, ok := UpgradeArtURI(art)
	if !ok {
		return nil, false
	}

	encodedArt, err := encode(upgraded)
	if err != nil {
		return nil, false
	}
	meta["albumArtURI"] = encodedArt

	encodedMeta, err := encode(meta)
	if err != nil {
		return nil, false
	}
	top["metaData"] = encodedMeta

	out, err := encode(top)
	if err != nil {
		return nil, false
	}

	stats.Get().RecordArtUpgrade()
	log.Infof("%s Upgraded album art URL in API response: %s", logcolors.LogArtUpgrade, upgraded)
	return out, true
}

// encode marshals v without HTML escaping so URLs keep their literal '&'.
func encode(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
