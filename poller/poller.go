package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"nowplaying-proxy-go/logcolors"
	"nowplaying-proxy-go/services/upstream"
	"nowplaying-proxy-go/stats"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultInterval       = 2 * time.Second
	DefaultLoadingTimeout = 5 * time.Second

	statusCommand = "getPlayerStatus"
	metaCommand   = "getMetaInfo"
)

// Fetcher is the upstream contract the poller needs.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (json.RawMessage, error)
}

// Config holds poller configuration
type Config struct {
	DeviceBaseURL  string        // e.g. https://192.168.1.167
	ProxyURL       string        // when set, device calls go through this /proxy endpoint
	Interval       time.Duration // time between ticks
	LoadingTimeout time.Duration // watchdog for the initial Loading phase
	ErrorThreshold int           // consecutive status failures before surfacing an error
	Rules          Rules
}

// Poller drives the Machine from a periodic device poll.
type Poller struct {
	fetcher        Fetcher
	statusURL      string
	metaURL        string
	interval       time.Duration
	loadingTimeout time.Duration
	machine        *Machine

	mu       sync.RWMutex
	snapshot State
}

// New creates a poller. Call Run to start it.
func New(fetcher Fetcher, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LoadingTimeout <= 0 {
		cfg.LoadingTimeout = DefaultLoadingTimeout
	}
	if len(cfg.Rules.Vendors) == 0 && len(cfg.Rules.ArtHosts) == 0 {
		cfg.Rules = DefaultRules
	}

	m := NewMachine(cfg.Rules, cfg.ErrorThreshold)
	return &Poller{
		fetcher:        fetcher,
		statusURL:      commandURL(cfg, statusCommand),
		metaURL:        commandURL(cfg, metaCommand),
		interval:       cfg.Interval,
		loadingTimeout: cfg.LoadingTimeout,
		machine:        m,
		snapshot:       m.State(),
	}
}

// commandURL builds the URL for a device command, wrapped in the proxy
// endpoint when one is configured.
func commandURL(cfg Config, command string) string {
	device := fmt.Sprintf("%s/httpapi.asp?command=%s", strings.TrimRight(cfg.DeviceBaseURL, "/"), command)
	if cfg.ProxyURL == "" {
		return device
	}
	return cfg.ProxyURL + "?url=" + url.QueryEscape(device)
}

// Snapshot returns the latest state. Safe for concurrent use.
func (p *Poller) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Run polls until ctx is cancelled. The first tick starts immediately.
// A tick still in flight when the ticker fires causes that tick to be
// skipped. Results arriving after cancellation are discarded.
func (p *Poller) Run(ctx context.Context) error {
	log.Infof("%s Polling %s every %v", logcolors.LogPoller, p.statusURL, p.interval)

	results := make(chan Observation, 1)
	inFlight := false

	startTick := func() {
		inFlight = true
		go func() {
			obs := p.observe(ctx)
			select {
			case results <- obs:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	watchdog := time.NewTimer(p.loadingTimeout)
	defer watchdog.Stop()

	startTick()

	for {
		select {
		case <-ctx.Done():
			log.Infof("%s Stopped", logcolors.LogPoller)
			return nil

		case <-ticker.C:
			if inFlight {
				log.Debugf("%s Previous tick still in flight, skipping", logcolors.LogPoller)
				continue
			}
			startTick()

		case obs := <-results:
			inFlight = false
			if ctx.Err() != nil {
				return nil
			}
			p.apply(obs)

		case <-watchdog.C:
			p.forceStandby()
		}
	}
}

// observe performs one tick's fetches: status, then metadata only if playing.
func (p *Poller) observe(ctx context.Context) Observation {
	var obs Observation

	status, err := fetchDecoded[DeviceStatus](ctx, p.fetcher, p.statusURL)
	if err != nil {
		obs.StatusErr = err
		return obs
	}
	obs.Status = status

	if !status.IsPlaying() {
		return obs
	}

	meta, err := fetchDecoded[MetaInfoResponse](ctx, p.fetcher, p.metaURL)
	if err != nil {
		obs.MetaErr = err
		return obs
	}
	obs.Meta = meta.MetaData
	return obs
}

func fetchDecoded[T any](ctx context.Context, f Fetcher, target string) (*T, error) {
	body, err := f.FetchJSON(ctx, target)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &upstream.FetchError{Kind: upstream.KindMalformed, URL: target, Err: err}
	}
	return &v, nil
}

func (p *Poller) apply(obs Observation) {
	prev := p.machine.State()
	next := p.machine.Apply(obs)

	stats.Get().RecordPollerTick(obs.StatusErr != nil)

	switch {
	case obs.StatusErr != nil && next.Error == "":
		log.Warnf("%s Status fetch failed (error count: %d): %v", logcolors.LogPoller, next.ErrorCount, obs.StatusErr)
	case obs.StatusErr != nil:
		log.Errorf("%s %s (error count: %d)", logcolors.LogPoller, next.Error, next.ErrorCount)
	case obs.MetaErr != nil:
		log.Warnf("%s Metadata fetch failed, showing standby: %v", logcolors.LogPoller, obs.MetaErr)
	}

	if prev.Mode != next.Mode {
		if next.Mode == ModeNowPlaying {
			log.Infof("%s Now playing: %s - %s", logcolors.LogPoller, next.Track.Artist, next.Track.Title)
		} else {
			log.Infof("%s Mode %s -> %s", logcolors.LogPoller, prev.Mode, next.Mode)
		}
	}

	p.publish(next)
}

func (p *Poller) forceStandby() {
	prev := p.machine.State()
	next := p.machine.ForceStandby()
	if prev.Loading && !next.Loading {
		log.Warnf("%s No result within %v, forcing standby", logcolors.LogPoller, p.loadingTimeout)
	}
	p.publish(next)
}

func (p *Poller) publish(s State) {
	p.mu.Lock()
	p.snapshot = s
	p.mu.Unlock()
}
