package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nowplaying-proxy-go/services/upstream"
)

type fakeDevice struct {
	mu         sync.Mutex
	status     string
	meta       string
	statusCode int
	block      chan struct{}
	statusHits atomic.Int32
	metaHits   atomic.Int32
	order      []string
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.block != nil {
		select {
		case <-d.block:
		case <-r.Context().Done():
			return
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	command := r.URL.Query().Get("command")
	d.order = append(d.order, command)

	switch command {
	case "getPlayerStatus":
		d.statusHits.Add(1)
		if d.statusCode != 0 {
			w.WriteHeader(d.statusCode)
			return
		}
		w.Write([]byte(d.status))
	case "getMetaInfo":
		d.metaHits.Add(1)
		w.Write([]byte(d.meta))
	default:
		http.NotFound(w, r)
	}
}

func (d *fakeDevice) set(status, meta string, code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status, d.meta, d.statusCode = status, meta, code
}

func newTestPoller(serverURL string, interval, loadingTimeout time.Duration) *Poller {
	return New(upstream.NewClient(time.Second, time.Second), Config{
		DeviceBaseURL:  serverURL,
		Interval:       interval,
		LoadingTimeout: loadingTimeout,
		ErrorThreshold: 3,
	})
}

func waitFor(t *testing.T, p *Poller, timeout time.Duration, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s := p.Snapshot(); cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	s := p.Snapshot()
	t.Fatalf("Condition not met within %v, last state: %+v", timeout, s)
	return s
}

func TestCommandURL(t *testing.T) {
	direct := commandURL(Config{DeviceBaseURL: "https://192.168.1.167/"}, "getPlayerStatus")
	if direct != "https://192.168.1.167/httpapi.asp?command=getPlayerStatus" {
		t.Errorf("Unexpected direct URL: %s", direct)
	}

	proxied := commandURL(Config{DeviceBaseURL: "https://192.168.1.167", ProxyURL: "http://127.0.0.1:3000/proxy"}, "getMetaInfo")
	u, err := url.Parse(proxied)
	if err != nil {
		t.Fatalf("Invalid proxied URL: %v", err)
	}
	if u.Path != "/proxy" {
		t.Errorf("Expected /proxy path, got %s", u.Path)
	}
	if got := u.Query().Get("url"); got != "https://192.168.1.167/httpapi.asp?command=getMetaInfo" {
		t.Errorf("Expected device URL in url parameter, got %q", got)
	}
}

func TestPoller_NowPlaying(t *testing.T) {
	device := &fakeDevice{}
	device.set(`{"status":"play","vendor":"Tidal"}`, `{"metaData":{"title":"A","artist":"B","albumArtURI":"http://tidal.com/images/x/640x640.jpg","bitRate":320}}`, 0)
	server := httptest.NewServer(device)
	defer server.Close()

	p := newTestPoller(server.URL, 20*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	s := waitFor(t, p, 2*time.Second, func(s State) bool { return s.Mode == ModeNowPlaying })
	if s.Track.Title != "A" || s.Track.Artist != "B" {
		t.Errorf("Unexpected track: %+v", s.Track)
	}
	if s.Track.BitRate != "320" {
		t.Errorf("Expected bitRate 320, got %q", s.Track.BitRate)
	}

	device.mu.Lock()
	first, second := device.order[0], device.order[1]
	device.mu.Unlock()
	if first != "getPlayerStatus" || second != "getMetaInfo" {
		t.Errorf("Expected status before metadata, got %s then %s", first, second)
	}
}

func TestPoller_NotPlayingSkipsMetadata(t *testing.T) {
	device := &fakeDevice{}
	device.set(`{"status":"stop"}`, `{}`, 0)
	server := httptest.NewServer(device)
	defer server.Close()

	p := newTestPoller(server.URL, 20*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	waitFor(t, p, 2*time.Second, func(s State) bool { return s.Mode == ModeStandby })
	time.Sleep(60 * time.Millisecond)

	if hits := device.metaHits.Load(); hits != 0 {
		t.Errorf("Expected no metadata fetch while stopped, got %d", hits)
	}
}

func TestPoller_SustainedFailureSurfacesError(t *testing.T) {
	device := &fakeDevice{}
	device.set("", "", http.StatusServiceUnavailable)
	server := httptest.NewServer(device)
	defer server.Close()

	p := newTestPoller(server.URL, 10*time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	s := waitFor(t, p, 2*time.Second, func(s State) bool { return s.ErrorCount >= 3 })
	if s.Mode != ModeStandby {
		t.Errorf("Expected standby after sustained failure, got %s", s.Mode)
	}
	if s.Error != "Connection error: 503" {
		t.Errorf("Expected surfaced error, got %q", s.Error)
	}
}

func TestPoller_LoadingWatchdog(t *testing.T) {
	device := &fakeDevice{block: make(chan struct{})}
	server := httptest.NewServer(device)
	defer server.Close()
	defer close(device.block)

	p := newTestPoller(server.URL, 10*time.Millisecond, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	go p.Run(ctx)

	s := waitFor(t, p, time.Second, func(s State) bool { return !s.Loading })
	if s.Mode != ModeStandby {
		t.Errorf("Expected watchdog to force standby, got %s", s.Mode)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected watchdog to wait for its timeout, fired after %v", elapsed)
	}
	if hits := device.statusHits.Load(); hits != 0 {
		t.Errorf("Expected blocked request to be the only tick, got %d completed", hits)
	}
}

func TestPoller_CancelStopsRunAndDropsResults(t *testing.T) {
	device := &fakeDevice{block: make(chan struct{})}
	device.set(`{"status":"play","vendor":"Tidal"}`, `{"metaData":{"title":"A","artist":"B"}}`, 0)
	server := httptest.NewServer(device)
	defer server.Close()

	p := newTestPoller(server.URL, 10*time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean stop, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	close(device.block)
	time.Sleep(30 * time.Millisecond)

	if s := p.Snapshot(); s.Mode != ModeLoading {
		t.Errorf("Expected no result applied after cancel, got %s", s.Mode)
	}
}
