package poller

import (
	"errors"
	"net/http"
	"testing"

	"nowplaying-proxy-go/services/upstream"
)

func statusErr(code int) error {
	return &upstream.FetchError{Kind: upstream.KindStatus, StatusCode: code, Err: errors.New("bad status")}
}

func playing(vendor string) *DeviceStatus {
	return &DeviceStatus{Status: "play", Vendor: vendor}
}

var tidalTrack = &TrackMetadata{Title: "A", Artist: "B", AlbumArtURI: "http://tidal.com/images/x/640x640.jpg"}

func TestMachine_InitialState(t *testing.T) {
	m := NewMachine(DefaultRules, 0)
	s := m.State()

	if s.Mode != ModeLoading {
		t.Errorf("Expected initial mode loading, got %s", s.Mode)
	}
	if !s.Loading {
		t.Error("Expected loading flag set initially")
	}
	if m.threshold != DefaultErrorThreshold {
		t.Errorf("Expected default threshold %d, got %d", DefaultErrorThreshold, m.threshold)
	}
}

func TestMachine_Apply(t *testing.T) {
	tests := []struct {
		name     string
		obs      Observation
		expected Mode
	}{
		{
			name:     "stopped goes to standby regardless of metadata",
			obs:      Observation{Status: &DeviceStatus{Status: "stop", Vendor: "Tidal"}, Meta: tidalTrack},
			expected: ModeStandby,
		},
		{
			name:     "invalid fields go to standby",
			obs:      Observation{Status: playing(""), Meta: &TrackMetadata{Title: "", Artist: "X"}},
			expected: ModeStandby,
		},
		{
			name:     "known source goes to now playing",
			obs:      Observation{Status: playing("Tidal"), Meta: tidalTrack},
			expected: ModeNowPlaying,
		},
		{
			name:     "metadata failure goes to standby",
			obs:      Observation{Status: playing("Tidal"), MetaErr: statusErr(http.StatusBadGateway)},
			expected: ModeStandby,
		},
		{
			name:     "single status failure keeps loading",
			obs:      Observation{StatusErr: statusErr(http.StatusServiceUnavailable)},
			expected: ModeLoading,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(DefaultRules, 3)
			s := m.Apply(tt.obs)
			if s.Mode != tt.expected {
				t.Errorf("Expected mode %s, got %s", tt.expected, s.Mode)
			}
		})
	}
}

func TestMachine_NowPlayingStoresTrackCopy(t *testing.T) {
	m := NewMachine(DefaultRules, 3)
	meta := &TrackMetadata{Title: "A", Artist: "B", AlbumArtURI: "http://tidal.com/images/x/640x640.jpg"}

	s := m.Apply(Observation{Status: playing("Tidal"), Meta: meta})
	meta.Title = "mutated"

	if s.Track == nil || s.Track.Title != "A" {
		t.Errorf("Expected stored track to be independent of input, got %+v", s.Track)
	}
	if s.Loading {
		t.Error("Expected loading flag cleared")
	}

	s = m.Apply(Observation{Status: &DeviceStatus{Status: "pause"}})
	if s.Mode != ModeStandby {
		t.Errorf("Expected standby after pause, got %s", s.Mode)
	}
	if s.Track != nil {
		t.Error("Expected track cleared on standby")
	}
}

func TestMachine_ErrorThreshold(t *testing.T) {
	m := NewMachine(DefaultRules, 3)
	m.Apply(Observation{Status: playing("Tidal"), Meta: tidalTrack})

	for i := 1; i <= 2; i++ {
		s := m.Apply(Observation{StatusErr: statusErr(http.StatusInternalServerError)})
		if s.Mode != ModeNowPlaying {
			t.Errorf("Failure %d: expected mode to stay nowplaying, got %s", i, s.Mode)
		}
		if s.Error != "" {
			t.Errorf("Failure %d: expected no surfaced error, got %q", i, s.Error)
		}
	}

	s := m.Apply(Observation{StatusErr: statusErr(http.StatusInternalServerError)})
	if s.Mode != ModeStandby {
		t.Errorf("Expected standby after 3 failures, got %s", s.Mode)
	}
	if s.Error != "Connection error: 500" {
		t.Errorf("Expected connection error message, got %q", s.Error)
	}

	s = m.Apply(Observation{StatusErr: statusErr(http.StatusInternalServerError)})
	if s.Mode != ModeStandby {
		t.Errorf("Expected 4th failure to stay in standby, got %s", s.Mode)
	}
	if s.ErrorCount != 4 {
		t.Errorf("Expected error count 4, got %d", s.ErrorCount)
	}
	if s.Error == "" {
		t.Error("Expected error message to remain")
	}
}

func TestMachine_TransientFailureResets(t *testing.T) {
	m := NewMachine(DefaultRules, 3)

	s := m.Apply(Observation{StatusErr: statusErr(http.StatusServiceUnavailable)})
	if s.ErrorCount != 1 {
		t.Fatalf("Expected error count 1, got %d", s.ErrorCount)
	}
	if s.Mode != ModeLoading {
		t.Errorf("Expected no forced mode change, got %s", s.Mode)
	}

	s = m.Apply(Observation{Status: &DeviceStatus{Status: "stop"}})
	if s.ErrorCount != 0 {
		t.Errorf("Expected error count reset to 0, got %d", s.ErrorCount)
	}
}

func TestMachine_RecoveryClearsError(t *testing.T) {
	m := NewMachine(DefaultRules, 3)
	for i := 0; i < 3; i++ {
		m.Apply(Observation{StatusErr: errors.New("dial tcp: connection refused")})
	}
	if m.State().Error == "" {
		t.Fatal("Expected surfaced error")
	}

	s := m.Apply(Observation{Status: playing("Tidal"), Meta: tidalTrack})
	if s.Error != "" {
		t.Errorf("Expected error cleared after recovery, got %q", s.Error)
	}
	if s.Mode != ModeNowPlaying {
		t.Errorf("Expected nowplaying after recovery, got %s", s.Mode)
	}
}

func TestMachine_ForceStandby(t *testing.T) {
	m := NewMachine(DefaultRules, 3)

	s := m.ForceStandby()
	if s.Mode != ModeStandby || s.Loading {
		t.Errorf("Expected standby without loading, got %s loading=%v", s.Mode, s.Loading)
	}

	m.Apply(Observation{Status: playing("Tidal"), Meta: tidalTrack})
	s = m.ForceStandby()
	if s.Mode != ModeNowPlaying {
		t.Errorf("Expected ForceStandby to be a no-op after loading ended, got %s", s.Mode)
	}
}

func TestConnectionError(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{statusErr(503), "Connection error: 503"},
		{&upstream.FetchError{Kind: upstream.KindTimeout, Err: errors.New("deadline")}, "Connection error: timeout"},
		{errors.New("boom"), "Connection error: boom"},
		{nil, "Connection error: no status"},
	}
	for _, tt := range tests {
		if got := connectionError(tt.err); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}

func TestModeString(t *testing.T) {
	tests := []struct {
		mode     Mode
		expected string
	}{
		{ModeLoading, "loading"},
		{ModeStandby, "standby"},
		{ModeNowPlaying, "nowplaying"},
		{Mode(7), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}
