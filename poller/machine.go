package poller

import (
	"errors"
	"fmt"
	"time"

	"nowplaying-proxy-go/services/upstream"
)

// Mode is the display decision.
type Mode int

const (
	ModeLoading Mode = iota
	ModeStandby
	ModeNowPlaying
)

func (m Mode) String() string {
	switch m {
	case ModeLoading:
		return "loading"
	case ModeStandby:
		return "standby"
	case ModeNowPlaying:
		return "nowplaying"
	default:
		return "unknown"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// DefaultErrorThreshold is how many consecutive status failures are absorbed
// before the error is surfaced.
const DefaultErrorThreshold = 3

// Observation is the outcome of one tick's fetches.
type Observation struct {
	Status    *DeviceStatus
	StatusErr error
	Meta      *TrackMetadata
	MetaErr   error
}

// State is what the display renders from.
type State struct {
	Mode       Mode           `json:"mode"`
	Loading    bool           `json:"loading"`
	Track      *TrackMetadata `json:"track,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorCount int            `json:"errorCount"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Machine holds the poller state. It is not safe for concurrent use; the
// poll loop is its only writer.
type Machine struct {
	state     State
	rules     Rules
	threshold int
	now       func() time.Time
}

func NewMachine(rules Rules, threshold int) *Machine {
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	return &Machine{
		state:     State{Mode: ModeLoading, Loading: true},
		rules:     rules,
		threshold: threshold,
		now:       time.Now,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Apply folds one tick into the state and returns the result.
func (m *Machine) Apply(obs Observation) State {
	if obs.StatusErr != nil || obs.Status == nil {
		m.state.ErrorCount++
		if m.state.ErrorCount < m.threshold {
			return m.state
		}
		m.state.Error = connectionError(obs.StatusErr)
		m.toStandby()
		return m.state
	}

	m.state.ErrorCount = 0
	m.state.Error = ""

	switch {
	case !obs.Status.IsPlaying():
		m.toStandby()
	case obs.MetaErr != nil:
		m.toStandby()
	case IsKnownSource(obs.Status, obs.Meta, m.rules):
		track := *obs.Meta
		m.state.Mode = ModeNowPlaying
		m.state.Loading = false
		m.state.Track = &track
		m.state.UpdatedAt = m.now()
	default:
		m.toStandby()
	}
	return m.state
}

// ForceStandby ends the loading phase if no tick has done so yet.
func (m *Machine) ForceStandby() State {
	if m.state.Loading {
		m.toStandby()
	}
	return m.state
}

func (m *Machine) toStandby() {
	m.state.Mode = ModeStandby
	m.state.Loading = false
	m.state.Track = nil
	m.state.UpdatedAt = m.now()
}

func connectionError(err error) string {
	if err == nil {
		return "Connection error: no status"
	}
	var fe *upstream.FetchError
	if errors.As(err, &fe) {
		if fe.Kind == upstream.KindStatus {
			return fmt.Sprintf("Connection error: %d", fe.StatusCode)
		}
		return fmt.Sprintf("Connection error: %s", fe.Kind)
	}
	return fmt.Sprintf("Connection error: %v", err)
}
