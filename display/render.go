package display

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"nowplaying-proxy-go/poller"
)

const (
	unknownField = "Unknown"
	zeroField    = "0"

	horizontalTitleMax  = 30
	horizontalArtistMax = 25
)

// View is the rendering decision handed to the display client.
type View struct {
	Mode       string          `json:"mode"`
	Layout     Layout          `json:"layout"`
	Error      string          `json:"error,omitempty"`
	Standby    *StandbyView    `json:"standby,omitempty"`
	NowPlaying *NowPlayingView `json:"nowPlaying,omitempty"`
}

// StandbyView is the rotating image shown when nothing recognised is playing.
type StandbyView struct {
	Image           string `json:"image,omitempty"`
	Index           int    `json:"index"`
	Count           int    `json:"count"`
	RotationSeconds int    `json:"rotationSeconds"`
}

// NowPlayingView is the track card. Audio details are only filled for the
// horizontal layout.
type NowPlayingView struct {
	AlbumArt     string `json:"albumArt,omitempty"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	BitRate      string `json:"bitRate,omitempty"`
	BitDepth     string `json:"bitDepth,omitempty"`
	SampleRate   string `json:"sampleRate,omitempty"`
	AudioDetails string `json:"audioDetails,omitempty"`
}

// Render decides what the display shows. Loading and any surfaced error both
// render the standby visual.
func Render(state poller.State, layout Layout, rot *Rotator) View {
	if layout == "" {
		layout = LayoutHorizontal
	}
	view := View{
		Mode:   state.Mode.String(),
		Layout: layout,
		Error:  state.Error,
	}

	if state.Mode == poller.ModeNowPlaying && state.Track != nil && state.Error == "" {
		view.NowPlaying = nowPlaying(state.Track, layout)
		return view
	}

	view.Standby = standby(rot)
	return view
}

func standby(rot *Rotator) *StandbyView {
	if rot == nil {
		return &StandbyView{Index: -1}
	}
	image, idx := rot.Current()
	return &StandbyView{
		Image:           image,
		Index:           idx,
		Count:           len(rot.Images()),
		RotationSeconds: int(rot.Interval().Seconds()),
	}
}

func nowPlaying(track *poller.TrackMetadata, layout Layout) *NowPlayingView {
	v := &NowPlayingView{
		AlbumArt: ProxiedArtURL(track.AlbumArtURI),
		Title:    orDefault(track.Title, unknownField),
		Artist:   orDefault(track.Artist, unknownField),
	}
	if layout == LayoutVertical {
		return v
	}

	v.Title = truncate(v.Title, horizontalTitleMax)
	v.Artist = truncate(v.Artist, horizontalArtistMax)
	v.BitRate = orDefault(track.BitRate.String(), unknownField)
	v.BitDepth = orDefault(track.BitDepth.String(), zeroField)
	v.SampleRate = orDefault(track.SampleRate.String(), zeroField)
	v.AudioDetails = FormatAudioDetails(v.BitRate, v.BitDepth, v.SampleRate)
	return v
}

// ProxiedArtURL routes album art through the caching image proxy.
func ProxiedArtURL(art string) string {
	if art == "" {
		return ""
	}
	return "/image-proxy?url=" + url.QueryEscape(art)
}

// FormatAudioDetails renders e.g. "1411 kbps 16-bit/44.1 kHz". It returns ""
// when any value is missing or a placeholder.
func FormatAudioDetails(bitRate, bitDepth, sampleRate string) string {
	if bitRate == "" || bitDepth == "" || sampleRate == "" ||
		bitRate == unknownField || bitDepth == zeroField || sampleRate == zeroField {
		return ""
	}

	kbps := bitRate
	if _, ok := leadingInt(bitRate); ok {
		kbps = bitRate + " kbps"
	}

	depth := bitDepth
	if _, ok := leadingInt(bitDepth); ok {
		depth = bitDepth + "-bit"
	}

	rate := sampleRate
	if hz, ok := leadingInt(sampleRate); ok {
		if hz > 1000 {
			rate = fmt.Sprintf("%.1f kHz", float64(hz)/1000)
		} else {
			rate = fmt.Sprintf("%d kHz", hz)
		}
	}

	return fmt.Sprintf("%s %s/%s", kbps, depth, rate)
}

// leadingInt parses the integer prefix of s, ignoring leading spaces.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
