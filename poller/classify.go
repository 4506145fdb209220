package poller

import "strings"

// placeholderField is what the device reports when it has no real value.
const placeholderField = "Unknown"

// Rules decide which content counts as a known source.
type Rules struct {
	Vendors  []string // exact vendor values in the player status
	ArtHosts []string // substrings of the album art URI
}

// DefaultRules recognise Tidal content.
var DefaultRules = Rules{
	Vendors:  []string{"Tidal"},
	ArtHosts: []string{"tidal.com", "listen.tidal"},
}

// HasVendorTag reports whether the status carries a recognised vendor.
func HasVendorTag(status *DeviceStatus, rules Rules) bool {
	if status == nil {
		return false
	}
	for _, v := range rules.Vendors {
		if status.Vendor == v {
			return true
		}
	}
	return false
}

// HasValidFields reports whether title and artist are real values.
func HasValidFields(meta *TrackMetadata) bool {
	if meta == nil {
		return false
	}
	return validField(meta.Title) && validField(meta.Artist)
}

func validField(s string) bool {
	return s != "" && s != placeholderField
}

// HasKnownArtHost reports whether the album art points at a recognised host.
func HasKnownArtHost(meta *TrackMetadata, rules Rules) bool {
	if meta == nil || meta.AlbumArtURI == "" {
		return false
	}
	for _, host := range rules.ArtHosts {
		if host != "" && strings.Contains(meta.AlbumArtURI, host) {
			return true
		}
	}
	return false
}

// IsKnownSource is the now-playing predicate:
// (vendor tag OR known art host) AND valid title/artist.
func IsKnownSource(status *DeviceStatus, meta *TrackMetadata, rules Rules) bool {
	return (HasVendorTag(status, rules) || HasKnownArtHost(meta, rules)) && HasValidFields(meta)
}
