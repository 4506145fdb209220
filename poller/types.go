package poller

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexString decodes a JSON string or number into a string. The device
// reports audio properties as either, depending on firmware.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// DeviceStatus is the subset of getPlayerStatus the poller reads.
type DeviceStatus struct {
	Status string     `json:"status"`
	Vendor string     `json:"vendor"`
	Mode   FlexString `json:"mode"`
}

// IsPlaying reports whether the device is actively playing.
func (s DeviceStatus) IsPlaying() bool {
	return s.Status == "play"
}

// TrackMetadata is the metaData object of getMetaInfo.
type TrackMetadata struct {
	Title       string     `json:"title"`
	Artist      string     `json:"artist"`
	Album       string     `json:"album,omitempty"`
	AlbumArtURI string     `json:"albumArtURI"`
	BitRate     FlexString `json:"bitRate"`
	BitDepth    FlexString `json:"bitDepth"`
	SampleRate  FlexString `json:"sampleRate"`
}

// MetaInfoResponse is the getMetaInfo envelope.
type MetaInfoResponse struct {
	MetaData *TrackMetadata `json:"metaData"`
}
