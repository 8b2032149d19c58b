package egress

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// BuildSDP renders the session description returned by DESCRIBE. It
// deliberately omits sprop-vps/sprop-sps/sprop-pps: parameter sets travel
// in-band ahead of every IDR, so a client that only reads the SDP cannot
// decode until the first keyframe arrives.
//
// Rebuilt per stream rather than once at startup, since stream
// dimensions are only known after the first PublishFrame call.
func BuildSDP(streamName string, width, height, payloadType int, serverAddr string) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      0,
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: serverAddr,
		},
		SessionName: sdp.SessionName(streamName),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: serverAddr},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "video",
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{fmt.Sprintf("%d", payloadType)},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: fmt.Sprintf("%d H265/90000", payloadType)},
					{Key: "control", Value: "trackID=0"},
					{Key: "framerate", Value: fmt.Sprintf("%d", DefaultFramerate)},
					{Key: "x-dimensions", Value: fmt.Sprintf("%d,%d", width, height)},
				},
			},
		},
	}

	return desc.Marshal()
}
