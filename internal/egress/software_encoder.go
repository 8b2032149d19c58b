package egress

import (
	"fmt"

	"github.com/mcm001/v4l2-hevc-meme/internal/hevc"
)

// SoftwareEncoder is a pure-Go stand-in for a hardware/cgo HEVC encoder.
// It produces structurally valid Annex-B NAL units — correct headers,
// correct in-band parameter-set placement, correct GOP cadence — without
// encoding real picture content, so the rest of the pipeline (muxing,
// PTS pacing, RTCP BYE) can be built and tested without a hardware
// encoder or cgo.
//
// Grounded on teocci-go-stream-av/codec/fake's pattern of a minimal
// stand-in codec.
type SoftwareEncoder struct {
	width, height, gop int
	frameIndex         int

	// sliceBytes is how many payload bytes each encoded slice carries,
	// derived from DefaultBitrate and DefaultFramerate (8333 bytes), so
	// every slice exceeds the muxer's single-RTP-packet budget and
	// exercises FU fragmentation.
	sliceBytes int

	vps, sps, pps []byte
}

// NewSoftwareEncoder constructs a SoftwareEncoder for width x height
// frames, emitting an IDR (preceded by VPS/SPS/PPS) every gop frames.
func NewSoftwareEncoder(width, height, gop int) *SoftwareEncoder {
	if gop <= 0 {
		gop = DefaultGOPSize
	}
	dims := encodeDims(width, height)
	return &SoftwareEncoder{
		width:      width,
		height:     height,
		gop:        gop,
		sliceBytes: DefaultBitrate / DefaultFramerate / 8,
		vps:        nalUnit(hevc.NALTypeVPS, dims),
		sps:        nalUnit(hevc.NALTypeSPS, dims),
		pps:        nalUnit(hevc.NALTypePPS, []byte{0x00}),
	}
}

func encodeDims(width, height int) []byte {
	return []byte{
		byte(width >> 8), byte(width),
		byte(height >> 8), byte(height),
	}
}

func nalUnit(t hevc.NALType, payload []byte) []byte {
	header := hevc.MakeHeader(t)
	body := make([]byte, 0, 2+len(payload))
	body = append(body, header[0], header[1])
	body = append(body, payload...)
	return hevc.WithStartCode(body)
}

// Encode implements Encoder.
func (e *SoftwareEncoder) Encode(pts int64, frame Frame) ([]Packet, error) {
	if frame.Width != e.width || frame.Height != e.height {
		return nil, fmt.Errorf("software encoder: frame %dx%d does not match configured %dx%d",
			frame.Width, frame.Height, e.width, e.height)
	}
	if frame.Stride < frame.Width*3 {
		return nil, fmt.Errorf("software encoder: stride %d too small for width %d", frame.Stride, frame.Width)
	}
	need := frame.Stride * frame.Height
	if len(frame.Pix) < need {
		return nil, fmt.Errorf("software encoder: frame buffer too small, need %d bytes got %d", need, len(frame.Pix))
	}

	var packets []Packet
	if e.frameIndex%e.gop == 0 {
		packets = append(packets,
			Packet{PTS: pts, Data: e.vps},
			Packet{PTS: pts, Data: e.sps},
			Packet{PTS: pts, Data: e.pps},
			Packet{PTS: pts, Data: nalUnit(hevc.NALTypeIDRWRADL, e.slicePayload(frame)), KeyFrame: true},
		)
	} else {
		packets = append(packets, Packet{PTS: pts, Data: nalUnit(hevc.NALTypeTrailR, e.slicePayload(frame))})
	}

	e.frameIndex++
	return packets, nil
}

// slicePayload derives a deterministic, bitrate-sized payload from frame
// so slices are not all-identical and carry no decodable meaning.
func (e *SoftwareEncoder) slicePayload(frame Frame) []byte {
	n := e.sliceBytes
	if n < 1 {
		n = 1
	}
	payload := make([]byte, n)
	if len(frame.Pix) > 0 {
		for i := range payload {
			payload[i] = frame.Pix[i%len(frame.Pix)]
		}
	}
	return payload
}

// Flush implements Encoder. The software encoder buffers nothing between
// calls, so there is nothing to drain.
func (e *SoftwareEncoder) Flush() ([]Packet, error) {
	return nil, nil
}

// Close implements Encoder.
func (e *SoftwareEncoder) Close() error {
	return nil
}
