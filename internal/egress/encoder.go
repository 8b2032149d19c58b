package egress

// Frame is one raw image submitted to an Encoder.
type Frame struct {
	Width, Height, Stride int
	Pix                    []byte // 24-bit packed BGR
}

// Packet is one encoded access unit: an Annex-B bytestream containing one
// NAL unit. Parameter sets and slices are emitted as separate packets so
// the muxer's "inspect the NAL in the packet" keyframe check always has
// exactly one NAL to inspect.
type Packet struct {
	PTS      int64 // 90kHz ticks
	Data     []byte
	KeyFrame bool
}

// Encoder is a pluggable codec contract: implementers may swap in any
// HEVC encoder that meets it, hardware encoders included. An Encoder must
// embed VPS/SPS/PPS in-band ahead of every IDR — the only way a client
// without the SDP's sprop-* fields can decode, since DESCRIBE deliberately
// omits them.
type Encoder interface {
	// Encode submits one raw frame at pts (90kHz ticks, monotonic within
	// a session) and returns zero or more encoded packets.
	Encode(pts int64, frame Frame) ([]Packet, error)

	// Flush drains any packets buffered inside the encoder. Called once,
	// at pipeline shutdown, after the last Encode call.
	Flush() ([]Packet, error)

	Close() error
}
