// Package hevc provides the small amount of HEVC/H.265 NAL-unit handling
// the egress pipeline needs: Annex-B start-code scanning and parameter-set
// bookkeeping. It does not parse SPS/PPS bitstream fields; callers get
// width/height from the published frame, not the codec.
package hevc

import "bytes"

// NALType is an HEVC NAL unit type (ITU-T H.265 Table 7-1).
type NALType uint8

const (
	NALTypeTrailN   NALType = 0
	NALTypeTrailR   NALType = 1
	NALTypeIDRWRADL NALType = 19
	NALTypeIDRNLP   NALType = 20
	NALTypeVPS      NALType = 32
	NALTypeSPS      NALType = 33
	NALTypePPS      NALType = 34
)

// IsIDR reports whether t marks a random-access keyframe.
func (t NALType) IsIDR() bool {
	return t == NALTypeIDRWRADL || t == NALTypeIDRNLP
}

func (t NALType) String() string {
	switch t {
	case NALTypeTrailN:
		return "TRAIL_N"
	case NALTypeTrailR:
		return "TRAIL_R"
	case NALTypeIDRWRADL:
		return "IDR_W_RADL"
	case NALTypeIDRNLP:
		return "IDR_N_LP"
	case NALTypeVPS:
		return "VPS"
	case NALTypeSPS:
		return "SPS"
	case NALTypePPS:
		return "PPS"
	default:
		return "NAL"
	}
}

// startCodeLen returns the length of the Annex-B start code at the front of
// buf (3 or 4 bytes), or 0 if buf does not begin with one.
func startCodeLen(buf []byte) int {
	switch {
	case len(buf) >= 4 && buf[0] == 0 && buf[1] == 0 && buf[2] == 0 && buf[3] == 1:
		return 4
	case len(buf) >= 3 && buf[0] == 0 && buf[1] == 0 && buf[2] == 1:
		return 3
	default:
		return 0
	}
}

// Type extracts the NAL unit type of the first NAL unit in an Annex-B
// bytestream. buf must begin with a start code. Spec: skip the 3- or
// 4-byte start code, read one byte, extract bits (b>>1)&0x3F.
func Type(buf []byte) (NALType, bool) {
	off := startCodeLen(buf)
	if off == 0 || off >= len(buf) {
		return 0, false
	}
	return NALType((buf[off] >> 1) & 0x3F), true
}

// Split breaks an Annex-B bytestream into individual NAL units, each
// without its start code. Malformed input (no start code at all) yields
// a single element spanning the whole buffer.
func Split(buf []byte) [][]byte {
	var units [][]byte
	for len(buf) > 0 {
		scLen := startCodeLen(buf)
		if scLen == 0 {
			units = append(units, buf)
			break
		}
		buf = buf[scLen:]

		next := bytes.Index(buf, []byte{0, 0, 1})
		if next < 0 {
			units = append(units, buf)
			break
		}
		// Trim a trailing zero byte from a 4-byte start code (00 00 00 01).
		end := next
		if end > 0 && buf[end-1] == 0 {
			end--
		}
		units = append(units, buf[:end])
		buf = buf[next:]
	}
	return units
}

// MakeHeader builds the 2-byte HEVC NAL unit header for t, with layer ID 0
// and temporal ID 0 (temporal_id_plus1 = 1).
func MakeHeader(t NALType) [2]byte {
	return [2]byte{
		byte(t) << 1,
		1,
	}
}

// WithStartCode prepends a 4-byte Annex-B start code to nal.
func WithStartCode(nal []byte) []byte {
	out := make([]byte, 4+len(nal))
	out[3] = 1
	copy(out[4:], nal)
	return out
}

// TrimStartCode returns buf with any leading 3- or 4-byte Annex-B start
// code removed. buf is returned unchanged if it has none.
func TrimStartCode(buf []byte) []byte {
	if n := startCodeLen(buf); n > 0 {
		return buf[n:]
	}
	return buf
}
