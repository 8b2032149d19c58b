package hevc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeHeaderSlice(t NALType) []byte {
	h := MakeHeader(t)
	return h[:]
}

func TestTypeSkipsStartCode(t *testing.T) {
	vps := WithStartCode(append(makeHeaderSlice(NALTypeVPS), 0xAA, 0xBB))
	typ, ok := Type(vps)
	require.True(t, ok)
	require.Equal(t, NALTypeVPS, typ)
}

func Test3ByteStartCode(t *testing.T) {
	buf := append([]byte{0, 0, 1}, makeHeaderSlice(NALTypeIDRWRADL)...)
	typ, ok := Type(buf)
	require.True(t, ok)
	require.True(t, typ.IsIDR())
}

func TestTypeNoStartCode(t *testing.T) {
	_, ok := Type([]byte{1, 2, 3})
	require.False(t, ok)
}

func TestIsIDR(t *testing.T) {
	require.True(t, NALTypeIDRWRADL.IsIDR())
	require.True(t, NALTypeIDRNLP.IsIDR())
	require.False(t, NALTypeTrailR.IsIDR())
	require.False(t, NALTypeVPS.IsIDR())
}

func TestSplit(t *testing.T) {
	vps := WithStartCode(append(makeHeaderSlice(NALTypeVPS), 1))
	sps := WithStartCode(append(makeHeaderSlice(NALTypeSPS), 2, 3))
	pps := WithStartCode(append(makeHeaderSlice(NALTypePPS), 4))
	idr := WithStartCode(append(makeHeaderSlice(NALTypeIDRWRADL), 5, 6, 7))

	buf := bytes.Join([][]byte{vps, sps, pps, idr}, nil)
	units := Split(buf)
	require.Len(t, units, 4)

	wantTypes := []NALType{NALTypeVPS, NALTypeSPS, NALTypePPS, NALTypeIDRWRADL}
	for i, u := range units {
		typ := NALType((u[0] >> 1) & 0x3F)
		require.Equal(t, wantTypes[i], typ, "unit %d", i)
	}
}

func TestTrimStartCodeRemoves4ByteCode(t *testing.T) {
	nal := append(makeHeaderSlice(NALTypeIDRWRADL), 9, 9)
	buf := WithStartCode(nal)
	require.Equal(t, nal, TrimStartCode(buf))
}

func TestTrimStartCodeRemoves3ByteCode(t *testing.T) {
	nal := append(makeHeaderSlice(NALTypeSPS), 1)
	buf := append([]byte{0, 0, 1}, nal...)
	require.Equal(t, nal, TrimStartCode(buf))
}

func TestTrimStartCodeLeavesUnprefixedDataAlone(t *testing.T) {
	buf := []byte{9, 9, 9}
	require.Equal(t, buf, TrimStartCode(buf))
}

func TestMakeHeaderRoundTrip(t *testing.T) {
	for _, typ := range []NALType{NALTypeVPS, NALTypeSPS, NALTypePPS, NALTypeIDRWRADL, NALTypeIDRNLP, NALTypeTrailR} {
		h := MakeHeader(typ)
		got := NALType((h[0] >> 1) & 0x3F)
		require.Equal(t, typ, got)
	}
}
