package rtsp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcm001/v4l2-hevc-meme/internal/registry"
)

func TestListenerBindFailsOnOccupiedPort(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	l := NewListener(registry.New(), net.IPv4(127, 0, 0, 1))
	err = l.Bind(occupied.Addr().String())
	require.Error(t, err)
}

func TestListenerBindSucceedsOnFreePort(t *testing.T) {
	l := NewListener(registry.New(), net.IPv4(127, 0, 0, 1))
	require.NoError(t, l.Bind("127.0.0.1:0"))
}
