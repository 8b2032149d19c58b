package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequireUnicastClientPortAccepted(t *testing.T) {
	h, err := Parse([]string{"RTP/AVP;unicast;client_port=5000-5001"})
	require.NoError(t, err)

	port, err := RequireUnicastClientPort(h)
	require.NoError(t, err)
	require.Equal(t, 5000, port)
}

func TestRequireUnicastClientPortRejectsMulticast(t *testing.T) {
	h, err := Parse([]string{"RTP/AVP;multicast;ttl=16"})
	require.NoError(t, err)

	_, err = RequireUnicastClientPort(h)
	require.ErrorIs(t, err, ErrMulticastNotSupported)
}

func TestRequireUnicastClientPortRejectsMissingClientPort(t *testing.T) {
	h, err := Parse([]string{"RTP/AVP;unicast"})
	require.NoError(t, err)

	_, err = RequireUnicastClientPort(h)
	require.ErrorIs(t, err, ErrMissingClientPort)
}
