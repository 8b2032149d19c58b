package transport

import "errors"

// ErrMulticastNotSupported and ErrMissingClientPort back SETUP's 400 Bad
// Request response: this server only accepts unicast UDP transports with
// an explicit client_port.
var (
	ErrMulticastNotSupported = errors.New("multicast transport not supported")
	ErrMissingClientPort     = errors.New("client_port parameter required")
)

// RequireUnicastClientPort walks a parsed Transport header's options and
// returns the first unicast RTP/AVP option's client_port RTP port, or an
// error describing why none qualified.
func RequireUnicastClientPort(h Header) (int, error) {
	var sawMulticast bool
	for _, opt := range h.Options() {
		if opt.Protocol() != ProtocolUDP {
			continue
		}
		if !opt.IsUnicast() {
			sawMulticast = true
			continue
		}
		for _, param := range opt.Parameters() {
			if cp, ok := param.(ClientPort); ok && len(cp) > 0 {
				return cp[0], nil
			}
		}
		return 0, ErrMissingClientPort
	}
	if sawMulticast {
		return 0, ErrMulticastNotSupported
	}
	return 0, ErrUnsupportedTransport
}
