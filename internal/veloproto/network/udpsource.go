// Package network supplies the two concrete packet sources the core
// decoder is built against: a live UDP socket and a recorded pcap
// capture file. Neither package holds any sensor-model knowledge.
package network

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"time"

	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
)

// UDPSource reads datagrams from a bound UDP socket, treating a read
// timeout as end-of-stream rather than an error.
type UDPSource struct {
	conn    *net.UDPConn
	timeout time.Duration
	buf     [2048]byte
}

// NewUDPSource resolves and binds addr, best-effort-sizes the receive
// buffer to rcvBuf, and arms every subsequent NextPacket call with the
// given read timeout.
func NewUDPSource(addr string, rcvBuf int, timeout time.Duration) (*UDPSource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: resolving UDP address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("network: listening on %q: %w", addr, err)
	}
	if rcvBuf > 0 {
		if err := conn.SetReadBuffer(rcvBuf); err != nil {
			log.Printf("[warn] network: failed to set UDP receive buffer to %d bytes: %v", rcvBuf, err)
		}
	}
	return &UDPSource{conn: conn, timeout: timeout}, nil
}

// NextPacket reads one datagram. A read-timeout returns a nil packet with
// a nil error, signalling source exhaustion to callers; a datagram shorter
// than 1206 bytes is reported as packet.ErrShortDatagram. The returned
// RawPacket borrows the source's internal buffer and is only valid until
// the next call to NextPacket.
func (s *UDPSource) NextPacket() (netip.AddrPort, *packet.RawPacket, error) {
	if s.timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			return netip.AddrPort{}, nil, fmt.Errorf("network: setting read deadline: %w", err)
		}
	}
	n, addr, err := s.conn.ReadFromUDPAddrPort(s.buf[:])
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return netip.AddrPort{}, nil, nil
		}
		return netip.AddrPort{}, nil, fmt.Errorf("network: reading UDP packet: %w", err)
	}
	raw, err := packet.FromBytes(s.buf[:n])
	if err != nil {
		return addr, nil, fmt.Errorf("network: %w", err)
	}
	return addr, raw, nil
}

// Close releases the underlying socket.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}
