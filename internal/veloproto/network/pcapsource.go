package network

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
)

const (
	pcapMagicMicros = 0xA1B2C3D4
	pcapMagicNanos  = 0xA1B23C4D

	pcapWantVersionMajor = 2
	pcapWantVersionMinor = 4
	linkTypeEthernet     = 1

	globalHeaderLen = 24
	recordHeaderLen = 16

	// veloViewShortPacketFloor is the original_len below which a record is
	// a VeloView-inserted short packet rather than a real capture.
	veloViewShortPacketFloor = 1248
)

// Errors the pcap reader can surface. A truncated record is returned to the
// caller as ErrTruncatedPacket; the VeloView short-packet skip never reaches
// the caller as an error — it just logs and moves to the next record.
var (
	ErrInvalidPcapMagic         = errors.New("network: not a recognised pcap file")
	ErrUnsupportedBigEndianPcap = errors.New("network: big-endian pcap files are not supported")
	ErrUnsupportedVersion       = errors.New("network: unsupported pcap version, want 2.4")
	ErrUnsupportedLinkType      = errors.New("network: only Ethernet-linked pcap captures are supported")
	ErrTruncatedPacket          = errors.New("network: pcap record was truncated during capture")
)

// PCAPSourceConfig controls replay pacing and looping behaviour.
type PCAPSourceConfig struct {
	// SpeedMultiplier paces NextPacket calls against the capture's own
	// timestamps, divided by this factor. Zero or negative disables
	// pacing: records are returned as fast as the caller drains them.
	SpeedMultiplier float64
	// Loop rewinds to the first record on reaching end-of-file instead of
	// reporting exhaustion.
	Loop bool
}

// PCAPSource replays a classic pcap capture file without depending on
// libpcap or cgo: it hand-parses the container format and hands each
// Ethernet frame to gopacket to strip framing down to the UDP payload.
type PCAPSource struct {
	f     *os.File
	r     *bufio.Reader
	cfg   PCAPSourceConfig
	nanos bool

	haveLast    bool
	lastCapture time.Time
}

// OpenPCAPSource opens path and validates its global header.
func OpenPCAPSource(path string, cfg PCAPSourceConfig) (*PCAPSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("network: opening pcap file: %w", err)
	}
	r := bufio.NewReader(f)

	header := make([]byte, globalHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("network: reading pcap global header: %w", err)
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	var nanos bool
	switch magic {
	case pcapMagicMicros:
		nanos = false
	case pcapMagicNanos:
		nanos = true
	case swap32(pcapMagicMicros), swap32(pcapMagicNanos):
		f.Close()
		return nil, ErrUnsupportedBigEndianPcap
	default:
		f.Close()
		return nil, ErrInvalidPcapMagic
	}

	major := binary.LittleEndian.Uint16(header[4:6])
	minor := binary.LittleEndian.Uint16(header[6:8])
	if major != pcapWantVersionMajor || minor != pcapWantVersionMinor {
		f.Close()
		return nil, fmt.Errorf("%w: got %d.%d", ErrUnsupportedVersion, major, minor)
	}

	linkType := binary.LittleEndian.Uint32(header[20:24])
	if linkType != linkTypeEthernet {
		f.Close()
		return nil, fmt.Errorf("%w: got link type %d", ErrUnsupportedLinkType, linkType)
	}

	return &PCAPSource{f: f, r: r, cfg: cfg, nanos: nanos}, nil
}

// Close releases the underlying file.
func (s *PCAPSource) Close() error {
	return s.f.Close()
}

// NextPacket returns the next record's LiDAR payload, skipping VeloView
// short-packet records. A nil packet with a nil error means end of file
// (with Loop disabled). The returned RawPacket is only valid until the
// next call.
func (s *PCAPSource) NextPacket() (netip.AddrPort, *packet.RawPacket, error) {
	for {
		header := make([]byte, recordHeaderLen)
		_, err := io.ReadFull(s.r, header)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if s.cfg.Loop {
				if err := s.rewind(); err != nil {
					return netip.AddrPort{}, nil, err
				}
				continue
			}
			return netip.AddrPort{}, nil, nil
		}
		if err != nil {
			return netip.AddrPort{}, nil, fmt.Errorf("network: reading pcap record header: %w", err)
		}

		tsSec := binary.LittleEndian.Uint32(header[0:4])
		tsSub := binary.LittleEndian.Uint32(header[4:8])
		inclLen := binary.LittleEndian.Uint32(header[8:12])
		origLen := binary.LittleEndian.Uint32(header[12:16])

		if inclLen < origLen {
			return netip.AddrPort{}, nil, ErrTruncatedPacket
		}

		frame := make([]byte, inclLen)
		if _, err := io.ReadFull(s.r, frame); err != nil {
			return netip.AddrPort{}, nil, fmt.Errorf("network: reading pcap record body: %w", err)
		}

		if origLen < veloViewShortPacketFloor {
			log.Printf("[warn] network: skipping short pcap record (orig_len=%d)", origLen)
			continue
		}

		addr, raw, err := decodeEthernetUDP(frame)
		if err != nil {
			return netip.AddrPort{}, nil, fmt.Errorf("network: decoding pcap record: %w", err)
		}

		s.pace(tsSec, tsSub)
		return addr, raw, nil
	}
}

func (s *PCAPSource) rewind() error {
	if _, err := s.f.Seek(globalHeaderLen, io.SeekStart); err != nil {
		return fmt.Errorf("network: rewinding pcap file: %w", err)
	}
	s.r = bufio.NewReader(s.f)
	s.haveLast = false
	return nil
}

func (s *PCAPSource) pace(tsSec, tsSub uint32) {
	if s.cfg.SpeedMultiplier <= 0 {
		return
	}
	var captureTime time.Time
	if s.nanos {
		captureTime = time.Unix(int64(tsSec), int64(tsSub))
	} else {
		captureTime = time.Unix(int64(tsSec), int64(tsSub)*1000)
	}

	if !s.haveLast {
		s.lastCapture = captureTime
		s.haveLast = true
		return
	}

	elapsedCapture := captureTime.Sub(s.lastCapture)
	wait := time.Duration(float64(elapsedCapture) / s.cfg.SpeedMultiplier)
	if wait > 0 {
		time.Sleep(wait)
	}
	s.lastCapture = captureTime
}

func decodeEthernetUDP(frame []byte) (netip.AddrPort, *packet.RawPacket, error) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	if errLayer := pkt.ErrorLayer(); errLayer != nil {
		return netip.AddrPort{}, nil, fmt.Errorf("parsing Ethernet frame: %w", errLayer.Error())
	}

	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if ipLayer == nil || udpLayer == nil {
		return netip.AddrPort{}, nil, errors.New("frame is not IPv4/UDP")
	}
	ip, _ := ipLayer.(*layers.IPv4)
	udp, _ := udpLayer.(*layers.UDP)

	payload := udp.Payload
	if len(payload) < packet.Size {
		return netip.AddrPort{}, nil, packet.ErrShortDatagram
	}

	raw, err := packet.FromBytes(payload[:packet.Size])
	if err != nil {
		return netip.AddrPort{}, nil, err
	}

	src, ok := netip.AddrFromSlice(ip.SrcIP.To4())
	if !ok {
		return netip.AddrPort{}, raw, nil
	}
	return netip.AddrPortFrom(src, uint16(udp.SrcPort)), raw, nil
}

func swap32(v uint32) uint32 {
	return v<<24 | (v&0xff00)<<8 | (v&0xff0000)>>8 | v>>24
}
