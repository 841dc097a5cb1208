// Command velodecode runs the turn-segmented LiDAR point decoder against
// either a live UDP socket or a recorded pcap capture.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cartograph-labs/velodecode/internal/veloconfig"
	"github.com/cartograph-labs/velodecode/internal/veloproto/hdl64"
	"github.com/cartograph-labs/velodecode/internal/veloproto/network"
	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
	"github.com/cartograph-labs/velodecode/internal/veloproto/source"
)

var (
	sensor     = flag.String("sensor", "hdl32", "sensor model: hdl32 or hdl64")
	udpAddr    = flag.String("udp-addr", "", "UDP address to listen on, e.g. :2368 (mutually exclusive with -pcap-file)")
	pcapFile   = flag.String("pcap-file", "", "pcap capture file to replay (mutually exclusive with -udp-addr)")
	rcvBuf     = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	configPath = flag.String("config", "", "path to a tuning JSON file")
	calibXML   = flag.String("calib-xml", "", "hdl64 only: path to a vendor XML calibration file, overriding the sensor's own reported table")
	logEvery   = flag.Int("log-interval", 5, "seconds between rolling turn-length statistics log lines")
)

func main() {
	flag.Parse()

	cfg := veloconfig.EmptyConfig()
	if *configPath != "" {
		loaded, err := veloconfig.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("velodecode: loading config: %v", err)
		}
		cfg = loaded
	}

	if (*udpAddr == "") == (*pcapFile == "") {
		log.Fatal("velodecode: exactly one of -udp-addr or -pcap-file must be set")
	}

	var src source.PacketSource
	if *udpAddr != "" {
		udpSrc, err := network.NewUDPSource(*udpAddr, *rcvBuf, cfg.GetUDPReadTimeout())
		if err != nil {
			log.Fatalf("velodecode: opening UDP source: %v", err)
		}
		defer udpSrc.Close()
		src = udpSrc
		log.Printf("velodecode: listening for %s packets on %s", *sensor, *udpAddr)
	} else {
		speed := 0.0
		if cfg.GetReplaySync() {
			speed = cfg.GetReplaySpeed()
		}
		pcapSrc, err := network.OpenPCAPSource(*pcapFile, network.PCAPSourceConfig{
			SpeedMultiplier: speed,
			Loop:            cfg.GetReplayLoop(),
		})
		if err != nil {
			log.Fatalf("velodecode: opening pcap source: %v", err)
		}
		defer pcapSrc.Close()
		src = pcapSrc
		log.Printf("velodecode: replaying %s packets from %s", *sensor, *pcapFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *sensor {
	case "hdl32":
		runHDL32(ctx, cfg, src)
	case "hdl64":
		runHDL64(ctx, cfg, src)
	default:
		log.Fatalf("velodecode: unknown -sensor %q, want hdl32 or hdl64", *sensor)
	}
}

func runHDL32(ctx context.Context, cfg *veloconfig.Config, src source.PacketSource) {
	ps := source.NewHDL32PointSource(src)
	seg := source.NewTurnSegmenter(ps, cfg.GetSplitAzimuth(), func() struct{} { return struct{}{} })
	runLoop(ctx, func() (source.Turn[struct{}], bool, error) {
		return seg.NextTurn()
	}, func(t source.Turn[struct{}]) {
		log.Printf("velodecode: turn complete, %d points", len(t.Points))
	}, seg.Stats)
}

func runHDL64(ctx context.Context, cfg *veloconfig.Config, src source.PacketSource) {
	var distLSB float32 = 0.2
	if cfg.DistLSB != nil {
		distLSB = *cfg.DistLSB
	}

	pull := func() (*packet.RawPacket, error) {
		_, raw, err := src.NextPacket()
		return raw, err
	}

	log.Print("velodecode: waiting for a full status cycle to initialise hdl64 calibration (up to 5s)...")
	listener, err := hdl64.NewStatusListener(pull)
	if err != nil {
		log.Fatalf("velodecode: initialising hdl64 status listener: %v", err)
	}

	var ps *source.PointSource
	if *calibXML != "" {
		db, err := hdl64.LoadCalibDb(*calibXML)
		if err != nil {
			log.Fatalf("velodecode: loading calibration XML: %v", err)
		}
		if cfg.DistLSB != nil {
			db.DistLSB = *cfg.DistLSB
		}
		log.Printf("velodecode: using calibration overrides from %s", *calibXML)
		ps = source.NewHDL64PointSourceWithCalib(src, listener, db)
	} else {
		ps = source.NewHDL64PointSource(src, listener, distLSB)
	}
	seg := source.NewTurnSegmenter(ps, cfg.GetSplitAzimuth(), listener.Status)
	runLoop(ctx, func() (source.Turn[hdl64.Status], bool, error) {
		return seg.NextTurn()
	}, func(t source.Turn[hdl64.Status]) {
		log.Printf("velodecode: turn complete, %d points, rpm=%d temp=%d", len(t.Points), t.Status.RPM, t.Status.Temperature)
	}, seg.Stats)
}

func runLoop[S any](ctx context.Context, next func() (source.Turn[S], bool, error), onTurn func(source.Turn[S]), stats func() (mean, p50, p95 float64)) {
	ticker := time.NewTicker(time.Duration(*logEvery) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Print("velodecode: shutting down")
			return
		case <-ticker.C:
			mean, p50, p95 := stats()
			log.Printf("velodecode: turn length stats — mean=%.1f p50=%.1f p95=%.1f", mean, p50, p95)
		default:
		}

		turn, ok, err := next()
		if err != nil {
			log.Fatalf("velodecode: %v", err)
		}
		if !ok {
			log.Print("velodecode: packet source exhausted")
			return
		}
		onTurn(turn)
	}
}
