package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"sentinelflow/internal/collector"
	"sentinelflow/internal/config"
)

func main() {
	cfg := config.LoadAgent()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	hostname, _ := os.Hostname()
	logger.Info("starting sentinelflow agent", "agent_id", cfg.AgentID, "server", cfg.ServerURL, "iface", cfg.Iface)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Packet capture is optional: without it the SYN and port counters are
	// reported as absent rather than zero.
	var acc *collector.Accumulator
	if cfg.Iface != "" {
		handle, err := pcap.OpenLive(cfg.Iface, int32(cfg.Snaplen), false, pcap.BlockForever)
		if err != nil {
			logger.Warn("packet capture disabled", "iface", cfg.Iface, "err", err)
		} else {
			defer handle.Close()
			if err := handle.SetBPFFilter("tcp"); err != nil {
				logger.Warn("bpf filter", "err", err)
			}
			acc = collector.NewAccumulator()
			go acc.Capture(ctx, gopacket.NewPacketSource(handle, handle.LinkType()))
		}
	}

	svc := collector.NewService(
		cfg.AgentID,
		hostname,
		collector.NewHostCollector(cfg.Iface),
		acc,
		collector.NewReporter(cfg.ServerURL, cfg.Timeout),
		logger.With("module", "agent"),
	)
	svc.Run(ctx, cfg.Interval)
	logger.Info("agent stopped")
}
