// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Command snmptrapd receives SNMP notifications over UDP or DTLS, logs them
// and exports receive counters for Prometheus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gosnmp/snmpv2c"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// slogLogger feeds the library trace output into slog at debug level.
type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) Print(v ...any) {
	l.logger.Debug(fmt.Sprint(v...))
}

func (l slogLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func main() {
	configPath := flag.String("config", "snmptrapd.yaml", "path to config file")
	listen := flag.String("listen", "", "listen address, overrides the config file")
	metricsListen := flag.String("metrics", "", "metrics address, overrides the config file")
	flag.Parse()

	config, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *listen != "" {
		config.Listen = *listen
	}
	if *metricsListen != "" {
		config.MetricsListen = *metricsListen
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, config, logger); err != nil {
		logger.Error("snmptrapd failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *Config, logger *slog.Logger) error {
	tl := snmpv2c.NewTrapListener()
	tl.Community = config.Community
	tl.CloseTimeout = config.closeTimeout
	tl.Logger = snmpv2c.NewLogger(slogLogger{logger: logger})
	tl.OnTrap = func(p *snmpv2c.Pdu, addr net.Addr) {
		logTrap(logger, p, addr)
	}
	if config.DTLS != nil {
		dtlsConfig, err := config.DTLS.dtlsConfig()
		if err != nil {
			return err
		}
		mappings, err := config.DTLS.peerMappings()
		if err != nil {
			return err
		}
		tl.DTLSConfig = dtlsConfig
		tl.PeerMappings = mappings
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: config.MetricsListen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	defer server.Close()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-tl.Listening():
		case <-stopped:
			return
		}
		logger.Info("listening for notifications", "addr", tl.Addr(), "metrics", config.MetricsListen)
		<-ctx.Done()
		tl.Close()
	}()

	return tl.Listen(config.Listen)
}

func logTrap(logger *slog.Logger, p *snmpv2c.Pdu, addr net.Addr) {
	attrs := []any{
		"from", addr.String(),
		"type", p.Type.String(),
		"version", p.Version.String(),
	}
	if dtlsAddr, ok := addr.(*snmpv2c.DTLSAddr); ok && dtlsAddr.PeerName != "" {
		attrs = append(attrs, "peer", dtlsAddr.PeerName)
	}
	if p.TrapV1 != nil {
		attrs = append(attrs,
			"enterprise", snmpv2c.FormatOID(p.TrapV1.Enterprise),
			"generic", p.TrapV1.GenericTrap,
			"specific", p.TrapV1.SpecificTrap)
	}
	for _, vb := range p.Variables {
		attrs = append(attrs, slog.String(snmpv2c.FormatOID(vb.Name), vb.Value.String()))
	}
	logger.Info("notification", attrs...)
}
