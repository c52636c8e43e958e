// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"capf-tvs-gateway/internal/config"
	"capf-tvs-gateway/internal/logging"
	"capf-tvs-gateway/internal/netsrv"
	"capf-tvs-gateway/internal/store/sqlite"
	"capf-tvs-gateway/internal/tvs"
	"capf-tvs-gateway/internal/tvserr"
)

var (
	configPath = flag.String("config", "tvsd.yaml", "Path to configuration file")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadTVSConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(*debug || cfg.Debug)

	if err := run(cfg); err != nil {
		slog.Error("tvsd exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.TVSConfig) error {
	tlsCert, err := tls.LoadX509KeyPair(cfg.TLS.ServerCertFile, cfg.TLS.ServerCertFile)
	if err != nil {
		return &tvserr.TLS{Msg: "load server TLS certificate", Err: err}
	}

	trustStore, err := sqlite.OpenTVSStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open trust store: %w", err)
	}
	defer trustStore.Close()

	engine := &tvs.Engine{Store: trustStore}

	srv, err := netsrv.Listen(netsrv.Config{
		Port:           cfg.Listen.Port,
		SocketTimeout:  cfg.Listen.SocketTimeout,
		MaxConnections: cfg.Listen.MaxConnections,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{tlsCert},
			ClientAuth:   tls.NoClientCert,
		},
	})
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Listen.Port, err)
	}

	slog.Info("tvsd listening", "port", cfg.Listen.Port)
	srv.Serve(engine.HandleConn)
	return nil
}
