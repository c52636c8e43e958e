// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"capf-tvs-gateway/internal/capf"
	"capf-tvs-gateway/internal/capferr"
	"capf-tvs-gateway/internal/config"
	"capf-tvs-gateway/internal/issuer"
	"capf-tvs-gateway/internal/logging"
	"capf-tvs-gateway/internal/netsrv"
	"capf-tvs-gateway/internal/phoneauth"
	"capf-tvs-gateway/internal/store/sqlite"
)

var (
	configPath = flag.String("config", "capfd.yaml", "Path to configuration file")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadCAPFConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(*debug || cfg.Debug)

	if err := run(cfg); err != nil {
		slog.Error("capfd exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.CAPFConfig) error {
	tlsCert, err := tls.LoadX509KeyPair(cfg.TLS.ServerCertFile, cfg.TLS.ServerCertFile)
	if err != nil {
		return &capferr.TLS{Msg: "load server TLS certificate", Err: err}
	}

	var iss *issuer.Issuer
	if cfg.Issuer.ExternalSignCommand != "" {
		iss, err = issuer.LoadExternal(cfg.Issuer.CertFile, cfg.Issuer.ExternalSignCommand,
			cfg.Issuer.ExternalSignTimeout, cfg.Issuer.ValidityDays)
	} else {
		iss, err = issuer.Load(cfg.Issuer.CertFile, cfg.Issuer.ValidityDays)
	}
	if err != nil {
		return fmt.Errorf("load issuer material: %w", err)
	}

	trustStore, err := phoneauth.NewTrustStore(iss.CACertificate(), cfg.Issuer.VerifyCertFiles)
	if err != nil {
		return fmt.Errorf("build phone trust store: %w", err)
	}

	deviceStore, err := sqlite.OpenCAPFStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open device store: %w", err)
	}
	defer deviceStore.Close()

	engine := &capf.Engine{
		Store:           deviceStore,
		Issuer:          iss,
		TrustStore:      trustStore,
		CertificatesDir: cfg.ResolvedCertificatesDir(),
	}

	srv, err := netsrv.Listen(netsrv.Config{
		Port:           cfg.Listen.Port,
		SocketTimeout:  cfg.Listen.SocketTimeout,
		MaxConnections: cfg.Listen.MaxConnections,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{tlsCert},
			ClientAuth:   tls.NoClientCert, // no TLS peer verification; auth happens inside the app protocol (spec.md §4.6)
		},
	})
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Listen.Port, err)
	}

	slog.Info("capfd listening", "port", cfg.Listen.Port, "certificates_dir", engine.CertificatesDir)
	srv.Serve(engine.HandleConn)
	return nil
}
