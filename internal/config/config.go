// SPDX-FileCopyrightText: (C) 2026 Dell Technologies
// SPDX-License-Identifier: Apache 2.0

// Package config loads the YAML configuration for both daemons, following
// the same DefaultConfig()-then-unmarshal-over-defaults pattern the
// original manufacturing station used.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"capf-tvs-gateway/internal/capferr"
	"capf-tvs-gateway/internal/tvserr"
)

// CAPFConfig is the full configuration surface for capfd, per spec.md §6.
type CAPFConfig struct {
	Debug bool `yaml:"debug"`

	Listen struct {
		Port           int           `yaml:"port"`
		SocketTimeout  time.Duration `yaml:"socket_timeout"`
		MaxConnections int           `yaml:"max_connections"` // 0 = unlimited
	} `yaml:"listen"`

	TLS struct {
		ServerCertFile string `yaml:"server_cert_file"` // PEM, cert+key concatenated
	} `yaml:"tls"`

	Issuer struct {
		CertFile        string   `yaml:"cert_file"` // PEM; cert+key concatenated, or cert-only when ExternalSignCommand is set
		VerifyCertFiles []string `yaml:"verify_cert_files"`
		ValidityDays    int      `yaml:"validity_days"`

		// ExternalSignCommand, when set, delegates CA signing to a shelled-out
		// command (see internal/issuer/external) instead of the in-process
		// key parsed from CertFile; CertFile then holds only the CA
		// certificate.
		ExternalSignCommand string        `yaml:"external_sign_command"`
		ExternalSignTimeout time.Duration `yaml:"external_sign_timeout"`
	} `yaml:"issuer"`

	Store struct {
		Path             string `yaml:"path"`
		CertificatesDir  string `yaml:"certificates_dir"` // defaults to dir(Path) if empty
	} `yaml:"store"`
}

// DefaultCAPFConfig returns the configuration defaults matching the
// external interface surface enumerated in spec.md §6.
func DefaultCAPFConfig() *CAPFConfig {
	c := &CAPFConfig{Debug: false}
	c.Listen.Port = 3804
	c.Listen.SocketTimeout = 10 * time.Second
	c.Listen.MaxConnections = 0
	c.Issuer.ValidityDays = 365
	c.Issuer.ExternalSignTimeout = 10 * time.Second
	return c
}

// LoadCAPFConfig reads and unmarshals a capfd YAML config, falling back to
// defaults if the file does not exist.
func LoadCAPFConfig(path string) (*CAPFConfig, error) {
	c := DefaultCAPFConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, &capferr.Config{Msg: fmt.Sprintf("reading %q", path), Err: err}
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, &capferr.Config{Msg: fmt.Sprintf("parsing %q", path), Err: err}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate enforces the option bounds spec.md §6 and §8 name explicitly.
func (c *CAPFConfig) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return &capferr.Config{Msg: fmt.Sprintf("listen.port %d out of range", c.Listen.Port)}
	}
	if c.Issuer.ValidityDays < 1 || c.Issuer.ValidityDays > 3560 {
		return &capferr.Config{Msg: fmt.Sprintf("issuer.validity_days %d out of range [1,3560]", c.Issuer.ValidityDays)}
	}
	if c.TLS.ServerCertFile == "" {
		return &capferr.Config{Msg: "tls.server_cert_file is required"}
	}
	if c.Issuer.CertFile == "" {
		return &capferr.Config{Msg: "issuer.cert_file is required"}
	}
	if c.Store.Path == "" {
		return &capferr.Config{Msg: "store.path is required"}
	}
	return nil
}

// ResolvedCertificatesDir returns Store.CertificatesDir, defaulting to the
// directory containing Store.Path when unset, per spec.md §6.
func (c *CAPFConfig) ResolvedCertificatesDir() string {
	if c.Store.CertificatesDir != "" {
		return c.Store.CertificatesDir
	}
	return filepath.Dir(c.Store.Path)
}

// TVSConfig is the full configuration surface for tvsd.
type TVSConfig struct {
	Debug bool `yaml:"debug"`

	Listen struct {
		Port           int           `yaml:"port"`
		SocketTimeout  time.Duration `yaml:"socket_timeout"`
		MaxConnections int           `yaml:"max_connections"`
	} `yaml:"listen"`

	TLS struct {
		ServerCertFile string `yaml:"server_cert_file"`
	} `yaml:"tls"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
}

// DefaultTVSConfig returns the configuration defaults for tvsd.
func DefaultTVSConfig() *TVSConfig {
	c := &TVSConfig{Debug: false}
	c.Listen.Port = 2445
	c.Listen.SocketTimeout = 10 * time.Second
	c.Listen.MaxConnections = 0
	return c
}

// LoadTVSConfig reads and unmarshals a tvsd YAML config.
func LoadTVSConfig(path string) (*TVSConfig, error) {
	c := DefaultTVSConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, &tvserr.Config{Msg: fmt.Sprintf("reading %q", path), Err: err}
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, &tvserr.Config{Msg: fmt.Sprintf("parsing %q", path), Err: err}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *TVSConfig) Validate() error {
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return &tvserr.Config{Msg: fmt.Sprintf("listen.port %d out of range", c.Listen.Port)}
	}
	if c.TLS.ServerCertFile == "" {
		return &tvserr.Config{Msg: "tls.server_cert_file is required"}
	}
	if c.Store.Path == "" {
		return &tvserr.Config{Msg: "store.path is required"}
	}
	return nil
}
