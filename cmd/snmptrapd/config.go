// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gosnmp/snmpv2c"
	"github.com/pion/dtls/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen        string      `yaml:"listen"`
	Community     string      `yaml:"community"`
	MetricsListen string      `yaml:"metrics_listen"`
	CloseTimeout  string      `yaml:"close_timeout"`
	LogLevel      string      `yaml:"log_level"`
	DTLS          *DTLSConfig `yaml:"dtls"`

	closeTimeout time.Duration
	logLevel     slog.Level
}

type DTLSConfig struct {
	CertFile     string              `yaml:"cert_file"`
	KeyFile      string              `yaml:"key_file"`
	CAFile       string              `yaml:"ca_file"`
	PeerMappings []PeerMappingConfig `yaml:"peer_mappings"`
}

// PeerMappingConfig is one snmpv2c.PeerMapping. Kind is one of fingerprint,
// san_rfc822, san_dns, san_ip, san_any or common_name. Fingerprint is the
// hex SHA-256 of the certificate; colons are ignored.
type PeerMappingConfig struct {
	Kind        string `yaml:"kind"`
	Fingerprint string `yaml:"fingerprint"`
	Name        string `yaml:"name"`
}

var peerMappingKinds = map[string]snmpv2c.PeerMappingKind{
	"fingerprint": snmpv2c.MapFingerprint,
	"san_rfc822":  snmpv2c.MapSANRFC822,
	"san_dns":     snmpv2c.MapSANDNSName,
	"san_ip":      snmpv2c.MapSANIPAddress,
	"san_any":     snmpv2c.MapSANAny,
	"common_name": snmpv2c.MapCommonName,
}

func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	f, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d := yaml.NewDecoder(f)
	d.KnownFields(true)
	if err := d.Decode(config); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", configPath, err)
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() error {
	if c.Listen == "" {
		c.Listen = fmt.Sprintf("udp://0.0.0.0:%d", snmpv2c.DefaultTrapPort)
	}
	if c.MetricsListen == "" {
		c.MetricsListen = ":9162"
	}

	if c.CloseTimeout == "" {
		c.CloseTimeout = "3s"
	}
	closeTimeout, err := time.ParseDuration(c.CloseTimeout)
	if err != nil {
		return fmt.Errorf("could not parse close timeout: %s", err)
	}
	c.closeTimeout = closeTimeout

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if err := c.logLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("could not parse log level: %s", err)
	}

	if strings.HasPrefix(c.Listen, "dtls://") && c.DTLS == nil {
		return errors.New("a dtls:// listen address needs a dtls section")
	}
	if c.DTLS != nil {
		for i, m := range c.DTLS.PeerMappings {
			if _, ok := peerMappingKinds[m.Kind]; !ok {
				return fmt.Errorf("peer mapping %d: unknown kind %q", i, m.Kind)
			}
		}
	}
	return nil
}

// dtlsConfig loads the certificates named by the dtls section.
func (c *DTLSConfig) dtlsConfig() (*dtls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	config := &dtls.Config{
		Certificates:         []tls.Certificate{cert},
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
		ClientAuth:           dtls.RequireAndVerifyClientCert,
	}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", c.CAFile)
		}
		config.ClientCAs = pool
	}
	return config, nil
}

func (c *DTLSConfig) peerMappings() ([]snmpv2c.PeerMapping, error) {
	mappings := make([]snmpv2c.PeerMapping, 0, len(c.PeerMappings))
	for i, m := range c.PeerMappings {
		pm := snmpv2c.PeerMapping{Kind: peerMappingKinds[m.Kind], Name: m.Name}
		if pm.Kind == snmpv2c.MapFingerprint {
			fp, err := hex.DecodeString(strings.ReplaceAll(m.Fingerprint, ":", ""))
			if err != nil {
				return nil, fmt.Errorf("peer mapping %d: fingerprint: %w", i, err)
			}
			pm.Fingerprint = fp
		}
		mappings = append(mappings, pm)
	}
	return mappings, nil
}
