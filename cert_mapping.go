// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	// registers the hashes PeerMapping.HashAlgo may name
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// PeerMappingKind selects how a DTLS peer certificate is turned into a peer
// name. The kinds follow the certificate-to-name mappings of RFC 6353
// section 5.3.2.
type PeerMappingKind int

const (
	// MapFingerprint names a peer whose certificate hashes to Fingerprint.
	MapFingerprint PeerMappingKind = iota

	// MapSANRFC822 uses the first rfc822Name, host part lowercased.
	MapSANRFC822

	// MapSANDNSName uses the first dNSName, lowercased.
	MapSANDNSName

	// MapSANIPAddress uses the first iPAddress.
	MapSANIPAddress

	// MapSANAny tries rfc822Name, dNSName and iPAddress in turn.
	MapSANAny

	// MapCommonName uses the subject CommonName.
	MapCommonName
)

// PeerMapping is one entry of TrapListener.PeerMappings.
type PeerMapping struct {
	Kind PeerMappingKind

	// Fingerprint and Name are used by MapFingerprint only. HashAlgo
	// defaults to SHA-256.
	Fingerprint []byte
	HashAlgo    crypto.Hash
	Name        string
}

// ErrNoPeerMapping is returned when no mapping matches the peer.
var ErrNoPeerMapping = errors.New("no matching peer mapping")

// PeerName maps a peer certificate chain, leaf first, to a name. Mappings
// are tried in order and, for each, every certificate of the chain; the first
// match wins.
func PeerName(chain []*x509.Certificate, mappings []PeerMapping) (string, error) {
	if len(chain) == 0 {
		return "", errors.New("certificate chain is empty")
	}
	for _, m := range mappings {
		for _, cert := range chain {
			if name, ok := m.apply(cert); ok {
				return name, nil
			}
		}
	}
	return "", ErrNoPeerMapping
}

// peerNameFromDER parses a raw chain as reported by pion/dtls and maps it.
func peerNameFromDER(raw [][]byte, mappings []PeerMapping) (string, error) {
	chain := make([]*x509.Certificate, 0, len(raw))
	for i, der := range raw {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return "", fmt.Errorf("peer certificate %d: %w", i, err)
		}
		chain = append(chain, cert)
	}
	return PeerName(chain, mappings)
}

// Fingerprint hashes the DER form of cert. A zero hashAlgo means SHA-256.
func Fingerprint(cert *x509.Certificate, hashAlgo crypto.Hash) []byte {
	if hashAlgo == 0 {
		hashAlgo = crypto.SHA256
	}
	h := hashAlgo.New()
	h.Write(cert.Raw)
	return h.Sum(nil)
}

func (m PeerMapping) apply(cert *x509.Certificate) (string, bool) {
	switch m.Kind {
	case MapFingerprint:
		if bytes.Equal(Fingerprint(cert, m.HashAlgo), m.Fingerprint) {
			return m.Name, true
		}
		return "", false
	case MapSANRFC822:
		return sanRFC822(cert)
	case MapSANDNSName:
		return sanDNSName(cert)
	case MapSANIPAddress:
		return sanIPAddress(cert)
	case MapSANAny:
		for _, f := range []func(*x509.Certificate) (string, bool){sanRFC822, sanDNSName, sanIPAddress} {
			if name, ok := f(cert); ok {
				return name, true
			}
		}
		return "", false
	case MapCommonName:
		return cert.Subject.CommonName, cert.Subject.CommonName != ""
	}
	return "", false
}

func sanRFC822(cert *x509.Certificate) (string, bool) {
	if len(cert.EmailAddresses) == 0 {
		return "", false
	}
	return lowercaseEmailHost(cert.EmailAddresses[0]), true
}

func sanDNSName(cert *x509.Certificate) (string, bool) {
	if len(cert.DNSNames) == 0 {
		return "", false
	}
	return strings.ToLower(cert.DNSNames[0]), true
}

func sanIPAddress(cert *x509.Certificate) (string, bool) {
	if len(cert.IPAddresses) == 0 {
		return "", false
	}
	return cert.IPAddresses[0].String(), true
}

// lowercaseEmailHost lowercases the part after the @ only.
func lowercaseEmailHost(email string) string {
	local, host, ok := strings.Cut(email, "@")
	if !ok {
		return email
	}
	return local + "@" + strings.ToLower(host)
}
