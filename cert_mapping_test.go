// Copyright 2025 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpv2c

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createTestCert creates a test certificate with the given options.
func createTestCert(t *testing.T, cn string, dnsNames []string, emails []string, ips []net.IP) *x509.Certificate {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		EmailAddresses:        emails,
		IPAddresses:           ips,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	return cert
}

func TestPeerMappingKinds(t *testing.T) {
	full := createTestCert(t, "MyCommonName",
		[]string{"Server.Example.COM"},
		[]string{"User@Example.COM"},
		[]net.IP{net.ParseIP("192.168.1.100")})

	tests := []struct {
		name string
		cert *x509.Certificate
		kind PeerMappingKind
		want string
	}{
		// Only host part is lowercased per RFC
		{"rfc822", full, MapSANRFC822, "User@example.com"},
		{"dns", full, MapSANDNSName, "server.example.com"},
		{"ip", full, MapSANIPAddress, "192.168.1.100"},
		{"ipv6", createTestCert(t, "cn", nil, nil, []net.IP{net.ParseIP("2001:db8::1")}), MapSANIPAddress, "2001:db8::1"},
		{"common name", full, MapCommonName, "MyCommonName"},
		{"any prefers email", full, MapSANAny, "User@example.com"},
		{"any falls back to dns", createTestCert(t, "cn", []string{"dns.example.com"}, nil, []net.IP{net.ParseIP("10.0.0.2")}), MapSANAny, "dns.example.com"},
		{"any falls back to ip", createTestCert(t, "cn", nil, nil, []net.IP{net.ParseIP("10.0.0.1")}), MapSANAny, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := PeerName([]*x509.Certificate{tt.cert}, []PeerMapping{{Kind: tt.kind}})
			require.NoError(t, err)
			require.Equal(t, tt.want, name)
		})
	}
}

func TestPeerMappingNoMatch(t *testing.T) {
	bare := createTestCert(t, "", nil, nil, nil)
	for _, kind := range []PeerMappingKind{MapSANRFC822, MapSANDNSName, MapSANIPAddress, MapSANAny, MapCommonName} {
		_, err := PeerName([]*x509.Certificate{bare}, []PeerMapping{{Kind: kind}})
		require.ErrorIs(t, err, ErrNoPeerMapping, "kind %d", kind)
	}
}

func TestPeerMappingFingerprint(t *testing.T) {
	cert := createTestCert(t, "test-cn", nil, nil, nil)
	chain := []*x509.Certificate{cert}

	name, err := PeerName(chain, []PeerMapping{{
		Kind:        MapFingerprint,
		Fingerprint: Fingerprint(cert, crypto.SHA256),
		HashAlgo:    crypto.SHA256,
		Name:        "core-switch",
	}})
	require.NoError(t, err)
	require.Equal(t, "core-switch", name)

	_, err = PeerName(chain, []PeerMapping{{
		Kind:        MapFingerprint,
		Fingerprint: []byte{0x01, 0x02, 0x03},
		Name:        "core-switch",
	}})
	require.ErrorIs(t, err, ErrNoPeerMapping)
}

func TestPeerMappingOrder(t *testing.T) {
	// First matching mapping wins
	cert := createTestCert(t, "test-cn", []string{"dns.example.com"}, []string{"email@example.com"}, nil)

	name, err := PeerName([]*x509.Certificate{cert}, []PeerMapping{
		{Kind: MapSANDNSName},
		{Kind: MapSANRFC822},
		{Kind: MapFingerprint, Fingerprint: Fingerprint(cert, 0), Name: "specified"},
	})
	require.NoError(t, err)
	require.Equal(t, "dns.example.com", name)
}

func TestPeerMappingChain(t *testing.T) {
	issuer := createTestCert(t, "Issuer CA", nil, nil, nil)
	leaf := createTestCert(t, "Leaf Cert", []string{"leaf.example.com"}, nil, nil)

	// Mapping that only matches issuer
	name, err := PeerName([]*x509.Certificate{leaf, issuer}, []PeerMapping{
		{Kind: MapFingerprint, Fingerprint: Fingerprint(issuer, crypto.SHA256), Name: "issuerMatch"},
	})
	require.NoError(t, err)
	require.Equal(t, "issuerMatch", name)
}

func TestPeerNameErrors(t *testing.T) {
	cert := createTestCert(t, "test", nil, nil, nil)

	_, err := PeerName([]*x509.Certificate{cert}, nil)
	require.ErrorIs(t, err, ErrNoPeerMapping)

	_, err = PeerName(nil, []PeerMapping{{Kind: MapCommonName}})
	require.Error(t, err)

	_, err = peerNameFromDER([][]byte{{0x30, 0x00}}, []PeerMapping{{Kind: MapCommonName}})
	require.Error(t, err)

	name, err := peerNameFromDER([][]byte{cert.Raw}, []PeerMapping{{Kind: MapCommonName}})
	require.NoError(t, err)
	require.Equal(t, "test", name)
}

func TestFingerprintSizes(t *testing.T) {
	cert := createTestCert(t, "test", nil, nil, nil)
	require.Len(t, Fingerprint(cert, crypto.SHA256), 32)
	require.Len(t, Fingerprint(cert, crypto.SHA384), 48)
	require.Len(t, Fingerprint(cert, crypto.SHA512), 64)
	require.Equal(t, Fingerprint(cert, crypto.SHA256), Fingerprint(cert, 0), "Default should use SHA256")
}

func TestLowercaseEmailHost(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"user@EXAMPLE.COM", "user@example.com"},
		{"User.Name@EXAMPLE.COM", "User.Name@example.com"},
		{"noatsign", "noatsign"},
		{"multiple@at@signs.com", "multiple@at@signs.com"},
	}

	for _, tc := range tests {
		result := lowercaseEmailHost(tc.input)
		require.Equal(t, tc.expected, result, "input: %s", tc.input)
	}
}
