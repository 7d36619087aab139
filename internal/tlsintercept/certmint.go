//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package tlsintercept

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/runtimex"
)

// CertAuthority mints leaf certificates on the fly, keyed by the SNI (or,
// absent SNI, by the connection's negotiated upstream address) a client
// presented. Minted leaves are cached so repeated connections to the same
// name reuse the same key pair instead of re-signing every time.
type CertAuthority struct {
	caCert *x509.Certificate
	caKey  *ecdsa.PrivateKey
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]*tls.Certificate
}

// NewCertAuthority builds a minting authority from a root CA certificate
// and private key (loaded by the out-of-scope config/cert-file loader per
// §1), with leaves valid for ttl.
func NewCertAuthority(caCert *x509.Certificate, caKey *ecdsa.PrivateKey, ttl time.Duration) *CertAuthority {
	runtimex.Assert(caCert != nil && caKey != nil)
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CertAuthority{caCert: caCert, caKey: caKey, ttl: ttl, cache: make(map[string]*tls.Certificate)}
}

// GenerateEphemeralCA creates a throwaway self-signed CA suitable for
// tests and for first-run bootstrapping before a real CA is configured.
func GenerateEphemeralCA() (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "inspectproxy ephemeral interception CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

// LeafFor mints (or returns a cached) leaf certificate for name, which is
// either an SNI hostname or, when the sniffer observed none, the
// connection's upstream host:port per §4.4.
func (a *CertAuthority) LeafFor(name string) (*tls.Certificate, error) {
	a.mu.Lock()
	if cached, ok := a.cache[name]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(a.ttl),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := parseIPHost(name); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
	} else {
		tmpl.DNSNames = []string{name}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.caCert, &key.PublicKey, a.caKey)
	if err != nil {
		return nil, fmt.Errorf("mint leaf for %s: %w", name, err)
	}
	leaf := &tls.Certificate{Certificate: [][]byte{der, a.caCert.Raw}, PrivateKey: key}

	a.mu.Lock()
	a.cache[name] = leaf
	a.mu.Unlock()
	return leaf, nil
}

func parseIPHost(name string) net.IP {
	return net.ParseIP(name)
}
