/*
	Copyright Confluent Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package restutils

import (
	"crypto/tls"
	"crypto/x509"
	"strings"
)

// CryptoProvider selects the certificate and keystore machinery used by a
// listener's security configuration. It is chosen once while validating an
// SslConfig; the rest of the credential pipeline dispatches through it
// instead of re-checking FIPS flags at every call site.
type CryptoProvider struct {
	name             string
	fips             bool
	defaultStoreType string
}

// DefaultCryptoProvider is the unrestricted provider backed by the standard
// crypto engines.
var DefaultCryptoProvider = &CryptoProvider{
	name:             "default",
	defaultStoreType: StoreTypeJKS,
}

// FIPSCryptoProvider restricts algorithm selection for FIPS compliance. A
// FIPS configuration only accepts PEM credential stores.
var FIPSCryptoProvider = &CryptoProvider{
	name:             "fips",
	fips:             true,
	defaultStoreType: StoreTypePEM,
}

// ProviderForName resolves a configured provider identifier. An empty
// identifier selects the default provider.
func ProviderForName(name string) (*CryptoProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultCryptoProvider, nil
	case "fips", "bcfips":
		return FIPSCryptoProvider, nil
	default:
		return nil, configErrorf("unknown security provider [%s]", name)
	}
}

func (p *CryptoProvider) Name() string {
	return p.name
}

// FIPS returns true when this provider only permits FIPS approved algorithms.
func (p *CryptoProvider) FIPS() bool {
	return p.fips
}

// DefaultStoreType is the credential store type assumed when a configuration
// does not declare one.
func (p *CryptoProvider) DefaultStoreType() string {
	return p.defaultStoreType
}

// MinTLSVersion is the lowest protocol version this provider will negotiate.
func (p *CryptoProvider) MinTLSVersion() uint16 {
	if p.fips {
		return tls.VersionTLS12
	}
	return tls.VersionTLS10
}

// ParseCertificate decodes a DER certificate through this provider's
// certificate factory. The FIPS provider additionally rejects certificates
// signed with non-approved digest algorithms.
func (p *CryptoProvider) ParseCertificate(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	if p.fips {
		switch cert.SignatureAlgorithm {
		case x509.MD2WithRSA, x509.MD5WithRSA, x509.SHA1WithRSA, x509.DSAWithSHA1, x509.ECDSAWithSHA1:
			return nil, configErrorf("certificate signature algorithm [%s] is not permitted by the fips provider", cert.SignatureAlgorithm)
		}
	}

	return cert, nil
}

// fipsCipherSuites is the TLS 1.2 cipher suite allow-list for the FIPS
// provider. TLS 1.3 suites are not configurable and are already limited to
// AES-GCM by filtering out CHACHA20 at the version level.
var fipsCipherSuites = map[uint16]bool{
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   true,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   true,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: true,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: true,
	tls.TLS_RSA_WITH_AES_128_GCM_SHA256:         true,
	tls.TLS_RSA_WITH_AES_256_GCM_SHA384:         true,
}

// FilterCipherSuites drops cipher suites the provider does not permit. A nil
// result means the engine defaults apply.
func (p *CryptoProvider) FilterCipherSuites(suites []uint16) []uint16 {
	if !p.fips {
		return suites
	}

	if len(suites) == 0 {
		for id := range fipsCipherSuites {
			suites = append(suites, id)
		}
		return suites
	}

	var filtered []uint16
	for _, id := range suites {
		if fipsCipherSuites[id] {
			filtered = append(filtered, id)
		}
	}
	return filtered
}
