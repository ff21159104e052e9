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
	"bytes"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/pkg/errors"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// CredentialLoadError wraps the underlying I/O or format error raised while
// loading a credential store. It is fatal for the initial startup load and
// recorded as the last reload failure when raised from a hot reload.
type CredentialLoadError struct {
	Path  string
	Cause error
}

func (e *CredentialLoadError) Error() string {
	return fmt.Sprintf("error loading credential store [%s]: %v", e.Path, e.Cause)
}

func (e *CredentialLoadError) Unwrap() error {
	return e.Cause
}

func credentialLoadError(path string, cause error) *CredentialLoadError {
	return &CredentialLoadError{Path: path, Cause: cause}
}

// KeyMaterial is the in-memory key-store of one listener: a private key and
// its full certificate chain under a single alias. Replaced, never mutated,
// on reload.
type KeyMaterial struct {
	Certificate tls.Certificate
	Leaf        *x509.Certificate
}

// TrustMaterial is the in-memory trust-store of one listener, holding one
// alias per trusted certificate.
type TrustMaterial struct {
	Pool         *x509.CertPool
	Certificates []*x509.Certificate
}

// LoadKeyMaterial reads the configured key-store and returns verified
// in-memory key material. It never returns partially constructed material.
func LoadKeyMaterial(config *SslConfig) (*KeyMaterial, error) {
	provider := config.CryptoProvider()

	if provider.FIPS() && config.KeyStoreType != StoreTypePEM {
		return nil, configErrorf("the fips provider requires a PEM key store, [%s] was configured", config.KeyStoreType)
	}

	data, err := os.ReadFile(config.KeyStorePath)
	if err != nil {
		return nil, credentialLoadError(config.KeyStorePath, err)
	}

	var material *KeyMaterial

	switch config.KeyStoreType {
	case StoreTypePEM:
		material, err = keyMaterialFromPEM(data, config.KeyPassword, provider)
	case StoreTypePKCS12:
		material, err = keyMaterialFromPKCS12(data, config.KeyStorePassword)
	case StoreTypeJKS:
		material, err = keyMaterialFromJKS(data, config.KeyStorePassword, config.KeyPassword, provider)
	default:
		err = configErrorf("unknown key store type [%s]", config.KeyStoreType)
	}

	if err != nil {
		return nil, credentialLoadError(config.KeyStorePath, err)
	}

	return material, nil
}

// LoadTrustMaterial reads the configured trust-store and returns verified
// in-memory trust material.
func LoadTrustMaterial(config *SslConfig) (*TrustMaterial, error) {
	provider := config.CryptoProvider()

	if provider.FIPS() && config.TrustStoreType != StoreTypePEM {
		return nil, configErrorf("the fips provider requires a PEM trust store, [%s] was configured", config.TrustStoreType)
	}

	data, err := os.ReadFile(config.TrustStorePath)
	if err != nil {
		return nil, credentialLoadError(config.TrustStorePath, err)
	}

	var certs []*x509.Certificate

	switch config.TrustStoreType {
	case StoreTypePEM:
		certs, err = decodePEMCertificates(data, provider)
	case StoreTypePKCS12:
		certs, err = pkcs12.DecodeTrustStore(data, config.TrustStorePassword)
	case StoreTypeJKS:
		certs, err = trustedCertificatesFromJKS(data, config.TrustStorePassword, provider)
	default:
		err = configErrorf("unknown trust store type [%s]", config.TrustStoreType)
	}

	if err != nil {
		return nil, credentialLoadError(config.TrustStorePath, err)
	}

	return newTrustMaterial(certs), nil
}

func newTrustMaterial(certs []*x509.Certificate) *TrustMaterial {
	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}
	return &TrustMaterial{Pool: pool, Certificates: certs}
}

func newKeyMaterial(certs []*x509.Certificate, key crypto.PrivateKey) (*KeyMaterial, error) {
	if len(certs) == 0 {
		return nil, &NoMatchingEntryError{Kind: pemKindCertificate}
	}

	signer, err := signerFromKey(key)
	if err != nil {
		return nil, err
	}

	chain := make([][]byte, 0, len(certs))
	for _, cert := range certs {
		chain = append(chain, cert.Raw)
	}

	return &KeyMaterial{
		Certificate: tls.Certificate{
			Certificate: chain,
			PrivateKey:  signer,
			Leaf:        certs[0],
		},
		Leaf: certs[0],
	}, nil
}

func keyMaterialFromPEM(data []byte, keyPassword string, provider *CryptoProvider) (*KeyMaterial, error) {
	certs, err := decodePEMCertificates(data, provider)
	if err != nil {
		return nil, err
	}

	key, err := decodePEMPrivateKey(data, keyPassword)
	if err != nil {
		return nil, err
	}

	return newKeyMaterial(certs, key)
}

func keyMaterialFromPKCS12(data []byte, storePassword string) (*KeyMaterial, error) {
	key, leaf, caCerts, err := pkcs12.DecodeChain(data, storePassword)
	if err != nil {
		return nil, err
	}

	certs := append([]*x509.Certificate{leaf}, caCerts...)
	return newKeyMaterial(certs, key)
}

func keyMaterialFromJKS(data []byte, storePassword string, keyPassword string, provider *CryptoProvider) (*KeyMaterial, error) {
	store := keystore.New()

	if err := store.Load(bytes.NewReader(data), []byte(storePassword)); err != nil {
		return nil, err
	}

	// the key password defaults to the store password, matching keytool
	entryPassword := keyPassword
	if entryPassword == "" {
		entryPassword = storePassword
	}

	for _, alias := range store.Aliases() {
		if !store.IsPrivateKeyEntry(alias) {
			continue
		}

		entry, err := store.GetPrivateKeyEntry(alias, []byte(entryPassword))
		if err != nil {
			return nil, errors.Wrapf(err, "error reading private key entry [%s]", alias)
		}

		key, err := parsePrivateKey(entry.PrivateKey)
		if err != nil {
			return nil, err
		}

		var certs []*x509.Certificate
		for i, storeCert := range entry.CertificateChain {
			cert, err := provider.ParseCertificate(storeCert.Content)
			if err != nil {
				return nil, errors.Wrapf(err, "error parsing certificate [%d] of entry [%s]", i, alias)
			}
			certs = append(certs, cert)
		}

		return newKeyMaterial(certs, key)
	}

	return nil, errors.New("key store contains no private key entry")
}

func trustedCertificatesFromJKS(data []byte, storePassword string, provider *CryptoProvider) ([]*x509.Certificate, error) {
	store := keystore.New()

	if err := store.Load(bytes.NewReader(data), []byte(storePassword)); err != nil {
		return nil, err
	}

	var certs []*x509.Certificate

	for _, alias := range store.Aliases() {
		if !store.IsTrustedCertificateEntry(alias) {
			continue
		}

		entry, err := store.GetTrustedCertificateEntry(alias)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading trusted certificate entry [%s]", alias)
		}

		cert, err := provider.ParseCertificate(entry.Certificate.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing trusted certificate entry [%s]", alias)
		}

		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, errors.New("trust store contains no trusted certificate entries")
	}

	return certs, nil
}
