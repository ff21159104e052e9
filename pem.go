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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/pkg/errors"
	"github.com/youmark/pkcs8"
)

const (
	pemKindCertificate         = "CERTIFICATE"
	pemKindPrivateKey          = "PRIVATE KEY"
	pemKindEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
	pemKindRSAPrivateKey       = "RSA PRIVATE KEY"
	pemKindECPrivateKey        = "EC PRIVATE KEY"
)

// NoMatchingEntryError indicates that PEM data contained zero entries of a
// required kind.
type NoMatchingEntryError struct {
	Kind string
}

func (e *NoMatchingEntryError) Error() string {
	return fmt.Sprintf("no [%s] entry found in PEM data", e.Kind)
}

// UnparsablePrivateKeyError indicates that a private key entry could not be
// reconstructed by any supported algorithm. Cause carries the failure of the
// first algorithm tried.
type UnparsablePrivateKeyError struct {
	Cause error
}

func (e *UnparsablePrivateKeyError) Error() string {
	return fmt.Sprintf("could not parse private key: %v", e.Cause)
}

func (e *UnparsablePrivateKeyError) Unwrap() error {
	return e.Cause
}

// decodePEMEntries returns the decoded payload of every PEM block of the
// given kind found in data. Surrounding text, RFC 1421 style header lines,
// and arbitrary payload wrapping are tolerated.
func decodePEMEntries(data []byte, kind string) [][]byte {
	var entries [][]byte

	rest := data
	for {
		block, remainder := pem.Decode(rest)
		if block == nil {
			break
		}
		rest = remainder

		if block.Type == kind {
			entries = append(entries, block.Bytes)
		}
	}

	return entries
}

// decodePEMCertificates reconstructs every CERTIFICATE entry in data through
// the provider's certificate factory, in file order.
func decodePEMCertificates(data []byte, provider *CryptoProvider) ([]*x509.Certificate, error) {
	entries := decodePEMEntries(data, pemKindCertificate)

	if len(entries) == 0 {
		return nil, &NoMatchingEntryError{Kind: pemKindCertificate}
	}

	var certs []*x509.Certificate
	for i, entry := range entries {
		cert, err := provider.ParseCertificate(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing certificate entry at index [%d]", i)
		}
		certs = append(certs, cert)
	}

	return certs, nil
}

// keyParser pairs an algorithm label with its parse function. Parsers are
// tried in the fixed order below so failures are reproducible.
type keyParser struct {
	algorithm string
	parse     func(der []byte) (crypto.PrivateKey, error)
}

var keyParsers = []keyParser{
	{"PKCS8", func(der []byte) (crypto.PrivateKey, error) {
		return x509.ParsePKCS8PrivateKey(der)
	}},
	{"RSA", func(der []byte) (crypto.PrivateKey, error) {
		return x509.ParsePKCS1PrivateKey(der)
	}},
	{"EC", func(der []byte) (crypto.PrivateKey, error) {
		return x509.ParseECPrivateKey(der)
	}},
}

// decodePEMPrivateKey reconstructs the single private key entry in data.
// With an empty keyPassword the entry is parsed as an unencrypted key,
// trying each algorithm parser in order. With a keyPassword the entry is
// treated as an encrypted PKCS#8 structure and decrypted with a symmetric
// key derived from the password.
//
// Zero private key entries yields NoMatchingEntryError; more than one is a
// hard error since a key-store binds exactly one key under its alias.
func decodePEMPrivateKey(data []byte, keyPassword string) (crypto.PrivateKey, error) {
	var entries [][]byte
	for _, kind := range []string{pemKindPrivateKey, pemKindEncryptedPrivateKey, pemKindRSAPrivateKey, pemKindECPrivateKey} {
		entries = append(entries, decodePEMEntries(data, kind)...)
	}

	if len(entries) == 0 {
		return nil, &NoMatchingEntryError{Kind: pemKindPrivateKey}
	}

	if len(entries) > 1 {
		return nil, errors.Errorf("expected exactly one private key entry, found %d", len(entries))
	}

	if keyPassword != "" {
		return decryptPrivateKey(entries[0], keyPassword)
	}

	return parsePrivateKey(entries[0])
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	var firstErr error

	for _, parser := range keyParsers {
		key, err := parser.parse(der)
		if err == nil {
			return key, nil
		}
		if firstErr == nil {
			firstErr = errors.Wrapf(err, "%s key factory rejected key", parser.algorithm)
		}
	}

	return nil, &UnparsablePrivateKeyError{Cause: firstErr}
}

// decryptPrivateKey parses der as an encrypted PKCS#8 EncryptedPrivateKeyInfo
// structure. The structure's declared PBE algorithm drives key derivation
// from the password; the recovered key spec is handed to the algorithm
// specific factories.
func decryptPrivateKey(der []byte, keyPassword string) (crypto.PrivateKey, error) {
	key, err := pkcs8.ParsePKCS8PrivateKey(der, []byte(keyPassword))
	if err != nil {
		return nil, &UnparsablePrivateKeyError{Cause: errors.Wrap(err, "could not decrypt PKCS#8 key")}
	}
	return key, nil
}

// signerFromKey asserts that a reconstructed private key is usable for TLS
// handshakes.
func signerFromKey(key crypto.PrivateKey) (crypto.Signer, error) {
	switch typed := key.(type) {
	case *rsa.PrivateKey:
		return typed, nil
	case *ecdsa.PrivateKey:
		return typed, nil
	case ed25519.PrivateKey:
		return typed, nil
	default:
		return nil, errors.Errorf("unsupported private key type %T", key)
	}
}
