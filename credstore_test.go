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
	"crypto/ecdsa"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/stretchr/testify/require"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

func writeTestFile(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func writePEMKeyStore(t *testing.T, commonName string) (string, *x509.Certificate, *ecdsa.PrivateKey) {
	cert, key := generateTestCertificate(t, commonName)

	data := encodeCertificatePEM(t, cert)
	data = append(data, encodePrivateKeyPEM(t, key)...)

	return writeTestFile(t, "keystore.pem", data), cert, key
}

func validatedSslConfig(t *testing.T, keyStorePath string, keyStoreType string) *SslConfig {
	config := &SslConfig{}
	config.Default()
	config.KeyStorePath = keyStorePath
	config.KeyStoreType = keyStoreType
	require.NoError(t, config.Validate())
	return config
}

func Test_LoadKeyMaterial(t *testing.T) {

	t.Run("a PEM key store round trips", func(t *testing.T) {
		req := require.New(t)

		path, cert, key := writePEMKeyStore(t, "pem-store")
		config := validatedSslConfig(t, path, StoreTypePEM)

		material, err := LoadKeyMaterial(config)

		req.NoError(err)
		req.Equal(cert.Raw, material.Leaf.Raw)
		req.Len(material.Certificate.Certificate, 1)

		signer, ok := material.Certificate.PrivateKey.(*ecdsa.PrivateKey)
		req.True(ok)
		req.True(key.Equal(signer))
	})

	t.Run("loading the same store twice yields equal material", func(t *testing.T) {
		req := require.New(t)

		path, _, _ := writePEMKeyStore(t, "repeat")
		config := validatedSslConfig(t, path, StoreTypePEM)

		first, err := LoadKeyMaterial(config)
		req.NoError(err)

		second, err := LoadKeyMaterial(config)
		req.NoError(err)

		req.Equal(first.Leaf.Raw, second.Leaf.Raw)
	})

	t.Run("a PEM key store with an encrypted key decrypts with keyPassword", func(t *testing.T) {
		req := require.New(t)

		cert, key := generateTestCertificate(t, "encrypted-pem")

		data := encodeCertificatePEM(t, cert)
		data = append(data, encodeEncryptedPrivateKeyPEM(t, key, "sekrit")...)

		config := validatedSslConfig(t, writeTestFile(t, "keystore.pem", data), StoreTypePEM)
		config.KeyPassword = "sekrit"

		material, err := LoadKeyMaterial(config)

		req.NoError(err)
		req.Equal(cert.Raw, material.Leaf.Raw)
	})

	t.Run("a PKCS12 key store round trips with its full chain", func(t *testing.T) {
		req := require.New(t)

		ca, _ := generateTestCertificate(t, "pkcs12-ca")
		leaf, key := generateTestCertificate(t, "pkcs12-leaf")

		data, err := pkcs12.Modern.Encode(key, leaf, []*x509.Certificate{ca}, "storepass")
		req.NoError(err)

		config := validatedSslConfig(t, writeTestFile(t, "keystore.p12", data), StoreTypePKCS12)
		config.KeyStorePassword = "storepass"

		material, err := LoadKeyMaterial(config)

		req.NoError(err)
		req.Equal(leaf.Raw, material.Leaf.Raw)
		req.Len(material.Certificate.Certificate, 2)
		req.Equal(ca.Raw, material.Certificate.Certificate[1])
	})

	t.Run("a JKS key store round trips", func(t *testing.T) {
		req := require.New(t)

		cert, key := generateTestCertificate(t, "jks-store")

		keyDER, err := x509.MarshalPKCS8PrivateKey(key)
		req.NoError(err)

		store := keystore.New()
		err = store.SetPrivateKeyEntry("server", keystore.PrivateKeyEntry{
			CreationTime: time.Now(),
			PrivateKey:   keyDER,
			CertificateChain: []keystore.Certificate{
				{Type: "X509", Content: cert.Raw},
			},
		}, []byte("storepass"))
		req.NoError(err)

		buf := &bytes.Buffer{}
		req.NoError(store.Store(buf, []byte("storepass")))

		// no keyPassword: the entry password defaults to the store password
		config := validatedSslConfig(t, writeTestFile(t, "keystore.jks", buf.Bytes()), StoreTypeJKS)
		config.KeyStorePassword = "storepass"

		material, err := LoadKeyMaterial(config)

		req.NoError(err)
		req.Equal(cert.Raw, material.Leaf.Raw)
	})

	t.Run("a missing key store file fails with CredentialLoadError", func(t *testing.T) {
		req := require.New(t)

		config := validatedSslConfig(t, filepath.Join(t.TempDir(), "absent.pem"), StoreTypePEM)

		_, err := LoadKeyMaterial(config)

		req.Error(err)

		var loadErr *CredentialLoadError
		req.ErrorAs(err, &loadErr)
		req.Equal(config.KeyStorePath, loadErr.Path)
	})

	t.Run("a PEM store without certificate entries fails with NoMatchingEntryError", func(t *testing.T) {
		req := require.New(t)

		_, key := generateTestCertificate(t, "no-certs")
		config := validatedSslConfig(t, writeTestFile(t, "keystore.pem", encodePrivateKeyPEM(t, key)), StoreTypePEM)

		_, err := LoadKeyMaterial(config)

		req.Error(err)

		var noEntry *NoMatchingEntryError
		req.ErrorAs(err, &noEntry)
	})

	t.Run("the fips provider refuses binary key stores", func(t *testing.T) {
		req := require.New(t)

		config := &SslConfig{
			KeyStorePath: "unused.jks",
			KeyStoreType: StoreTypeJKS,
			provider:     FIPSCryptoProvider,
		}

		_, err := LoadKeyMaterial(config)

		req.Error(err)

		var configErr *ConfigurationError
		req.ErrorAs(err, &configErr)
	})
}

func Test_LoadTrustMaterial(t *testing.T) {

	t.Run("a PEM trust store yields one trusted certificate per entry", func(t *testing.T) {
		req := require.New(t)

		first, _ := generateTestCertificate(t, "trusted-1")
		second, _ := generateTestCertificate(t, "trusted-2")

		path := writeTestFile(t, "truststore.pem", encodeCertificatePEM(t, first, second))

		config := validatedSslConfig(t, path, StoreTypePEM)
		config.TrustStorePath = path
		config.TrustStoreType = StoreTypePEM

		material, err := LoadTrustMaterial(config)

		req.NoError(err)
		req.Len(material.Certificates, 2)
		req.NotNil(material.Pool)
	})

	t.Run("a PKCS12 trust store round trips", func(t *testing.T) {
		req := require.New(t)

		trusted, _ := generateTestCertificate(t, "pkcs12-trusted")

		data, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{trusted}, "storepass")
		req.NoError(err)

		path := writeTestFile(t, "truststore.p12", data)

		config := validatedSslConfig(t, path, StoreTypePKCS12)
		config.TrustStorePath = path
		config.TrustStoreType = StoreTypePKCS12
		config.TrustStorePassword = "storepass"

		material, err := LoadTrustMaterial(config)

		req.NoError(err)
		req.Len(material.Certificates, 1)
		req.Equal(trusted.Raw, material.Certificates[0].Raw)
	})

	t.Run("a JKS trust store round trips", func(t *testing.T) {
		req := require.New(t)

		trusted, _ := generateTestCertificate(t, "jks-trusted")

		store := keystore.New()
		err := store.SetTrustedCertificateEntry("ca", keystore.TrustedCertificateEntry{
			CreationTime: time.Now(),
			Certificate:  keystore.Certificate{Type: "X509", Content: trusted.Raw},
		})
		req.NoError(err)

		buf := &bytes.Buffer{}
		req.NoError(store.Store(buf, []byte("storepass")))

		path := writeTestFile(t, "truststore.jks", buf.Bytes())

		config := validatedSslConfig(t, path, StoreTypeJKS)
		config.TrustStorePath = path
		config.TrustStoreType = StoreTypeJKS
		config.TrustStorePassword = "storepass"

		material, err := LoadTrustMaterial(config)

		req.NoError(err)
		req.Len(material.Certificates, 1)
		req.Equal(trusted.Raw, material.Certificates[0].Raw)
	})
}
