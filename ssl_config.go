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
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	StoreTypePEM    = "PEM"
	StoreTypePKCS12 = "PKCS12"
	StoreTypeJKS    = "JKS"
)

// ClientAuth is the client certificate policy of a secure listener.
type ClientAuth int

const (
	// ClientAuthNone does not request a client certificate.
	ClientAuthNone ClientAuth = iota
	// ClientAuthWant requests a client certificate but does not require one.
	ClientAuthWant
	// ClientAuthNeed requires a verified client certificate.
	ClientAuthNeed
)

// ParseClientAuth resolves a configured client auth mode string.
func ParseClientAuth(mode string) (ClientAuth, error) {
	switch strings.ToUpper(strings.TrimSpace(mode)) {
	case "", "NONE":
		return ClientAuthNone, nil
	case "WANT", "REQUESTED":
		return ClientAuthWant, nil
	case "NEED", "REQUIRED":
		return ClientAuthNeed, nil
	default:
		return ClientAuthNone, configErrorf("invalid client auth mode [%s], must be NONE, WANT or NEED", mode)
	}
}

func (a ClientAuth) String() string {
	switch a {
	case ClientAuthWant:
		return "WANT"
	case ClientAuthNeed:
		return "NEED"
	default:
		return "NONE"
	}
}

// TLSClientAuthType maps the mode onto the TLS engine's client auth policy.
func (a ClientAuth) TLSClientAuthType() tls.ClientAuthType {
	switch a {
	case ClientAuthWant:
		return tls.VerifyClientCertIfGiven
	case ClientAuthNeed:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.NoClientCert
	}
}

// SslConfig is the per-listener (or server wide fallback) credential bundle.
// It is derived once from configuration and read-only afterwards; hot reload
// produces new store material without mutating the config itself.
type SslConfig struct {
	KeyStorePath       string
	KeyStoreType       string
	KeyStorePassword   string
	KeyPassword        string
	TrustStorePath     string
	TrustStoreType     string
	TrustStorePassword string

	// WatchPath is the file observed for rotation. Defaults to KeyStorePath.
	WatchPath     string
	ReloadEnabled bool

	ClientAuth             ClientAuth
	EnabledProtocols       []string
	CipherSuites           []string
	Provider               string
	EndpointIdentification string

	provider *CryptoProvider
}

// Default provides defaults for all necessary values.
func (config *SslConfig) Default() {
	config.ReloadEnabled = false
	config.ClientAuth = ClientAuthNone
}

// Parse parses a configuration map to set all relevant SslConfig values.
func (config *SslConfig) Parse(configMap map[interface{}]interface{}) error {
	stringValues := map[string]*string{
		"keyStorePath":           &config.KeyStorePath,
		"keyStoreType":           &config.KeyStoreType,
		"keyStorePassword":       &config.KeyStorePassword,
		"keyPassword":            &config.KeyPassword,
		"trustStorePath":         &config.TrustStorePath,
		"trustStoreType":         &config.TrustStoreType,
		"trustStorePassword":     &config.TrustStorePassword,
		"watchPath":              &config.WatchPath,
		"provider":               &config.Provider,
		"endpointIdentification": &config.EndpointIdentification,
	}

	for key, target := range stringValues {
		if interfaceVal, ok := configMap[key]; ok {
			if value, ok := interfaceVal.(string); ok {
				*target = value
			} else {
				return errors.Errorf("could not use value for %s, not a string", key)
			}
		}
	}

	if interfaceVal, ok := configMap["reloadEnabled"]; ok {
		if reload, ok := interfaceVal.(bool); ok {
			config.ReloadEnabled = reload
		} else {
			return errors.New("could not use value for reloadEnabled, not a bool")
		}
	}

	if interfaceVal, ok := configMap["clientAuth"]; ok {
		if modeStr, ok := interfaceVal.(string); ok {
			mode, err := ParseClientAuth(modeStr)
			if err != nil {
				return err
			}
			config.ClientAuth = mode
		} else {
			return errors.New("could not use value for clientAuth, not a string")
		}
	}

	listValues := map[string]*[]string{
		"enabledProtocols": &config.EnabledProtocols,
		"cipherSuites":     &config.CipherSuites,
	}

	for key, target := range listValues {
		if interfaceVal, ok := configMap[key]; ok {
			arrayVal, ok := interfaceVal.([]interface{})
			if !ok {
				return errors.Errorf("could not use value for %s, not an array", key)
			}
			for i, entryVal := range arrayVal {
				entry, ok := entryVal.(string)
				if !ok {
					return errors.Errorf("could not use value for %s at index [%d], not a string", key, i)
				}
				*target = append(*target, entry)
			}
		}
	}

	return nil
}

// Validate checks all SslConfig values and resolves the crypto provider.
// The FIPS provider only accepts PEM store types; any other combination is a
// configuration error raised here rather than deferred to first use.
func (config *SslConfig) Validate() error {
	provider, err := ProviderForName(config.Provider)
	if err != nil {
		return err
	}
	config.provider = provider

	if config.KeyStorePath == "" {
		return configErrorf("keyStorePath must be specified for a secure listener")
	}

	if config.KeyStoreType == "" {
		config.KeyStoreType = provider.DefaultStoreType()
	} else {
		config.KeyStoreType = strings.ToUpper(config.KeyStoreType)
	}

	if config.TrustStorePath != "" {
		if config.TrustStoreType == "" {
			config.TrustStoreType = provider.DefaultStoreType()
		} else {
			config.TrustStoreType = strings.ToUpper(config.TrustStoreType)
		}
	}

	for _, storeType := range []string{config.KeyStoreType, config.TrustStoreType} {
		if storeType == "" {
			continue
		}

		switch storeType {
		case StoreTypePEM, StoreTypePKCS12, StoreTypeJKS:
		default:
			return configErrorf("unknown credential store type [%s], must be one of PEM, PKCS12 or JKS", storeType)
		}

		if provider.FIPS() && storeType != StoreTypePEM {
			return configErrorf("the fips provider requires PEM credential stores, [%s] was configured", storeType)
		}
	}

	if config.WatchPath == "" {
		config.WatchPath = config.KeyStorePath
	}

	switch strings.ToUpper(config.EndpointIdentification) {
	case "", "HTTPS":
	default:
		return configErrorf("invalid endpointIdentification [%s], must be HTTPS or empty", config.EndpointIdentification)
	}

	for _, protocol := range config.EnabledProtocols {
		if _, ok := tlsProtocolVersions[protocol]; !ok {
			return configErrorf("invalid enabled protocol [%s], must be one of %v", protocol, tlsProtocolNames())
		}
	}

	return nil
}

// CryptoProvider returns the provider resolved during Validate.
func (config *SslConfig) CryptoProvider() *CryptoProvider {
	if config.provider == nil {
		return DefaultCryptoProvider
	}
	return config.provider
}

// tlsProtocolVersions maps configuration protocol names to TLS version
// identifiers.
var tlsProtocolVersions = map[string]uint16{
	"TLSv1":   tls.VersionTLS10,
	"TLSv1.1": tls.VersionTLS11,
	"TLSv1.2": tls.VersionTLS12,
	"TLSv1.3": tls.VersionTLS13,
}

func tlsProtocolNames() []string {
	return []string{"TLSv1", "TLSv1.1", "TLSv1.2", "TLSv1.3"}
}

func (config *SslConfig) String() string {
	return fmt.Sprintf("SslConfig{keyStore: %s (%s), trustStore: %s (%s), clientAuth: %s, provider: %s, reload: %v}",
		config.KeyStorePath, config.KeyStoreType, config.TrustStorePath, config.TrustStoreType,
		config.ClientAuth, config.CryptoProvider().Name(), config.ReloadEnabled)
}
