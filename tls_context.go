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
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

// TlsContext binds one secure listener's credential material to its
// negotiation constraints. The context itself is immutable once built; the
// key and trust material it references is swapped wholesale by the
// credential watcher's reload callback, under a lock shared with
// handshake-time readers, so a handshake observes either the old or the
// fully new material and never a mix.
type TlsContext struct {
	config   *SslConfig
	provider *CryptoProvider

	mu    sync.RWMutex
	key   *KeyMaterial
	trust *TrustMaterial

	watcher *CredentialWatcher
}

// NewTlsContext loads the configured credential material and, when reload
// is enabled, registers the context with a credential watcher. A failed
// initial load aborts startup; a failed watch setup logs a warning and
// disables hot reload for this listener only.
func NewTlsContext(config *SslConfig) (*TlsContext, error) {
	tlsContext := &TlsContext{
		config:   config,
		provider: config.CryptoProvider(),
	}

	if err := tlsContext.load(); err != nil {
		return nil, err
	}

	if config.ReloadEnabled {
		watcher, err := WatchCredential(config.WatchPath, tlsContext.Reload)
		if err != nil {
			pfxlog.Logger().Warnf("credential reload disabled for [%s]: %v", config.KeyStorePath, err)
		} else {
			tlsContext.watcher = watcher
		}
	}

	return tlsContext, nil
}

func (c *TlsContext) load() error {
	key, err := LoadKeyMaterial(c.config)
	if err != nil {
		return err
	}

	var trust *TrustMaterial
	if c.config.TrustStorePath != "" {
		trust, err = LoadTrustMaterial(c.config)
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.key = key
	c.trust = trust
	c.mu.Unlock()

	return nil
}

// Reload re-reads the configured stores and atomically swaps the live
// material. Invoked by the credential watcher; may also be called directly.
// On error the previously loaded material remains active.
func (c *TlsContext) Reload() error {
	if err := c.load(); err != nil {
		return errors.Wrapf(err, "error reloading credential material for [%s]", c.config.KeyStorePath)
	}
	return nil
}

// KeyMaterial returns the currently active key material.
func (c *TlsContext) KeyMaterial() *KeyMaterial {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

// TrustMaterial returns the currently active trust material, or nil when no
// trust store is configured.
func (c *TlsContext) TrustMaterial() *TrustMaterial {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trust
}

// LastReloadFailure reports the most recent reload error for health checks,
// or nil when the last reload succeeded or reload is disabled.
func (c *TlsContext) LastReloadFailure() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.LastFailure()
}

// Close stops the credential watcher, if one is active.
func (c *TlsContext) Close() {
	if c.watcher != nil {
		c.watcher.Stop()
	}
}

// ServerTLSConfig builds the TLS engine configuration for this listener.
// Certificate and client CA lookups read the live material under the shared
// lock, so hot reloaded material applies to new handshakes immediately.
func (c *TlsContext) ServerTLSConfig() *tls.Config {
	minVersion, maxVersion := c.protocolWindow()

	tlsConfig := &tls.Config{
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
		ClientAuth:   c.config.ClientAuth.TLSClientAuthType(),
		CipherSuites: c.cipherSuiteIDs(),
		GetCertificate: func(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return &c.key.Certificate, nil
		},
	}

	if c.config.TrustStorePath != "" {
		// ClientCAs is fixed per handshake config, resolve it per connection
		// so a reloaded trust store takes effect
		base := tlsConfig
		tlsConfig.GetConfigForClient = func(_ *tls.ClientHelloInfo) (*tls.Config, error) {
			perConn := base.Clone()
			c.mu.RLock()
			if c.trust != nil {
				perConn.ClientCAs = c.trust.Pool
			}
			c.mu.RUnlock()
			return perConn, nil
		}
	}

	return tlsConfig
}

// protocolWindow maps the allowed protocol list onto the engine's
// min/max version window. The engine cannot express gaps inside the window;
// the window spans the lowest and highest allowed versions, floored at the
// provider minimum.
func (c *TlsContext) protocolWindow() (uint16, uint16) {
	minVersion := uint16(0)
	maxVersion := uint16(0)

	for _, protocol := range c.config.EnabledProtocols {
		version := tlsProtocolVersions[protocol]
		if minVersion == 0 || version < minVersion {
			minVersion = version
		}
		if version > maxVersion {
			maxVersion = version
		}
	}

	if minVersion == 0 {
		minVersion = c.provider.MinTLSVersion()
		maxVersion = tls.VersionTLS13
	}

	if minVersion < c.provider.MinTLSVersion() {
		minVersion = c.provider.MinTLSVersion()
	}

	if maxVersion < minVersion {
		maxVersion = minVersion
	}

	return minVersion, maxVersion
}

// cipherSuiteIDs resolves the configured cipher suite names against the
// engine's suite tables and applies the provider restriction. Unknown names
// are treated as unavailable suites and dropped with a warning.
func (c *TlsContext) cipherSuiteIDs() []uint16 {
	var ids []uint16

	for _, name := range c.config.CipherSuites {
		id, ok := cipherSuiteByName(name)
		if !ok {
			pfxlog.Logger().Warnf("ignoring unknown cipher suite [%s]", name)
			continue
		}
		ids = append(ids, id)
	}

	return c.provider.FilterCipherSuites(ids)
}

func cipherSuiteByName(name string) (uint16, bool) {
	for _, suite := range tls.CipherSuites() {
		if suite.Name == name {
			return suite.ID, true
		}
	}
	for _, suite := range tls.InsecureCipherSuites() {
		if suite.Name == name {
			return suite.ID, true
		}
	}
	return 0, false
}
