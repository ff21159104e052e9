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
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// DefaultPort is the deprecated single-port fallback used when a server
// declares no listeners.
const DefaultPort = 8080

// ServerConfig is the configuration that will eventually be used to create a Server (which in turn houses all
// the components necessary to run one http.Server per listener).
type ServerConfig struct {
	Name      string
	Listeners []string

	// Port is the deprecated single-port fallback, used only when the
	// listener list is absent.
	Port int

	ProtocolMap ProtocolMap

	// SSL is the server wide credential bundle; NamedSSL overrides it for
	// individual named listeners.
	SSL      *SslConfig
	NamedSSL map[string]*SslConfig

	HTTP2Enabled         bool
	ProxyProtocolEnabled bool

	// ServerConnectionLimit caps concurrently open connections across all
	// connectors of this server; ConnectionLimit caps each connector.
	ServerConnectionLimit int
	ConnectionLimit       int

	Apps    []*AppConfig
	Options Options

	specs []*ListenerSpec
}

// Default provides defaults for all necessary values.
func (config *ServerConfig) Default() {
	config.Port = DefaultPort
	config.HTTP2Enabled = true
	config.Options.Default()
}

// Parse parses a configuration map to set all relevant ServerConfig values.
func (config *ServerConfig) Parse(configMap map[interface{}]interface{}, pathContext string) error {
	config.Default()

	//parse name, required, string
	if nameInterface, ok := configMap["name"]; ok {
		if name, ok := nameInterface.(string); ok {
			config.Name = name
		} else {
			return errors.New("name is required to be a string")
		}
	} else {
		return errors.New("name is required")
	}

	//parse listeners, optional, array of strings
	if listenersInterface, ok := configMap["listeners"]; ok {
		if listenerVals, ok := listenersInterface.([]interface{}); ok {
			for i, listenerVal := range listenerVals {
				if listener, ok := listenerVal.(string); ok {
					config.Listeners = append(config.Listeners, listener)
				} else {
					return fmt.Errorf("error parsing listener at index [%d]: not a string", i)
				}
			}
		} else {
			return errors.New("listeners must be an array")
		}
	}

	//parse port, deprecated fallback
	if portInterface, ok := configMap["port"]; ok {
		if port, ok := portInterface.(int); ok {
			config.Port = port
		} else {
			return errors.New("could not use value for port, not an integer")
		}
	}

	//parse protocolMap, optional, array of name:scheme pairs
	if protocolMapInterface, ok := configMap["protocolMap"]; ok {
		if pairVals, ok := protocolMapInterface.([]interface{}); ok {
			var pairs []string
			for i, pairVal := range pairVals {
				if pair, ok := pairVal.(string); ok {
					pairs = append(pairs, pair)
				} else {
					return fmt.Errorf("error parsing protocolMap entry at index [%d]: not a string", i)
				}
			}

			protocolMap, err := ParseProtocolMap(pairs)
			if err != nil {
				return err
			}
			config.ProtocolMap = protocolMap
		} else {
			return errors.New("protocolMap must be an array")
		}
	}

	boolValues := map[string]*bool{
		"http2Enabled":         &config.HTTP2Enabled,
		"proxyProtocolEnabled": &config.ProxyProtocolEnabled,
	}

	for key, target := range boolValues {
		if interfaceVal, ok := configMap[key]; ok {
			if value, ok := interfaceVal.(bool); ok {
				*target = value
			} else {
				return errors.Errorf("could not use value for %s, not a bool", key)
			}
		}
	}

	intValues := map[string]*int{
		"serverConnectionLimit": &config.ServerConnectionLimit,
		"connectionLimit":       &config.ConnectionLimit,
	}

	for key, target := range intValues {
		if interfaceVal, ok := configMap[key]; ok {
			if value, ok := interfaceVal.(int); ok {
				*target = value
			} else {
				return errors.Errorf("could not use value for %s, not an integer", key)
			}
		}
	}

	//parse ssl, optional, server wide credential bundle
	if sslInterface, ok := configMap["ssl"]; ok {
		if sslMap, ok := sslInterface.(map[interface{}]interface{}); ok {
			sslConfig := &SslConfig{}
			sslConfig.Default()
			if err := sslConfig.Parse(sslMap); err != nil {
				return fmt.Errorf("error parsing ssl section: %v", err)
			}
			config.SSL = sslConfig
		} else {
			return errors.New("ssl section must be a map if defined")
		}
	}

	//parse listenerSsl, optional, per named listener overrides
	if namedSslInterface, ok := configMap["listenerSsl"]; ok {
		if namedSslMap, ok := namedSslInterface.(map[interface{}]interface{}); ok {
			config.NamedSSL = map[string]*SslConfig{}
			for nameVal, sslInterface := range namedSslMap {
				name, ok := nameVal.(string)
				if !ok {
					return errors.New("listenerSsl keys must be listener names")
				}

				sslMap, ok := sslInterface.(map[interface{}]interface{})
				if !ok {
					return fmt.Errorf("error parsing listenerSsl section for [%s]: not a map", name)
				}

				sslConfig := &SslConfig{}
				sslConfig.Default()
				if err := sslConfig.Parse(sslMap); err != nil {
					return fmt.Errorf("error parsing listenerSsl section for [%s]: %v", name, err)
				}
				config.NamedSSL[strings.ToLower(name)] = sslConfig
			}
		} else {
			return errors.New("listenerSsl section must be a map if defined")
		}
	}

	//parse apps, require 1, object, defer
	if appsInterface, ok := configMap["apps"]; ok {
		if appArrayInterfaces, ok := appsInterface.([]interface{}); ok {
			for i, appInterface := range appArrayInterfaces {
				if appMap, ok := appInterface.(map[interface{}]interface{}); ok {
					app := &AppConfig{}
					if err := app.Parse(appMap); err != nil {
						return fmt.Errorf("error parsing app configuration at index [%d]: %v", i, err)
					}

					config.Apps = append(config.Apps, app)
				} else {
					return fmt.Errorf("error parsing app configuration at index [%d]: not a map", i)
				}
			}
		} else {
			return errors.New("apps section must be an array")
		}
	} else {
		return errors.New("apps section is required")
	}

	//parse options
	if optionsInterface, ok := configMap["options"]; ok {
		if optionMap, ok := optionsInterface.(map[interface{}]interface{}); ok {
			if err := config.Options.Parse(optionMap); err != nil {
				return fmt.Errorf("error parsing options section: %v", err)
			}
		} //no else, options are optional
	}

	return nil
}

// Validate all ServerConfig values. Listener strings are resolved into
// ListenerSpec values here; every secure listener must resolve to a
// credential bundle.
func (config *ServerConfig) Validate(registry Registry) error {
	if config.Name == "" {
		return errors.New("name must not be empty")
	}

	if len(config.Apps) <= 0 {
		return errors.New("no apps specified, must specify at least one")
	}

	for i, app := range config.Apps {
		if err := app.Validate(); err != nil {
			return fmt.Errorf("invalid AppConfig at index [%d]: %v", i, err)
		}

		//check if binding is valid
		if binding := registry.Get(app.Binding()); binding == nil {
			return fmt.Errorf("invalid AppConfig at index [%d]: invalid binding %s", i, app.Binding())
		}
	}

	specs, err := ParseListeners(config.Listeners, config.Port, config.ProtocolMap, SchemeHTTP)
	if err != nil {
		return err
	}
	config.specs = specs

	if config.SSL != nil {
		if err := config.SSL.Validate(); err != nil {
			return fmt.Errorf("invalid ssl section: %v", err)
		}
	}

	for name, sslConfig := range config.NamedSSL {
		if err := sslConfig.Validate(); err != nil {
			return fmt.Errorf("invalid listenerSsl section for [%s]: %v", name, err)
		}
	}

	for _, spec := range specs {
		if spec.IsSecure() && config.SslFor(spec) == nil {
			return configErrorf("listener [%s] requires an ssl section, none was configured", spec)
		}
	}

	if config.ServerConnectionLimit < 0 || config.ConnectionLimit < 0 {
		return errors.New("connection limits must not be negative")
	}

	if err := config.Options.TimeoutOptions.Validate(); err != nil {
		return fmt.Errorf("invalid timeout option: %v", err)
	}

	return nil
}

// ListenerSpecs returns the listener descriptors resolved during Validate.
func (config *ServerConfig) ListenerSpecs() []*ListenerSpec {
	return config.specs
}

// SslFor resolves the credential bundle of a listener: the named override
// when one exists, otherwise the server wide bundle.
func (config *ServerConfig) SslFor(spec *ListenerSpec) *SslConfig {
	if spec.Name != "" {
		if sslConfig, ok := config.NamedSSL[spec.Name]; ok {
			return sslConfig
		}
	}
	return config.SSL
}
