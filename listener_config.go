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
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/michaelquigley/pfxlog"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"

	// DefaultListenerHost is the wildcard host used when the deprecated
	// single-port fallback synthesizes a listener.
	DefaultListenerHost = "0.0.0.0"
)

// SupportedSchemes is the set of transport schemes a listener may bind.
var SupportedSchemes = []string{SchemeHTTP, SchemeHTTPS}

// ConfigurationError indicates malformed or contradictory listener or
// protocol-map input. It is fatal at startup and never retried.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string {
	return e.msg
}

func configErrorf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{msg: fmt.Sprintf(format, args...)}
}

// ListenerSpec is a validated listener descriptor: an optional logical name
// plus the transport scheme, host, and port the listener binds. Specs are
// constructed once at startup and immutable thereafter.
type ListenerSpec struct {
	Name   string
	Scheme string
	Host   string
	Port   int
}

// Address returns the host:port the listener binds.
func (spec *ListenerSpec) Address() string {
	return net.JoinHostPort(spec.Host, strconv.Itoa(spec.Port))
}

// IsSecure returns true when the listener terminates TLS.
func (spec *ListenerSpec) IsSecure() bool {
	return spec.Scheme == SchemeHTTPS
}

func (spec *ListenerSpec) String() string {
	if spec.Name != "" {
		return fmt.Sprintf("%s://%s (%s)", spec.Scheme, spec.Address(), spec.Name)
	}
	return fmt.Sprintf("%s://%s", spec.Scheme, spec.Address())
}

// ProtocolMap maps a lower-cased listener name to the transport scheme that
// listener uses. It is consulted only while resolving listener strings whose
// scheme token is not itself a supported transport scheme.
type ProtocolMap map[string]string

// ParseProtocolMap builds a ProtocolMap from "name:scheme" pairs. A name that
// collides with a supported scheme token may only map to itself, so a
// listener named "http" can never declare an "https" transport.
func ParseProtocolMap(pairs []string) (ProtocolMap, error) {
	protocolMap := ProtocolMap{}

	for _, pair := range pairs {
		name, scheme, found := strings.Cut(pair, ":")
		if !found {
			return nil, configErrorf("invalid protocol map entry [%s], expected name:scheme", pair)
		}

		name = strings.ToLower(strings.TrimSpace(name))
		scheme = strings.ToLower(strings.TrimSpace(scheme))

		if name == "" {
			return nil, configErrorf("invalid protocol map entry [%s], name must not be empty", pair)
		}

		if !isSupportedScheme(scheme) {
			return nil, configErrorf("invalid protocol map entry [%s], scheme must be one of %v", pair, SupportedSchemes)
		}

		if isSupportedScheme(name) && name != scheme {
			return nil, configErrorf("invalid protocol map entry [%s], listener name [%s] is a transport scheme and may only map to itself", pair, name)
		}

		if existing, ok := protocolMap[name]; ok && existing != scheme {
			return nil, configErrorf("invalid protocol map entry [%s], listener name [%s] already maps to [%s]", pair, name, existing)
		}

		protocolMap[name] = scheme
	}

	return protocolMap, nil
}

// ParseListeners turns an ordered list of listener strings into validated
// ListenerSpec values. Each entry is either scheme://host:port for a
// scheme-addressed listener or name://host:port for a named listener whose
// transport is resolved through the protocol map.
//
// An empty list (or a list whose first entry is empty) falls back to the
// deprecated single-port form and synthesizes one listener on
// defaultScheme://0.0.0.0:<fallbackPort>.
//
// Structurally invalid entries fail with ConfigurationError. Well-formed
// entries whose scheme is neither a supported transport nor a known listener
// name are dropped with a warning.
func ParseListeners(listeners []string, fallbackPort int, protocolMap ProtocolMap, defaultScheme string) ([]*ListenerSpec, error) {
	logger := pfxlog.Logger()

	if len(listeners) == 0 || strings.TrimSpace(listeners[0]) == "" {
		logger.Warnf("no listeners configured, falling back to the deprecated port configuration; set the listeners list explicitly instead")
		listeners = []string{fmt.Sprintf("%s://%s:%d", defaultScheme, DefaultListenerHost, fallbackPort)}
	}

	var specs []*ListenerSpec
	namedSpecs := map[string]*ListenerSpec{}

	for _, listener := range listeners {
		spec, err := parseListener(listener, protocolMap)
		if err != nil {
			return nil, err
		}

		if spec == nil {
			continue //dropped, unsupported scheme
		}

		if spec.Name != "" {
			if existing, ok := namedSpecs[spec.Name]; ok {
				return nil, configErrorf("duplicate listener name [%s] declared by [%s] and [%s]", spec.Name, existing, spec)
			}
			namedSpecs[spec.Name] = spec
		}

		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, configErrorf("no usable listeners found in %v", listeners)
	}

	return specs, nil
}

func parseListener(listener string, protocolMap ProtocolMap) (*ListenerSpec, error) {
	uri, err := url.Parse(strings.TrimSpace(listener))

	if err != nil {
		return nil, configErrorf("could not parse listener [%s]: %v", listener, err)
	}

	if uri.Scheme == "" {
		return nil, configErrorf("listener [%s] must declare a scheme or listener name", listener)
	}

	if uri.Port() == "" {
		return nil, configErrorf("listener [%s] must declare an explicit port", listener)
	}

	port, err := strconv.Atoi(uri.Port())

	if err != nil || port < 1 || port > 65535 {
		return nil, configErrorf("listener [%s] has an invalid port, must be 1-65535", listener)
	}

	scheme := strings.ToLower(uri.Scheme)

	if isSupportedScheme(scheme) {
		return &ListenerSpec{
			Scheme: scheme,
			Host:   uri.Hostname(),
			Port:   port,
		}, nil
	}

	// not a transport scheme, treat it as a listener name
	name := scheme

	mappedScheme, ok := protocolMap[name]
	if !ok {
		pfxlog.Logger().Warnf("ignoring listener [%s] with unsupported scheme [%s], not a transport scheme and not present in the protocol map", listener, uri.Scheme)
		return nil, nil
	}

	return &ListenerSpec{
		Name:   name,
		Scheme: mappedScheme,
		Host:   uri.Hostname(),
		Port:   port,
	}, nil
}

func isSupportedScheme(scheme string) bool {
	for _, supported := range SupportedSchemes {
		if scheme == supported {
			return true
		}
	}
	return false
}
