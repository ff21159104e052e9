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
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ParseListeners(t *testing.T) {

	t.Run("an empty list falls back to the deprecated port", func(t *testing.T) {
		req := require.New(t)

		specs, err := ParseListeners(nil, 8080, nil, SchemeHTTP)

		req.NoError(err)
		req.Len(specs, 1)
		req.Equal(SchemeHTTP, specs[0].Scheme)
		req.Equal(DefaultListenerHost, specs[0].Host)
		req.Equal(8080, specs[0].Port)
		req.Empty(specs[0].Name)
	})

	t.Run("a list with an empty first entry falls back to the deprecated port", func(t *testing.T) {
		req := require.New(t)

		specs, err := ParseListeners([]string{""}, 9090, nil, SchemeHTTP)

		req.NoError(err)
		req.Len(specs, 1)
		req.Equal(9090, specs[0].Port)
	})

	t.Run("scheme addressed listeners parse into unnamed specs", func(t *testing.T) {
		req := require.New(t)

		specs, err := ParseListeners([]string{"http://0.0.0.0:8080", "https://localhost:8443"}, 0, nil, SchemeHTTP)

		req.NoError(err)
		req.Len(specs, 2)
		req.Equal("http", specs[0].Scheme)
		req.Equal(8080, specs[0].Port)
		req.Empty(specs[0].Name)
		req.True(specs[1].IsSecure())
		req.Equal("localhost", specs[1].Host)
	})

	t.Run("a listener without a port is rejected", func(t *testing.T) {
		_, err := ParseListeners([]string{"http://0.0.0.0"}, 0, nil, SchemeHTTP)

		req := require.New(t)
		req.Error(err)

		var configErr *ConfigurationError
		req.ErrorAs(err, &configErr)
	})

	t.Run("a listener without a scheme is rejected", func(t *testing.T) {
		_, err := ParseListeners([]string{"0.0.0.0:8080"}, 0, nil, SchemeHTTP)

		req := require.New(t)
		req.Error(err)

		var configErr *ConfigurationError
		req.ErrorAs(err, &configErr)
	})

	t.Run("a listener with a malformed uri is rejected", func(t *testing.T) {
		_, err := ParseListeners([]string{"http://0.0.0.0:not-a-port"}, 0, nil, SchemeHTTP)

		req := require.New(t)
		req.Error(err)

		var configErr *ConfigurationError
		req.ErrorAs(err, &configErr)
	})

	t.Run("named listeners resolve their scheme through the protocol map", func(t *testing.T) {
		req := require.New(t)

		protocolMap, err := ParseProtocolMap([]string{"internal:https", "external:http"})
		req.NoError(err)

		specs, err := ParseListeners([]string{"INTERNAL://0.0.0.0:8443", "external://0.0.0.0:8080"}, 0, protocolMap, SchemeHTTP)

		req.NoError(err)
		req.Len(specs, 2)
		req.Equal("internal", specs[0].Name)
		req.Equal(SchemeHTTPS, specs[0].Scheme)
		req.Equal("external", specs[1].Name)
		req.Equal(SchemeHTTP, specs[1].Scheme)
	})

	t.Run("case differently named listeners are rejected as duplicates", func(t *testing.T) {
		req := require.New(t)

		protocolMap, err := ParseProtocolMap([]string{"a:https"})
		req.NoError(err)

		_, err = ParseListeners([]string{"A://0.0.0.0:8443", "a://0.0.0.0:9443"}, 0, protocolMap, SchemeHTTP)

		req.Error(err)

		var configErr *ConfigurationError
		req.ErrorAs(err, &configErr)
	})

	t.Run("well formed listeners with unknown schemes are dropped with a warning", func(t *testing.T) {
		req := require.New(t)

		specs, err := ParseListeners([]string{"ftp://0.0.0.0:2121", "http://0.0.0.0:8080"}, 0, nil, SchemeHTTP)

		req.NoError(err)
		req.Len(specs, 1)
		req.Equal("http", specs[0].Scheme)
	})

	t.Run("a list that drops to empty is rejected", func(t *testing.T) {
		_, err := ParseListeners([]string{"ftp://0.0.0.0:2121"}, 0, nil, SchemeHTTP)

		req := require.New(t)
		req.Error(err)

		var configErr *ConfigurationError
		req.ErrorAs(err, &configErr)
	})
}

func Test_ParseProtocolMap(t *testing.T) {

	t.Run("name and scheme pairs parse into a lower cased map", func(t *testing.T) {
		req := require.New(t)

		protocolMap, err := ParseProtocolMap([]string{"Internal:HTTPS"})

		req.NoError(err)
		req.Equal(SchemeHTTPS, protocolMap["internal"])
	})

	t.Run("a name colliding with a scheme token may only map to itself", func(t *testing.T) {
		req := require.New(t)

		_, err := ParseProtocolMap([]string{"http:https"})
		req.Error(err)

		protocolMap, err := ParseProtocolMap([]string{"http:http"})
		req.NoError(err)
		req.Equal(SchemeHTTP, protocolMap["http"])
	})

	t.Run("entries without a separator are rejected", func(t *testing.T) {
		_, err := ParseProtocolMap([]string{"no-separator"})
		require.Error(t, err)
	})

	t.Run("unknown schemes are rejected", func(t *testing.T) {
		_, err := ParseProtocolMap([]string{"internal:ftp"})
		require.Error(t, err)
	})

	t.Run("conflicting duplicate names are rejected", func(t *testing.T) {
		_, err := ParseProtocolMap([]string{"internal:https", "internal:http"})
		require.Error(t, err)
	})
}
