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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_InstanceImpl(t *testing.T) {

	t.Run("a yaml configuration file loads and validates", func(t *testing.T) {
		req := require.New(t)

		keyStorePath, _, _ := writePEMKeyStore(t, "yaml-config")

		configYAML := fmt.Sprintf(`
rest:
  - name: public
    listeners:
      - http://0.0.0.0:8080
      - internal://0.0.0.0:8443
    protocolMap:
      - internal:https
    ssl:
      keyStorePath: %s
      keyStoreType: PEM
      reloadEnabled: true
    options:
      readTimeout: 15s
    apps:
      - binding: echo
`, keyStorePath)

		path := filepath.Join(t.TempDir(), "server.yaml")
		req.NoError(os.WriteFile(path, []byte(configYAML), 0o600))

		instance := NewDefaultInstance(newEchoRegistry(t))
		req.NoError(instance.LoadConfigFile(path))
		req.True(instance.Enabled())

		req.Len(instance.Config.ServerConfigs, 1)

		serverConfig := instance.Config.ServerConfigs[0]
		req.Equal("public", serverConfig.Name)
		req.Len(serverConfig.ListenerSpecs(), 2)
		req.True(serverConfig.SSL.ReloadEnabled)
	})

	t.Run("a non map configuration file is rejected", func(t *testing.T) {
		req := require.New(t)

		path := filepath.Join(t.TempDir(), "server.yaml")
		req.NoError(os.WriteFile(path, []byte("- just\n- a\n- list\n"), 0o600))

		instance := NewDefaultInstance(newEchoRegistry(t))
		req.Error(instance.LoadConfigFile(path))
	})

	t.Run("a missing configuration file is reported", func(t *testing.T) {
		req := require.New(t)

		instance := NewDefaultInstance(newEchoRegistry(t))
		req.Error(instance.LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")))
	})

	t.Run("an empty rest section fails validation", func(t *testing.T) {
		req := require.New(t)

		instance := NewDefaultInstance(newEchoRegistry(t))

		err := instance.LoadConfig(map[interface{}]interface{}{
			"rest": []interface{}{},
		})

		req.Error(err)
		req.False(instance.Enabled())
	})

	t.Run("a non array rest section is rejected", func(t *testing.T) {
		req := require.New(t)

		instance := NewDefaultInstance(newEchoRegistry(t))

		err := instance.LoadConfig(map[interface{}]interface{}{
			"rest": map[interface{}]interface{}{"name": "not-an-array"},
		})

		req.Error(err)
	})
}
