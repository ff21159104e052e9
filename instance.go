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
	"context"
	"os"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Instance ties configuration loading, server construction, and lifecycle
// management together so an Instance implementation can be used during the
// normal component startup and configuration phase.
type Instance interface {
	Enabled() bool
	LoadConfig(cfgmap map[interface{}]interface{}) error
	Run() error
	Shutdown()
	GetRegistry() Registry
	GetDemuxFactory() DemuxFactory
	GetConfig() *InstanceConfig
}

const (
	DefaultConfigSection = "rest"
)

// InstanceImpl is a basic implementation of Instance.
type InstanceImpl struct {
	Config       *InstanceConfig
	servers      []*Server
	Registry     Registry
	DemuxFactory DemuxFactory
}

var _ Instance = &InstanceImpl{}

func NewDefaultInstance(registry Registry) *InstanceImpl {
	return &InstanceImpl{
		Registry:     registry,
		DemuxFactory: &PathPrefixDemuxFactory{},
		Config: &InstanceConfig{
			Section: DefaultConfigSection,
		},
	}
}

// GetRegistry returns the associated Registry
func (i *InstanceImpl) GetRegistry() Registry {
	return i.Registry
}

// GetDemuxFactory returns the associated DemuxFactory
func (i *InstanceImpl) GetDemuxFactory() DemuxFactory {
	return i.DemuxFactory
}

// GetConfig returns the associated InstanceConfig
func (i *InstanceImpl) GetConfig() *InstanceConfig {
	return i.Config
}

// Enabled returns true/false on whether this subconfig should be considered enabled
func (i *InstanceImpl) Enabled() bool {
	return i.Config.Enabled()
}

// LoadConfig handles subconfig operations for Instance components
func (i *InstanceImpl) LoadConfig(cfgmap map[interface{}]interface{}) error {
	if err := i.Config.Parse(cfgmap); err != nil {
		return err
	}

	//validate sets enabled flag to true on success
	if err := i.Config.Validate(i.Registry); err != nil {
		return err
	}

	return nil
}

// LoadConfigFile reads a YAML configuration file and delegates to LoadConfig.
func (i *InstanceImpl) LoadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "could not read configuration file [%s]", path)
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.Wrapf(err, "could not parse configuration file [%s]", path)
	}

	cfgmap, ok := normalizeConfigValue(raw).(map[interface{}]interface{})
	if !ok {
		return errors.Errorf("configuration file [%s] must contain a map at the top level", path)
	}

	return i.LoadConfig(cfgmap)
}

// normalizeConfigValue rewrites the string keyed maps produced by the YAML
// decoder into the interface keyed form the configuration parsers consume.
func normalizeConfigValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		normalized := map[interface{}]interface{}{}
		for key, entry := range typed {
			normalized[key] = normalizeConfigValue(entry)
		}
		return normalized
	case map[interface{}]interface{}:
		normalized := map[interface{}]interface{}{}
		for key, entry := range typed {
			normalized[key] = normalizeConfigValue(entry)
		}
		return normalized
	case []interface{}:
		normalized := make([]interface{}, 0, len(typed))
		for _, entry := range typed {
			normalized = append(normalized, normalizeConfigValue(entry))
		}
		return normalized
	default:
		return value
	}
}

// Build assembles all the server components from configuration and prepares to have Start() called.
func (i *InstanceImpl) Build() error {
	for _, serverConfig := range i.Config.ServerConfigs {
		server, err := NewServer(i, serverConfig)

		if err != nil {
			return errors.Wrapf(err, "error building server for %s", serverConfig.Name)
		}

		i.servers = append(i.servers, server)
	}

	return nil
}

// Start calls Start() on all Servers that were built by calling Build().
func (i *InstanceImpl) Start() error {
	for _, server := range i.servers {
		if err := server.Start(); err != nil {
			return errors.Wrapf(err, "error starting server %s", server.ServerConfig.Name)
		}
	}

	return nil
}

// Run builds and starts the necessary Server's
func (i *InstanceImpl) Run() error {
	if err := i.Build(); err != nil {
		return err
	}
	return i.Start()
}

// Servers returns the servers built by Build().
func (i *InstanceImpl) Servers() []*Server {
	return i.servers
}

// Shutdown stops all running Server's
func (i *InstanceImpl) Shutdown() {
	for _, server := range i.servers {
		localServer := server
		func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
			defer cancel()
			localServer.Shutdown(ctx)
		}()
	}

	pfxlog.Logger().Info("all servers stopped")
}
