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
	"net/http"

	"github.com/pkg/errors"
)

// AppConfig identifies a hosted application by binding name. Each AppConfig
// is resolved against a Registry to locate the factory that builds the
// application's handler. The options are opaque to the listener layer and
// interpreted solely by the resolved AppHandlerFactory.
type AppConfig struct {
	binding string
	options map[interface{}]interface{}
}

// Binding returns the name that uniquely identifies the application factory
// and the handlers it produces.
func (app *AppConfig) Binding() string {
	return app.binding
}

// Options returns the options associated with this application binding.
func (app *AppConfig) Options() map[interface{}]interface{} {
	return app.options
}

// Parse the configuration map for an AppConfig.
func (app *AppConfig) Parse(appConfigMap map[interface{}]interface{}) error {
	if bindingInterface, ok := appConfigMap["binding"]; ok {
		if binding, ok := bindingInterface.(string); ok {
			app.binding = binding
		} else {
			return errors.New("binding must be a string")
		}
	} else {
		return errors.New("binding is required")
	}

	if optionsInterface, ok := appConfigMap["options"]; ok {
		if optionsMap, ok := optionsInterface.(map[interface{}]interface{}); ok {
			app.options = optionsMap //leave to bindings to interpret further
		} else {
			return errors.New("options if declared must be a map")
		}
	} //no else optional

	return nil
}

// Validate this configuration object.
func (app *AppConfig) Validate() error {
	if app.Binding() == "" {
		return errors.New("binding must be specified")
	}

	return nil
}

// AppHandler is a http.Handler hosted by a server, addressable by binding
// name and rooted at a URL path prefix.
type AppHandler interface {
	http.Handler
	Binding() string
	RootPath() string
	Options() map[interface{}]interface{}
}

// AppHandlerFactory builds AppHandler instances for a binding from the
// hosting server's configuration.
type AppHandlerFactory interface {
	Binding() string
	New(serverConfig *ServerConfig, options map[interface{}]interface{}) (AppHandler, error)
	Validate(config *InstanceConfig) error
}
