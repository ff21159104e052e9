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
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/michaelquigley/pfxlog"
)

// DemuxFactory generates the http.Handler that routes decoded requests to
// the hosted applications of a server. The selected AppHandler is added to
// the request context under HandlerContextKey. Each DemuxFactory defines
// its own behavior for an unmatched request.
type DemuxFactory interface {
	Build(handlers []AppHandler) (http.Handler, error)
}

// PathPrefixDemuxFactory routes requests to an AppHandler by URL path
// prefix. When no prefix matches, the request falls through to the default
// application: either the single handler that declared itself the default
// or, absent one, the last hosted handler.
type PathPrefixDemuxFactory struct{}

var _ DemuxFactory = &PathPrefixDemuxFactory{}

// Build performs AppHandler selection based on URL path prefixes
func (factory *PathPrefixDemuxFactory) Build(handlers []AppHandler) (http.Handler, error) {
	defaultApp, err := getDefault(handlers)

	if err != nil {
		return nil, err
	}

	handlerMap := map[string]AppHandler{}

	for _, handler := range handlers {
		if existing, ok := handlerMap[handler.RootPath()]; ok {
			return nil, fmt.Errorf("duplicate root path [%s] detected for both bindings [%s] and [%s]", handler.RootPath(), handler.Binding(), existing.Binding())
		}
		handlerMap[handler.RootPath()] = handler
	}

	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		for _, handler := range handlers {
			if strings.HasPrefix(request.URL.Path, handler.RootPath()) {
				//store the AppHandler on the request context, useful for logging by downstream http handlers
				ctx := context.WithValue(request.Context(), HandlerContextKey, handler)
				handler.ServeHTTP(writer, request.WithContext(ctx))
				return
			}
		}

		if defaultApp != nil {
			ctx := context.WithValue(request.Context(), HandlerContextKey, defaultApp)
			defaultApp.ServeHTTP(writer, request.WithContext(ctx))
			return
		}

		writer.WriteHeader(http.StatusNotFound)
	}), nil
}

// getDefault determines which of a slice of AppHandler acts as the default
// should a request not match any handler. A handler may declare itself the
// default by implementing DefaultAppHandler; at most one is allowed to do
// so. When none declares itself, the last handler is used.
func getDefault(handlers []AppHandler) (AppHandler, error) {
	var defaults []AppHandler

	if len(handlers) == 0 {
		return nil, errors.New("no handlers provided")
	}

	for _, handler := range handlers {
		if curHandler, ok := handler.(DefaultAppHandler); ok {
			if curHandler.IsDefault() {
				defaults = append(defaults, curHandler)
			}
		}
	}

	if len(defaults) == 0 {
		lastHandler := handlers[len(handlers)-1]
		pfxlog.Logger().Warnf("no default handlers were found, using the last handler [Binding: %s, Type: %T] as the default", lastHandler.Binding(), lastHandler)
		return lastHandler, nil
	}

	if len(defaults) > 1 {
		var names []string
		for _, handler := range defaults {
			name := fmt.Sprintf("[Binding: %s, Type: %T]", handler.Binding(), handler)
			names = append(names, name)
		}

		strNames := strings.Join(names, ",")
		return nil, errors.New("too many default handlers found, ensure that only one handler is marked as the default: " + strNames)
	}

	return defaults[0], nil
}

// DefaultAppHandler marks an AppHandler that may claim unmatched requests.
type DefaultAppHandler interface {
	AppHandler
	IsDefault() bool
}
