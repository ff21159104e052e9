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
	"crypto/tls"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/confluentinc/rest-utils-sub002/middleware"
	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/debugz"
	"github.com/pkg/errors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServerContext carries the configuration a request arrived through and is
// reachable from the request context under ServerContextKey.
type ServerContext struct {
	Listener     *ListenerSpec
	ServerConfig *ServerConfig
	Config       *InstanceConfig
}

type namedHttpServer struct {
	*http.Server
	AppBindingList []string
	Connector      *Connector
	ServerConfig   *ServerConfig
	InstanceConfig *InstanceConfig
}

func (s namedHttpServer) NewBaseContext(_ net.Listener) context.Context {
	serverContext := &ServerContext{
		Listener:     s.Connector.Spec,
		ServerConfig: s.ServerConfig,
		Config:       s.InstanceConfig,
	}

	ctx := context.Background()
	ctx = context.WithValue(ctx, ServerContextKey, serverContext)

	return ctx
}

// Server represents all the http.Server's, connectors and TLS contexts
// necessary to run a single ServerConfig. One connector and one http.Server
// exist per resolved listener.
type Server struct {
	HttpServers    []*namedHttpServer
	Connectors     []*Connector
	logWriter      *io.PipeWriter
	gate           *connectionGate
	Handle         http.Handler
	OnHandlerPanic func(writer http.ResponseWriter, request *http.Request, panicVal interface{})
	ServerConfig   *ServerConfig
}

// NewServer creates a new Server from a ServerConfig. All necessary http.Handler's will be created from the supplied
// Instance's DemuxFactory and Registry, and each listener gets its connector plan and, when secure, its TlsContext.
func NewServer(instance Instance, serverConfig *ServerConfig) (*Server, error) {
	logWriter := pfxlog.Logger().Writer()

	server := &Server{
		logWriter:    logWriter,
		HttpServers:  []*namedHttpServer{},
		ServerConfig: serverConfig,
		gate:         newConnectionGate(serverConfig.ServerConnectionLimit),
	}

	var handlers []AppHandler
	var appBindingList []string

	for _, app := range serverConfig.Apps {
		appFactory := instance.GetRegistry().Get(app.Binding())
		if appFactory == nil {
			return nil, errors.Errorf("encountered application binding [%s] which has no associated factory registered", app.Binding())
		}

		handler, err := appFactory.New(serverConfig, app.Options())
		if err != nil {
			return nil, errors.Wrapf(err, "error building handler for application binding [%s]", app.Binding())
		}

		handlers = append(handlers, handler)
		appBindingList = append(appBindingList, app.Binding())
	}

	demuxHandler, err := instance.GetDemuxFactory().Build(handlers)

	if err != nil {
		return nil, errors.Wrap(err, "error creating server")
	}

	for _, spec := range serverConfig.ListenerSpecs() {
		connector, err := server.newConnector(spec)
		if err != nil {
			server.closeConnectors()
			return nil, err
		}
		server.Connectors = append(server.Connectors, connector)

		handler := server.wrapHandler(connector, demuxHandler)

		if connector.Plan.Has(HandlerHTTP2C) {
			// cleartext HTTP/2 joins the chain behind the HTTP/1.1 handler,
			// which sees upgrade and prior-knowledge requests first
			handler = h2c.NewHandler(handler, &http2.Server{
				IdleTimeout: serverConfig.Options.IdleTimeout,
			})
		}

		namedServer := &namedHttpServer{
			AppBindingList: appBindingList,
			ServerConfig:   serverConfig,
			Connector:      connector,
			InstanceConfig: instance.GetConfig(),
			Server: &http.Server{
				Addr:         spec.Address(),
				WriteTimeout: serverConfig.Options.WriteTimeout,
				ReadTimeout:  serverConfig.Options.ReadTimeout,
				IdleTimeout:  serverConfig.Options.IdleTimeout,
				Handler:      handler,
				ErrorLog:     log.New(logWriter, "", 0),
			},
		}

		if connector.Plan.Has(HandlerHTTP2) {
			if err := http2.ConfigureServer(namedServer.Server, &http2.Server{
				IdleTimeout: serverConfig.Options.IdleTimeout,
			}); err != nil {
				server.closeConnectors()
				return nil, errors.Wrapf(err, "error enabling http/2 on connector [%s]", connector.Name())
			}
		}

		namedServer.BaseContext = namedServer.NewBaseContext

		server.HttpServers = append(server.HttpServers, namedServer)
	}

	return server, nil
}

// newConnector builds the connector plan for one listener, loading its TLS
// context when the listener is secure.
func (server *Server) newConnector(spec *ListenerSpec) (*Connector, error) {
	serverConfig := server.ServerConfig

	var tlsContext *TlsContext
	http2Enabled := serverConfig.HTTP2Enabled

	if spec.IsSecure() {
		sslConfig := serverConfig.SslFor(spec)

		var err error
		tlsContext, err = NewTlsContext(sslConfig)
		if err != nil {
			return nil, errors.Wrapf(err, "error building TLS context for listener [%s]", spec)
		}

		// ALPN h2 requires at least one HTTP/2 approved suite to remain
		// available after provider and configuration filtering
		if http2Enabled && !supportsHTTP2(tlsContext) {
			pfxlog.Logger().Warnf("disabling http/2 on listener [%s], no http/2 capable cipher suites are enabled", spec)
			http2Enabled = false
		}
	}

	return &Connector{
		Spec:            spec,
		Plan:            PlanConnector(spec, http2Enabled, serverConfig.ProxyProtocolEnabled),
		TlsContext:      tlsContext,
		ConnectionLimit: serverConfig.ConnectionLimit,
	}, nil
}

// supportsHTTP2 reports whether the listener's negotiation constraints leave
// HTTP/2 viable: TLS 1.3, or an explicit suite list retaining an approved
// TLS 1.2 suite, or engine defaults.
func supportsHTTP2(tlsContext *TlsContext) bool {
	tlsConfig := tlsContext.ServerTLSConfig()

	if tlsConfig.MaxVersion >= tls.VersionTLS13 {
		return true
	}

	if len(tlsConfig.CipherSuites) == 0 {
		return true
	}

	for _, id := range tlsConfig.CipherSuites {
		if id == tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 || id == tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 {
			return true
		}
	}

	return false
}

func (server *Server) wrapHandler(_ *Connector, handler http.Handler) http.Handler {
	//innermost/bottom -> outermost/top
	handler = server.wrapPanicRecovery(handler)
	handler = middleware.NewCompressionHandler(handler)
	return handler
}

// wrapPanicRecovery wraps a http.Handler with another http.Handler that provides recovery.
func (server *Server) wrapPanicRecovery(handler http.Handler) http.Handler {
	wrappedHandler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		defer func() {
			if panicVal := recover(); panicVal != nil {
				if server.OnHandlerPanic != nil {
					server.OnHandlerPanic(writer, request, panicVal)
					return
				}
				pfxlog.Logger().Errorf("panic caught by server handler: %v\n%v", panicVal, debugz.GenerateLocalStack())
			}
		}()

		handler.ServeHTTP(writer, request)
	})

	return wrappedHandler
}

// Start binds every connector and begins serving. All listeners are bound
// before any begins serving so a startup failure never leaves a partially
// configured server listening.
func (server *Server) Start() error {
	logger := pfxlog.Logger()

	listeners := make([]net.Listener, 0, len(server.HttpServers))

	for _, httpServer := range server.HttpServers {
		listener, err := httpServer.Connector.Bind(server.gate)
		if err != nil {
			server.closeConnectors()
			return err
		}
		listeners = append(listeners, listener)
	}

	for i, httpServer := range server.HttpServers {
		connector := httpServer.Connector
		listener := listeners[i]
		localServer := httpServer

		logger.Infof("starting connector [%s] with plan %v on %s for server %s with applications: %v",
			connector.Name(), connector.Plan, connector.Spec.Address(), server.ServerConfig.Name, localServer.AppBindingList)

		go func() {
			err := localServer.Serve(listener)

			if !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("error serving connector [%s]: %v", connector.Name(), err)
			}
		}()
	}

	return nil
}

// Shutdown stops the server, all underlying http.Server's, and every
// credential watcher. The error log writer is closed last so lines emitted
// while connections drain still reach the log.
func (server *Server) Shutdown(ctx context.Context) {
	for _, httpServer := range server.HttpServers {
		localServer := httpServer
		func() {
			_ = localServer.Shutdown(ctx)
		}()
	}

	server.closeConnectors()

	_ = server.logWriter.Close()
}

// LastReloadFailures reports the most recent credential reload failure per
// connector name for health check collaborators. Connectors without a
// watcher or without a failure are omitted.
func (server *Server) LastReloadFailures() map[string]error {
	failures := map[string]error{}

	for _, connector := range server.Connectors {
		if connector.TlsContext == nil {
			continue
		}
		if err := connector.TlsContext.LastReloadFailure(); err != nil {
			failures[connector.Name()] = err
		}
	}

	return failures
}

func (server *Server) closeConnectors() {
	for _, connector := range server.Connectors {
		_ = connector.Close()
	}
}
