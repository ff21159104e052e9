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
	"net"
	"sync"

	"github.com/pires/go-proxyproto"
	"github.com/pkg/errors"
	"golang.org/x/net/netutil"
)

// HandlerTag identifies one protocol handler in a connector's chain.
type HandlerTag string

const (
	HandlerProxyProtocol HandlerTag = "proxyProtocol"
	HandlerTLS           HandlerTag = "tls"
	HandlerALPN          HandlerTag = "alpn"
	HandlerHTTP2         HandlerTag = "http2"
	HandlerHTTP2C        HandlerTag = "http2c"
	HandlerHTTP1         HandlerTag = "http1"
)

// ConnectorPlan is the ordered protocol handler chain of one listener,
// outermost handler first. Proxy protocol unwrapping, when present, is
// always first since it must consume the header before any protocol bytes.
// For secure listeners TLS precedes ALPN and HTTP/2. On cleartext
// connectors the HTTP/1.1 handler is registered before the HTTP/2 cleartext
// handler so upgrade requests disambiguate correctly.
type ConnectorPlan []HandlerTag

// PlanConnector computes the handler chain for a listener from its scheme,
// HTTP/2 eligibility, and proxy protocol flag.
func PlanConnector(spec *ListenerSpec, http2Enabled bool, proxyProtocolEnabled bool) ConnectorPlan {
	var plan ConnectorPlan

	if proxyProtocolEnabled {
		plan = append(plan, HandlerProxyProtocol)
	}

	if spec.IsSecure() {
		plan = append(plan, HandlerTLS)
		if http2Enabled {
			plan = append(plan, HandlerALPN, HandlerHTTP2)
		}
		plan = append(plan, HandlerHTTP1)
		return plan
	}

	plan = append(plan, HandlerHTTP1)
	if http2Enabled {
		plan = append(plan, HandlerHTTP2C)
	}
	return plan
}

// Has reports whether the plan contains the given handler.
func (plan ConnectorPlan) Has(tag HandlerTag) bool {
	for _, entry := range plan {
		if entry == tag {
			return true
		}
	}
	return false
}

// connectionGate enforces the server wide ceiling on concurrently open
// connections across every connector of a server. Listeners wrapped by the
// same gate share one admission semaphore; a connection occupies a slot
// from accept until close.
type connectionGate struct {
	sem chan struct{}
}

func newConnectionGate(limit int) *connectionGate {
	if limit <= 0 {
		return nil
	}
	return &connectionGate{sem: make(chan struct{}, limit)}
}

func (g *connectionGate) wrap(listener net.Listener) net.Listener {
	if g == nil {
		return listener
	}
	return &gatedListener{Listener: listener, gate: g, done: make(chan struct{})}
}

type gatedListener struct {
	net.Listener
	gate *connectionGate

	done      chan struct{}
	closeOnce sync.Once
}

// acquire blocks until a connection slot is free or the listener is closed.
// Closing must unblock a saturated Accept, or the serve goroutine would be
// stuck on the semaphore past shutdown.
func (l *gatedListener) acquire() bool {
	select {
	case <-l.done:
		return false
	case l.gate.sem <- struct{}{}:
		select {
		case <-l.done:
			<-l.gate.sem
			return false
		default:
			return true
		}
	}
}

func (l *gatedListener) Accept() (net.Conn, error) {
	if !l.acquire() {
		return nil, net.ErrClosed
	}

	conn, err := l.Listener.Accept()
	if err != nil {
		<-l.gate.sem
		return nil, err
	}

	return &gatedConn{Conn: conn, gate: l.gate}, nil
}

func (l *gatedListener) Close() error {
	err := l.Listener.Close()
	l.closeOnce.Do(func() {
		close(l.done)
	})
	return err
}

type gatedConn struct {
	net.Conn
	gate      *connectionGate
	closeOnce sync.Once
}

func (c *gatedConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() {
		<-c.gate.sem
	})
	return err
}

// Connector is one listener bound to the network with its handler chain
// applied. The display name of the connector is the listener's name, when
// one was configured.
type Connector struct {
	Spec       *ListenerSpec
	Plan       ConnectorPlan
	TlsContext *TlsContext

	// ConnectionLimit caps concurrently open connections on this connector
	// alone; zero means unlimited.
	ConnectionLimit int

	listener net.Listener
}

// Name returns the connector's display name: the listener name when set,
// otherwise the bound address.
func (c *Connector) Name() string {
	if c.Spec.Name != "" {
		return c.Spec.Name
	}
	return c.Spec.Address()
}

// Bind opens the network listener and applies the handler chain in plan
// order: connection ceilings as admission gates first, then proxy protocol
// unwrapping, then TLS. The shared gate may be nil when no server wide
// limit is configured.
func (c *Connector) Bind(gate *connectionGate) (net.Listener, error) {
	if c.listener != nil {
		return nil, errors.Errorf("connector [%s] is already bound", c.Name())
	}

	listener, err := net.Listen("tcp", c.Spec.Address())
	if err != nil {
		return nil, errors.Wrapf(err, "error binding connector [%s] to [%s]", c.Name(), c.Spec.Address())
	}

	if c.ConnectionLimit > 0 {
		listener = netutil.LimitListener(listener, c.ConnectionLimit)
	}
	listener = gate.wrap(listener)

	if c.Plan.Has(HandlerProxyProtocol) {
		listener = &proxyproto.Listener{Listener: listener}
	}

	if c.Plan.Has(HandlerTLS) {
		tlsConfig := c.TlsContext.ServerTLSConfig()
		tlsConfig.NextProtos = c.negotiationProtocols()
		listener = tls.NewListener(listener, tlsConfig)
	}

	c.listener = listener
	return listener, nil
}

// negotiationProtocols is the ALPN protocol list for a secure connector.
// The HTTP/1.1 entry is always present and always last.
func (c *Connector) negotiationProtocols() []string {
	if c.Plan.Has(HandlerALPN) {
		return []string{"h2", "http/1.1"}
	}
	return []string{"http/1.1"}
}

// Close closes the bound listener and the connector's TLS context.
func (c *Connector) Close() error {
	var err error
	if c.listener != nil {
		err = c.listener.Close()
		c.listener = nil
	}
	if c.TlsContext != nil {
		c.TlsContext.Close()
	}
	return err
}
