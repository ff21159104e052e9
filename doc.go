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

/*
Package restutils provides the listening and transport-security layer for a
multi-tenant HTTP server: it turns a declarative list of named listener
addresses into live network connectors, each bound to the correct
combination of cleartext/TLS, HTTP/1.1 and HTTP/2 support, and optional
proxy-protocol unwrapping, while loading and continuously rotating the TLS
credentials each listener requires.

Basics

Each Instance is responsible for parsing its configuration section,
starting servers, and shutting them down. An example implementation is
included in the package: InstanceImpl. Configuration is presented as a map
of interface{}-to-interface{} values, typically decoded from YAML.

An InstanceConfig defines an array of ServerConfig. Each ServerConfig
declares its listeners as scheme://host:port strings, or name://host:port
with a protocol map resolving the listener name to a transport scheme, and
may host many http.Handler's by defining an array of AppConfig's that are
converted into AppHandler's through a Registry of AppHandlerFactory's.

Per listener, the server computes a ConnectorPlan: the ordered chain of
protocol handlers (proxy protocol, TLS, ALPN, HTTP/2, HTTP/1.1) a
connection passes through. Secure listeners carry a TlsContext built from
an SslConfig: key and trust material loaded from PEM, PKCS12 or JKS stores,
with a CredentialWatcher swapping the live material when the underlying
files rotate.

To deal with a single ServerConfig hosting multiple applications, incoming
requests must be forwarded to the correct AppHandler. This is handled by a
configurable http.Handler produced by a DemuxFactory; the provided
PathPrefixDemuxFactory selects handlers by URL path prefix.
*/
package restutils
