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

// Package middleware provides http.Handler wrappers shared by the hosted
// applications of a server.
package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

const (
	encodingBrotli = "br"
	encodingGzip   = "gzip"
)

// NewCompressionHandler wraps a handler with response compression negotiated
// from the request's Accept-Encoding header. Brotli is preferred, then gzip;
// responses that already declare a Content-Encoding pass through untouched.
func NewCompressionHandler(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		encoding := selectEncoding(request.Header.Get("Accept-Encoding"))

		if encoding == "" {
			handler.ServeHTTP(writer, request)
			return
		}

		compressed := &compressedResponseWriter{
			ResponseWriter: writer,
			encoding:       encoding,
		}
		defer func() {
			_ = compressed.Close()
		}()

		handler.ServeHTTP(compressed, request)
	})
}

func selectEncoding(acceptEncoding string) string {
	supportsBrotli := false
	supportsGzip := false

	for _, entry := range strings.Split(acceptEncoding, ",") {
		encoding, _, _ := strings.Cut(strings.TrimSpace(entry), ";")
		switch encoding {
		case encodingBrotli:
			supportsBrotli = true
		case encodingGzip:
			supportsGzip = true
		}
	}

	if supportsBrotli {
		return encodingBrotli
	}
	if supportsGzip {
		return encodingGzip
	}
	return ""
}

type compressedResponseWriter struct {
	http.ResponseWriter
	encoding    string
	compressor  io.WriteCloser
	wroteHeader bool
}

func (w *compressedResponseWriter) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if w.Header().Get("Content-Encoding") == "" && statusCode != http.StatusNoContent {
			w.Header().Set("Content-Encoding", w.encoding)
			w.Header().Add("Vary", "Accept-Encoding")
			w.Header().Del("Content-Length")
			switch w.encoding {
			case encodingBrotli:
				w.compressor = brotli.NewWriter(w.ResponseWriter)
			case encodingGzip:
				w.compressor = gzip.NewWriter(w.ResponseWriter)
			}
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *compressedResponseWriter) Write(data []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.compressor != nil {
		return w.compressor.Write(data)
	}
	return w.ResponseWriter.Write(data)
}

func (w *compressedResponseWriter) Close() error {
	if w.compressor != nil {
		return w.compressor.Close()
	}
	return nil
}

// Flush forwards to the wrapped writer so streaming handlers keep working.
func (w *compressedResponseWriter) Flush() {
	if flusher, ok := w.compressor.(interface{ Flush() error }); ok {
		_ = flusher.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
