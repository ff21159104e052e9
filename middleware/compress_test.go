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

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

func Test_NewCompressionHandler(t *testing.T) {

	payload := strings.Repeat("compressible content ", 64)

	plainHandler := http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		_, _ = writer.Write([]byte(payload))
	})

	serve := func(t *testing.T, handler http.Handler, acceptEncoding string) *httptest.ResponseRecorder {
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		if acceptEncoding != "" {
			request.Header.Set("Accept-Encoding", acceptEncoding)
		}

		recorder := httptest.NewRecorder()
		NewCompressionHandler(handler).ServeHTTP(recorder, request)
		return recorder
	}

	t.Run("brotli is preferred when the client accepts both", func(t *testing.T) {
		req := require.New(t)

		recorder := serve(t, plainHandler, "gzip, br")

		req.Equal("br", recorder.Header().Get("Content-Encoding"))

		decompressed, err := io.ReadAll(brotli.NewReader(recorder.Body))
		req.NoError(err)
		req.Equal(payload, string(decompressed))
	})

	t.Run("gzip is used when brotli is not accepted", func(t *testing.T) {
		req := require.New(t)

		recorder := serve(t, plainHandler, "gzip;q=0.9, deflate")

		req.Equal("gzip", recorder.Header().Get("Content-Encoding"))

		reader, err := gzip.NewReader(recorder.Body)
		req.NoError(err)

		decompressed, err := io.ReadAll(reader)
		req.NoError(err)
		req.Equal(payload, string(decompressed))
	})

	t.Run("responses pass through untouched without accept-encoding", func(t *testing.T) {
		req := require.New(t)

		recorder := serve(t, plainHandler, "")

		req.Empty(recorder.Header().Get("Content-Encoding"))
		req.Equal(payload, recorder.Body.String())
	})

	t.Run("a handler that sets its own content-encoding passes through", func(t *testing.T) {
		req := require.New(t)

		preEncoded := http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Encoding", "identity")
			_, _ = writer.Write([]byte(payload))
		})

		recorder := serve(t, preEncoded, "br")

		req.Equal("identity", recorder.Header().Get("Content-Encoding"))
		req.Equal(payload, recorder.Body.String())
	})

	t.Run("no content responses are not compressed", func(t *testing.T) {
		req := require.New(t)

		noContent := http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusNoContent)
		})

		recorder := serve(t, noContent, "br")

		req.Equal(http.StatusNoContent, recorder.Code)
		req.Empty(recorder.Header().Get("Content-Encoding"))
	})
}
