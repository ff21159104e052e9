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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

var _ AppHandler = (*mockHandler)(nil)
var _ DefaultAppHandler = (*mockHandler)(nil)

type mockHandler struct {
	binding   string
	rootPath  string
	isDefault bool
}

func (m *mockHandler) IsDefault() bool {
	return m.isDefault
}

func (m *mockHandler) Binding() string {
	if m.binding == "" {
		return "mockHandler"
	}
	return m.binding
}

func (m *mockHandler) Options() map[interface{}]interface{} {
	return make(map[interface{}]interface{})
}

func (m *mockHandler) RootPath() string {
	if m.rootPath == "" {
		return "/mock-handler"
	}
	return m.rootPath
}

func (m *mockHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte(m.Binding()))
}

func Test_getDefault(t *testing.T) {

	t.Run("a nil slice results in an error", func(t *testing.T) {
		var handlers []AppHandler = nil

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.Error(err)
		req.Nil(defaultHandler)
	})

	t.Run("an empty slice results in an error", func(t *testing.T) {
		var handlers []AppHandler

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.Error(err)
		req.Nil(defaultHandler)
	})

	t.Run("a slice with one non-defaulting entry returns that entry", func(t *testing.T) {
		h1 := &mockHandler{isDefault: false}
		handlers := []AppHandler{
			h1,
		}

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.NoError(err)
		req.Equal(h1, defaultHandler)
	})

	t.Run("a slice with one defaulting entry returns that entry", func(t *testing.T) {
		h1 := &mockHandler{isDefault: true}
		handlers := []AppHandler{
			h1,
		}

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.NoError(err)
		req.Equal(h1, defaultHandler)
	})

	t.Run("a slice with multiple non-defaulting entries returns the last entry", func(t *testing.T) {
		h1 := &mockHandler{isDefault: false}
		h2 := &mockHandler{isDefault: false}
		h3 := &mockHandler{isDefault: false}

		handlers := []AppHandler{
			h1,
			h2,
			h3,
		}

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.NoError(err)
		req.Equal(h3, defaultHandler)
	})

	t.Run("a slice with multiple defaulting entries results in an error", func(t *testing.T) {
		h1 := &mockHandler{isDefault: true}
		h2 := &mockHandler{isDefault: true}

		handlers := []AppHandler{
			h1,
			h2,
		}

		defaultHandler, err := getDefault(handlers)

		req := require.New(t)
		req.Error(err)
		req.Nil(defaultHandler)
	})
}

func Test_PathPrefixDemuxFactory(t *testing.T) {

	t.Run("requests are routed by root path prefix", func(t *testing.T) {
		req := require.New(t)

		first := &mockHandler{binding: "first", rootPath: "/first"}
		second := &mockHandler{binding: "second", rootPath: "/second"}

		factory := &PathPrefixDemuxFactory{}
		handler, err := factory.Build([]AppHandler{first, second})
		req.NoError(err)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/second/resource", nil))

		req.Equal("second", recorder.Body.String())
	})

	t.Run("unmatched requests fall through to the default handler", func(t *testing.T) {
		req := require.New(t)

		first := &mockHandler{binding: "first", rootPath: "/first"}
		fallback := &mockHandler{binding: "fallback", rootPath: "/fallback", isDefault: true}

		factory := &PathPrefixDemuxFactory{}
		handler, err := factory.Build([]AppHandler{first, fallback})
		req.NoError(err)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

		req.Equal("fallback", recorder.Body.String())
	})

	t.Run("duplicate root paths result in an error", func(t *testing.T) {
		req := require.New(t)

		first := &mockHandler{binding: "first", rootPath: "/same"}
		second := &mockHandler{binding: "second", rootPath: "/same"}

		factory := &PathPrefixDemuxFactory{}
		handler, err := factory.Build([]AppHandler{first, second})

		req.Error(err)
		req.Nil(handler)
	})
}
