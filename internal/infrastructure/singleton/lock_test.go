package singleton

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAndLock_PortAvailable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().String()
	require.NoError(t, listener.Close())

	result, err := CheckAndLock(port)
	require.NoError(t, err)
	require.NotNil(t, result)
	defer result.Close()
}

func TestCheckAndLock_HealthyInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"ok","service":"dify-chat-ui"}`)
	}))
	defer server.Close()

	result, err := CheckAndLock(server.Listener.Addr().String())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Nil(t, result)
}

func TestCheckAndLock_UnhealthyInstance(t *testing.T) {
	// 占用端口但不提供健康检查
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	result, err := CheckAndLock(listener.Addr().String())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestIsAddrInUse(t *testing.T) {
	l1, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l1.Close()

	_, err = net.Listen("tcp", l1.Addr().String())
	assert.True(t, isAddrInUse(err))

	_, err = net.Listen("tcp", "invalid")
	assert.False(t, isAddrInUse(err))
	assert.False(t, isAddrInUse(nil))
}

func TestIsInstanceRunning(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{name: "本服务实例", status: http.StatusOK, body: `{"status":"ok","service":"dify-chat-ui"}`, want: true},
		{name: "其它服务", status: http.StatusOK, body: `{"status":"ok","service":"other"}`, want: false},
		{name: "非 JSON", status: http.StatusOK, body: `ok`, want: false},
		{name: "非 200", status: http.StatusInternalServerError, body: `{}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, port, err := net.SplitHostPort(server.Listener.Addr().String())
			require.NoError(t, err)
			assert.Equal(t, tt.want, isInstanceRunning(":"+port))
		})
	}

	assert.False(t, isInstanceRunning(":99999"), "无效端口")
}

func TestHealthHost(t *testing.T) {
	assert.Equal(t, "127.0.0.1:19970", healthHost(":19970"))
	assert.Equal(t, "127.0.0.1:19970", healthHost("0.0.0.0:19970"))
	assert.Equal(t, "localhost:80", healthHost("localhost:80"))
}
