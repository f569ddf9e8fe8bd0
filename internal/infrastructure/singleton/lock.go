// Package singleton 通过独占 HTTP 端口保证同一数据目录只运行一个服务实例
package singleton

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fanqingsong/dify-chat-ui/internal/infrastructure/log"
)

// HealthCheckTimeout 健康检查超时时间
const HealthCheckTimeout = 2 * time.Second

// ErrAlreadyRunning 端口上已有健康的实例，调用方应直接退出
var ErrAlreadyRunning = errors.New("another instance is already running")

// windowsAddrInUse WSAEADDRINUSE
const windowsAddrInUse = syscall.Errno(10048)

// CheckAndLock 监听端口
// 端口被占用时检查占用方是否是健康的本服务实例：是则返回 ErrAlreadyRunning，否则返回错误。
func CheckAndLock(port string) (net.Listener, error) {
	listener, err := net.Listen("tcp", port)
	if err == nil {
		return listener, nil
	}

	if !isAddrInUse(err) {
		return nil, fmt.Errorf("listen on %s: %w", port, err)
	}
	if isInstanceRunning(port) {
		return nil, ErrAlreadyRunning
	}
	return nil, fmt.Errorf("port %s is in use and health check failed", port)
}

// isAddrInUse 检查错误是否是地址已在使用
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) || errors.Is(err, windowsAddrInUse) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "address already in use") ||
		strings.Contains(msg, "Only one usage of each socket address")
}

// healthResponse /health 响应
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// isInstanceRunning 端口上的服务是否是健康的本服务
func isInstanceRunning(port string) bool {
	client := &http.Client{Timeout: HealthCheckTimeout}

	resp, err := client.Get("http://" + healthHost(port) + "/health")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body healthResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok" && body.Service == log.ServiceName
}

// healthHost 把监听地址转换为可访问的地址
func healthHost(port string) string {
	host, p, err := net.SplitHostPort(port)
	if err != nil {
		return "127.0.0.1" + port
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, p)
}
