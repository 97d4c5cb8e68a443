package services

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPClientPool lazily creates one process-wide HTTP client and closes it
// on unload. The client is safe for concurrent streaming by many jobs.
type HTTPClientPool struct {
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	client *http.Client
}

// NewHTTPClientPool creates a pool whose client uses timeout for connecting
// and waiting on response headers. Body streaming is not time-limited.
func NewHTTPClientPool(timeout time.Duration, logger *slog.Logger) *HTTPClientPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClientPool{timeout: timeout, logger: logger}
}

// Acquire returns the shared client, creating it on first use.
func (p *HTTPClientPool) Acquire(caller string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		p.logger.Info("Initializing shared HTTP client", "context", caller)
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   p.timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost:   16,
			MaxIdleConns:          64,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   p.timeout,
			ResponseHeaderTimeout: p.timeout,
			ForceAttemptHTTP2:     true,
		}
		p.client = &http.Client{Transport: transport}
	}
	return p.client
}

// Close releases idle connections and drops the client. The next Acquire
// creates a fresh one.
func (p *HTTPClientPool) Close(caller string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return
	}
	p.client.CloseIdleConnections()
	p.client = nil
	p.logger.Info("HTTP client closed", "context", caller)
}
