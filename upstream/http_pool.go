package upstream

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// fanoutIdlePerHost keeps enough idle connections for a full fan-out
// against a single upstream host.
const fanoutIdlePerHost = 64

var (
	transportOnce   sync.Once
	sharedTransport *http.Transport

	clientsMu sync.Mutex
	clients   = map[time.Duration]*http.Client{}
)

// pooledTransport returns the process-wide transport. All upstreams share
// it; per-host idle limits keep them from starving each other.
func pooledTransport() *http.Transport {
	transportOnce.Do(func() {
		dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
		sharedTransport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        len(Names()) * fanoutIdlePerHost,
			MaxIdleConnsPerHost: fanoutIdlePerHost,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	})
	return sharedTransport
}

// pooledClient returns the shared client for timeout. Clients differ only in
// their overall deadline; connections come from pooledTransport.
func pooledClient(timeout time.Duration) *http.Client {
	clientsMu.Lock()
	defer clientsMu.Unlock()

	if c, ok := clients[timeout]; ok {
		return c
	}
	c := &http.Client{Timeout: timeout, Transport: pooledTransport()}
	clients[timeout] = c
	return c
}
