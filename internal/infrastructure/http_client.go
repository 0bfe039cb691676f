package infrastructure

import (
	"net/http"
	"sync"
	"time"
)

var (
	sharedClientOnce sync.Once
	sharedClient     *http.Client
)

// SharedHTTPClient returns the process-wide connection pool. It is built on
// first use; per-call deadlines come from the request context.
func SharedHTTPClient() *http.Client {
	sharedClientOnce.Do(func() {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		sharedClient = &http.Client{Transport: transport}
	})
	return sharedClient
}
