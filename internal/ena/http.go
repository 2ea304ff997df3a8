package ena

import (
	"fmt"
	"net/http"
	"time"

	"github.com/StalkR/hsts"
)

// maxRedirects matches the limit of the default net/http policy.
const maxRedirects = 10

// SecureHTTPClient returns a client with a request timeout and HTTP Strict
// Transport Security enabled. Redirects are followed, except that a redirect
// from HTTPS to HTTP is reported as an error.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme == "http" && len(via) > 0 && via[0].URL.Scheme == "https" {
				return &DowngradedRedirectError{
					Endpoint: fmt.Sprintf("%s%s", req.URL.Host, req.URL.Path),
				}
			}
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	client.Transport = hsts.New(http.DefaultTransport)

	return client
}
