package reliability

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/flightscout/orchestrator/internal/tlsutil"
)

// ProxyHealth performs a best-effort health probe against a well-known echo
// endpoint, deduping concurrent callers with singleflight so a burst of
// worker startups doesn't fan out one probe per worker.
type ProxyHealth struct {
	client   *http.Client
	endpoint string
	logger   *zap.Logger
	group    singleflight.Group
}

// NewProxyHealth creates a ProxyHealth probing endpoint with a 5-second
// deadline.
func NewProxyHealth(endpoint string, logger *zap.Logger) *ProxyHealth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyHealth{
		client:   tlsutil.SecureHTTPClient(5 * time.Second),
		endpoint: endpoint,
		logger:   logger,
	}
}

// Check returns whether the echo endpoint answered successfully. It never
// returns an error; infrastructure failures are logged and reported as
// unhealthy.
func (p *ProxyHealth) Check(ctx context.Context) bool {
	v, _, _ := p.group.Do("probe", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
		if err != nil {
			p.logger.Debug("proxy health probe build failed", zap.Error(err))
			return false, nil
		}
		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.Debug("proxy health probe failed", zap.Error(err))
			return false, nil
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
	})
	return v.(bool)
}
