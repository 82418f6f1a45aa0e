package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/upb/workdesk/internal/observability"
	"github.com/upb/workdesk/utils"
	"go.uber.org/zap"
)

// RateLimit returns a middleware that limits requests per client IP. rate
// uses the limiter format, e.g. "20-M". Counters live in process memory, so
// each instance enforces its own budget.
func RateLimit(rate string, metrics *observability.Metrics, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	// chi's RealIP has already rewritten RemoteAddr from the proxy headers
	instance := limiter.New(memory.NewStore(), parsed)

	mw := stdlib.NewMiddleware(instance,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.RecordRateLimited(r.URL.Path)
			logger.Warn("rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("path", r.URL.Path))
			_ = utils.WriteTooManyRequests(w, "Too many attempts, try again later", map[string]interface{}{
				"limit":  strconv.FormatInt(parsed.Limit, 10),
				"period": parsed.Period.String(),
			})
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate limiter failed", zap.Error(err))
			_ = utils.WriteInternalServerError(w, "")
		}),
	)
	return mw.Handler, nil
}
