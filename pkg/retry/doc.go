// Package retry provides backoff retry logic for transient failures.
//
// Two shapes are used in this repository:
//
//   - Quick(): short exponential backoff for startup health checks
//     (InfluxDB ping, NATS dial)
//   - Fixed(interval, attempts): a constant wait before every attempt, used by
//     the ingestion connector to pace broker reconnects
//
// Example:
//
//	cfg := retry.Fixed(5*time.Second, 10)
//	cfg.OnAttempt = func(n int, err error) {
//	    logger.Warn("reconnect attempt failed", "attempt", n, "error", err)
//	}
//	if err := retry.Do(ctx, cfg, reconnect); retry.IsExhausted(err) {
//	    // give up
//	}
//
// Errors wrapped with NonRetryable stop the loop immediately. All waits honour
// context cancellation.
package retry
