// Package upstream talks to the third-party bot-management API.
//
// Layers, innermost first:
//   - Transport performs exactly one GET. CollyTransport is the production
//     implementation, built on a gocolly collector cloned per request.
//   - Fetcher wraps a Transport with the rate-limit policy: on HTTP 429 it
//     honors Retry-After (default 10s), suspends only the calling goroutine,
//     and retries until the attempt budget is spent. Every other failure is
//     returned on the first attempt.
//   - Client builds the bots/categories URLs, attaches the configured
//     credential and decodes the JSON listings into relay types. Concurrent
//     identical listings share one in-flight fetch; nothing is cached.
package upstream
