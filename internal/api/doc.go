// Package api hosts the HTTP server, middleware, and JSON handlers exposed to
// the browser client. Notable routes:
//   - GET /api/public-bots and /api/categories for filtered upstream listings.
//   - POST /api/register-bot to associate an alt account with a bot.
//   - GET /api/category-settings and /api/registrations for lookups.
//   - GET /healthz / readyz for probes and /metrics for Prometheus scraping.
package api
