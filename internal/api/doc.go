// Package api provides the Financial Modeling Prep REST client.
//
// Endpoints used by the default catalog (https://financialmodelingprep.com):
//   - /api/v3/stock/list
//   - /api/v3/profile/{symbols}
//   - /api/v3/sp500_constituent, /api/v3/nasdaq_constituent
//   - /api/v3/historical-price-full/{symbol}
//   - /api/v3/historical-price-full/stock_dividend/{symbol}
//   - /api/v3/key-metrics/{symbol}
//
// All requests pass through one shared Limiter, so a rate-limited
// response from any worker pauses every worker.
package api
