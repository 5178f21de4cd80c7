// Package timeouts defines shared timeout constants used across the app.
// Centralizing these values prevents drift between components and makes the
// durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// OutboundAPI caps a single Graph API call. Upload and prediction clients
// use their own longer limits.
const OutboundAPI = 30 * time.Second

// PageScrape caps one product page fetch, browser rendering included.
const PageScrape = 50 * time.Second
