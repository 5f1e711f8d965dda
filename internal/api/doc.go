// Package api exposes the rebalancer over HTTP: portfolio valuation, the
// plan/step rebalance protocol and the connect-wallet probe, plus health and
// Prometheus endpoints.
package api
