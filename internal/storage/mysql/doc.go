// Package mysql provides repositories and data access helpers backed by MySQL.
// It encapsulates schema migrations and the queries used to pin rebalance
// plans between a plan request and the step requests that follow it.
package mysql
