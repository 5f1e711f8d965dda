// Package web3 houses the chain-facing vocabulary of the rebalancer: the
// tracked token table, address and unit helpers, and the gateway
// capabilities (balances, bytecode presence, nonces, router quotes) that the
// portfolio and transaction packages consume. Concrete RPC clients live in
// sub-packages such as web3/ethereum.
package web3
