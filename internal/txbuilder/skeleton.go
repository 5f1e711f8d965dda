// Package txbuilder turns a USD-denominated rebalance action into an
// unsigned transaction skeleton.
package txbuilder

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// TransactionSkeleton is an unsigned legacy transfer. Value is in the
// native asset's smallest unit; ValueUnits is the same amount in whole units.
type TransactionSkeleton struct {
	From       common.Address
	To         common.Address
	Value      *big.Int
	ValueUnits decimal.Decimal
	GasLimit   uint64
	GasPrice   *big.Int
	Nonce      uint64
	ChainID    *big.Int
}

// Unsigned returns the go-ethereum transaction a wallet would sign.
func (s *TransactionSkeleton) Unsigned() *types.Transaction {
	to := s.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    s.Nonce,
		GasPrice: new(big.Int).Set(s.GasPrice),
		Gas:      s.GasLimit,
		To:       &to,
		Value:    new(big.Int).Set(s.Value),
	})
}

// SigningHash is the EIP-155 hash the sender has to sign.
func (s *TransactionSkeleton) SigningHash() common.Hash {
	return types.LatestSignerForChainID(s.ChainID).Hash(s.Unsigned())
}

type skeletonJSON struct {
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Value       string         `json:"value"`
	ValueUnits  json.Number    `json:"valueUnits"`
	Gas         uint64         `json:"gas"`
	GasPrice    string         `json:"gasPrice"`
	Nonce       uint64         `json:"nonce"`
	ChainID     string         `json:"chainId"`
	SigningHash common.Hash    `json:"signingHash"`
}

// MarshalJSON renders the skeleton in eth_sendTransaction field names. Wei
// amounts are decimal strings.
func (s *TransactionSkeleton) MarshalJSON() ([]byte, error) {
	return json.Marshal(skeletonJSON{
		From:        s.From,
		To:          s.To,
		Value:       s.Value.String(),
		ValueUnits:  json.Number(s.ValueUnits.String()),
		Gas:         s.GasLimit,
		GasPrice:    s.GasPrice.String(),
		Nonce:       s.Nonce,
		ChainID:     s.ChainID.String(),
		SigningHash: s.SigningHash(),
	})
}

// UnmarshalJSON restores a skeleton produced by MarshalJSON.
func (s *TransactionSkeleton) UnmarshalJSON(data []byte) error {
	var raw skeletonJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, ok := new(big.Int).SetString(raw.Value, 10)
	if !ok {
		return &json.UnmarshalTypeError{Value: raw.Value, Field: "value"}
	}
	gasPrice, ok := new(big.Int).SetString(raw.GasPrice, 10)
	if !ok {
		return &json.UnmarshalTypeError{Value: raw.GasPrice, Field: "gasPrice"}
	}
	chainID, ok := new(big.Int).SetString(raw.ChainID, 10)
	if !ok {
		return &json.UnmarshalTypeError{Value: raw.ChainID, Field: "chainId"}
	}
	units, err := decimal.NewFromString(raw.ValueUnits.String())
	if err != nil {
		return err
	}
	*s = TransactionSkeleton{
		From:       raw.From,
		To:         raw.To,
		Value:      value,
		ValueUnits: units,
		GasLimit:   raw.Gas,
		GasPrice:   gasPrice,
		Nonce:      raw.Nonce,
		ChainID:    chainID,
	}
	return nil
}
