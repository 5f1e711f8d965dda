package rebalance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/web3"
)

// Target is one (symbol, percent) entry of an allocation.
type Target struct {
	Symbol  string          `json:"symbol"`
	Percent decimal.Decimal `json:"percent"`
}

// Allocation is the caller's desired split in the order it was supplied.
// Order is part of the contract: plans list actions in allocation order.
type Allocation []Target

// NewAllocation normalises symbols and rejects duplicates and negative
// percentages. Percentages are not required to sum to 100.
func NewAllocation(targets ...Target) (Allocation, error) {
	out := make(Allocation, 0, len(targets))
	seen := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		symbol := web3.NormalizeSymbol(target.Symbol)
		if symbol == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "allocation symbol cannot be empty")
		}
		if _, dup := seen[symbol]; dup {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("allocation lists %s twice", symbol))
		}
		if target.Percent.IsNegative() {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("allocation for %s is negative", symbol))
		}
		seen[symbol] = struct{}{}
		out = append(out, Target{Symbol: symbol, Percent: target.Percent})
	}
	return out, nil
}

// UnmarshalJSON accepts {"BTC": 50, "ETH": 50} keeping key order, or
// [{"symbol": "BTC", "percent": 50}, ...].
func (a *Allocation) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}

	var targets []Target
	if data[0] == '[' {
		if err := json.Unmarshal(data, &targets); err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "allocations must be a list of {symbol, percent}")
		}
	} else {
		parsed, err := decodeOrderedObject(data)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "allocations must map symbols to percentages")
		}
		targets = parsed
	}

	allocation, err := NewAllocation(targets...)
	if err != nil {
		return err
	}
	*a = allocation
	return nil
}

func decodeOrderedObject(data []byte) ([]Target, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var targets []Target
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		symbol, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}
		var percent decimal.Decimal
		if err := dec.Decode(&percent); err != nil {
			return nil, fmt.Errorf("percentage for %s: %w", symbol, err)
		}
		targets = append(targets, Target{Symbol: symbol, Percent: percent})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return targets, nil
}

// MarshalJSON renders the allocation as an object in allocation order.
func (a Allocation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, target := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(target.Symbol)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(target.Percent.String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
