// Package portfolio values the tracked holdings of an address.
package portfolio

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Holding is the valued position of one asset. The value is always derived
// from amount and price.
type Holding struct {
	symbol    string
	amount    decimal.Decimal
	unitPrice decimal.Decimal
	value     decimal.Decimal
}

// NewHolding values amount at unitPrice.
func NewHolding(symbol string, amount, unitPrice decimal.Decimal) Holding {
	return Holding{
		symbol:    symbol,
		amount:    amount,
		unitPrice: unitPrice,
		value:     amount.Mul(unitPrice),
	}
}

// ZeroHolding records an asset whose balance or price could not be fetched.
func ZeroHolding(symbol string) Holding {
	return NewHolding(symbol, decimal.Zero, decimal.Zero)
}

func (h Holding) Symbol() string             { return h.symbol }
func (h Holding) Amount() decimal.Decimal    { return h.amount }
func (h Holding) UnitPrice() decimal.Decimal { return h.unitPrice }
func (h Holding) Value() decimal.Decimal     { return h.value }

// Equal reports whether two holdings carry the same numbers.
func (h Holding) Equal(other Holding) bool {
	return h.symbol == other.symbol &&
		h.amount.Equal(other.amount) &&
		h.unitPrice.Equal(other.unitPrice) &&
		h.value.Equal(other.value)
}

// Snapshot is a point-in-time valuation of an address. It is never mutated
// after construction.
type Snapshot struct {
	owner    common.Address
	holdings []Holding
	index    map[string]int
	total    decimal.Decimal
	takenAt  time.Time
}

// NewSnapshot copies holdings, keeping their order, and totals them.
func NewSnapshot(owner common.Address, holdings []Holding, takenAt time.Time) *Snapshot {
	s := &Snapshot{
		owner:    owner,
		holdings: make([]Holding, len(holdings)),
		index:    make(map[string]int, len(holdings)),
		total:    decimal.Zero,
		takenAt:  takenAt.UTC(),
	}
	copy(s.holdings, holdings)
	for i, h := range s.holdings {
		s.index[h.symbol] = i
		s.total = s.total.Add(h.value)
	}
	return s
}

// Owner returns the address that was valued.
func (s *Snapshot) Owner() common.Address { return s.owner }

// TakenAt returns when the snapshot was assembled.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// TotalValue is the sum of every holding's value.
func (s *Snapshot) TotalValue() decimal.Decimal { return s.total }

// Len returns the number of holdings.
func (s *Snapshot) Len() int { return len(s.holdings) }

// Holdings returns a copy of the holdings in order.
func (s *Snapshot) Holdings() []Holding {
	out := make([]Holding, len(s.holdings))
	copy(out, s.holdings)
	return out
}

// Holding looks up a holding by symbol.
func (s *Snapshot) Holding(symbol string) (Holding, bool) {
	i, ok := s.index[symbol]
	if !ok {
		return Holding{}, false
	}
	return s.holdings[i], true
}

// MarshalJSON renders {"<SYMBOL>": {"amount","value","price"}, ..., "total_value"}
// with keys in holding order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, h := range s.holdings {
		key, err := json.Marshal(h.symbol)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(`:{"amount":`)
		buf.WriteString(h.amount.String())
		buf.WriteString(`,"value":`)
		buf.WriteString(h.value.String())
		buf.WriteString(`,"price":`)
		buf.WriteString(h.unitPrice.String())
		buf.WriteString(`},`)
	}
	buf.WriteString(`"total_value":`)
	buf.WriteString(s.total.String())
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
