package api

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"OpenRebalancer/internal/portfolio"
	"OpenRebalancer/internal/rebalance"
	"OpenRebalancer/internal/txbuilder"
)

const (
	statusPlanReady        = "plan_ready"
	statusTransactionReady = "transaction_ready"
	statusConnected        = "connected"
)

type rebalanceRequest struct {
	Address     string               `json:"address"`
	Allocations rebalance.Allocation `json:"allocations"`
	ActionIndex *int                 `json:"action_index,omitempty"`
	PlanToken   string               `json:"plan_token,omitempty"`
}

// planMode reports whether the request asks for the whole plan.
func (r rebalanceRequest) planMode() bool {
	return r.ActionIndex == nil || *r.ActionIndex == -1
}

type connectWalletRequest struct {
	Address string `json:"address"`
}

type actionDTO struct {
	Symbol          string      `json:"symbol"`
	Direction       string      `json:"direction"`
	AmountUSD       json.Number `json:"amount_usd"`
	CurrentValueUSD json.Number `json:"current_value_usd"`
	TargetValueUSD  json.Number `json:"target_value_usd"`
}

func number(d decimal.Decimal) json.Number { return json.Number(d.String()) }

func toActionDTO(a rebalance.Action) actionDTO {
	return actionDTO{
		Symbol:          a.Symbol,
		Direction:       string(a.Direction),
		AmountUSD:       number(a.AmountUSD),
		CurrentValueUSD: number(a.CurrentValueUSD),
		TargetValueUSD:  number(a.TargetValueUSD),
	}
}

type planResponse struct {
	Status       string      `json:"status"`
	Actions      []actionDTO `json:"actions"`
	TotalActions int         `json:"total_actions"`
	TotalValue   json.Number `json:"total_value"`
	PlanToken    string      `json:"plan_token,omitempty"`
}

func toPlanResponse(plan *rebalance.Plan) planResponse {
	actions := make([]actionDTO, 0, plan.Len())
	for _, a := range plan.Actions {
		actions = append(actions, toActionDTO(a))
	}
	resp := planResponse{
		Status:       statusPlanReady,
		Actions:      actions,
		TotalActions: plan.Len(),
		PlanToken:    plan.Token,
	}
	if plan.Snapshot != nil {
		resp.TotalValue = number(plan.Snapshot.TotalValue())
	}
	return resp
}

type stepResponse struct {
	Status          string                         `json:"status"`
	Transaction     *txbuilder.TransactionSkeleton `json:"transaction"`
	Action          actionDTO                      `json:"action"`
	ActionIndex     int                            `json:"action_index"`
	NextActionIndex int                            `json:"next_action_index"`
	TotalActions    int                            `json:"total_actions"`
	PlanToken       string                         `json:"plan_token,omitempty"`
}

func toStepResponse(result *rebalance.StepResult) stepResponse {
	return stepResponse{
		Status:          statusTransactionReady,
		Transaction:     result.Transaction,
		Action:          toActionDTO(result.Action),
		ActionIndex:     result.Cursor,
		NextActionIndex: result.NextCursor,
		TotalActions:    result.TotalActions,
		PlanToken:       result.PlanToken,
	}
}

// orderedBalances keeps token table order in the JSON object.
type orderedBalances []portfolio.TokenBalance

func (b orderedBalances) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tb := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(tb.Symbol)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(tb.Amount.String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type connectWalletResponse struct {
	Status        string          `json:"status"`
	Address       string          `json:"address"`
	IsContract    bool            `json:"is_contract"`
	EthBalance    json.Number     `json:"eth_balance"`
	TokenBalances orderedBalances `json:"token_balances"`
}

func toConnectWalletResponse(info *portfolio.WalletInfo) connectWalletResponse {
	return connectWalletResponse{
		Status:        statusConnected,
		Address:       info.Address.Hex(),
		IsContract:    info.IsContract,
		EthBalance:    number(info.NativeBalance),
		TokenBalances: orderedBalances(info.TokenBalances),
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}
