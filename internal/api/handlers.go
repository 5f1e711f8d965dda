package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/observability/alerting"
	"OpenRebalancer/internal/rebalance"
	"OpenRebalancer/internal/web3"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePortfolio 返回地址的估值快照。
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("address")
	owner, err := parseAddress(raw)
	if err != nil {
		s.writeError(w, r, "portfolio", raw, err)
		return
	}
	if s.deps.Portfolio == nil {
		s.writeError(w, r, "portfolio", raw, notInitialized("portfolio"))
		return
	}

	snapshot, err := s.deps.Portfolio.Build(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, "portfolio", owner.Hex(), err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handleRebalance 根据 action_index 返回完整计划或单步交易骨架。
func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "rebalance", "", err)
		return
	}
	owner, err := parseAddress(req.Address)
	if err != nil {
		s.writeError(w, r, "rebalance", req.Address, err)
		return
	}
	if s.deps.Rebalance == nil {
		s.writeError(w, r, "rebalance", req.Address, notInitialized("rebalance"))
		return
	}

	if req.planMode() {
		if len(req.Allocations) == 0 {
			s.writeError(w, r, "rebalance.plan", owner.Hex(),
				xerrors.New(xerrors.CodeMissingAllocations, "no target allocations provided"))
			return
		}
		plan, err := s.deps.Rebalance.Plan(r.Context(), rebalance.PlanRequest{
			Address:    owner,
			Allocation: req.Allocations,
		})
		if err != nil {
			s.writeError(w, r, "rebalance.plan", owner.Hex(), err)
			return
		}
		writeJSON(w, http.StatusOK, toPlanResponse(plan))
		return
	}

	if len(req.Allocations) == 0 && req.PlanToken == "" {
		s.writeError(w, r, "rebalance.step", owner.Hex(),
			xerrors.New(xerrors.CodeMissingAllocations, "no target allocations provided"))
		return
	}
	result, err := s.deps.Rebalance.Step(r.Context(), rebalance.StepRequest{
		Address:    owner,
		Allocation: req.Allocations,
		Cursor:     *req.ActionIndex,
		PlanToken:  req.PlanToken,
	})
	if err != nil {
		s.writeError(w, r, "rebalance.step", owner.Hex(), err)
		return
	}
	writeJSON(w, http.StatusOK, toStepResponse(result))
}

// handleConnectWallet 读取地址的原始余额信息。
func (s *Server) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req connectWalletRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, "connect_wallet", "", err)
		return
	}
	owner, err := parseAddress(req.Address)
	if err != nil {
		s.writeError(w, r, "connect_wallet", req.Address, err)
		return
	}
	if s.deps.Wallets == nil {
		s.writeError(w, r, "connect_wallet", req.Address, notInitialized("wallet"))
		return
	}

	info, err := s.deps.Wallets.Inspect(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, "connect_wallet", owner.Hex(), err)
		return
	}
	writeJSON(w, http.StatusOK, toConnectWalletResponse(info))
}

func parseAddress(raw string) (common.Address, error) {
	addr, ok := web3.ParseAddress(raw)
	if !ok {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidAddress, "invalid address")
	}
	return addr, nil
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if xerrors.CodeOf(err) != xerrors.CodeUnknown {
			return err
		}
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid request body")
	}
	return nil
}

func notInitialized(component string) error {
	return xerrors.New(xerrors.CodeInitializationFailure, component+" service not initialized")
}

// writeError 将统一错误码映射为 HTTP 状态码，并对需要告警的错误发出通知。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, operation, address string, err error) {
	status := xerrors.HTTPStatusOf(err)
	body := errorBody{Code: string(xerrors.CodeOf(err)), Message: "internal error"}
	if e, ok := xerrors.From(err); ok {
		body.Message = e.Message()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		body = errorBody{Code: string(xerrors.CodeUpstreamFailure), Message: "request timed out"}
	}

	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("address", address),
		zap.String("code", body.Code),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", fields...)
	} else {
		s.log.Info("request rejected", fields...)
	}

	if s.deps.Alerts != nil && xerrors.ShouldAlert(err) {
		event := alerting.FromError(err, operation, address)
		if notifyErr := s.deps.Alerts.Notify(context.WithoutCancel(r.Context()), event); notifyErr != nil {
			s.log.Error("告警通知失败", zap.Error(notifyErr), zap.String("operation", operation))
		}
	}
	writeJSON(w, status, errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
