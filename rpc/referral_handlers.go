package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"settlenet/native/referral"
)

func (s *Server) handleReferralRegister(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with caller and referrer", nil)
		return
	}
	var payload struct {
		Caller   string `json:"caller"`
		Referrer string `json:"referrer"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, ok := parseAddress(payload.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", nil)
		return
	}
	referrer, ok := parseAddress(payload.Referrer)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid referrer address", nil)
		return
	}
	if err := s.node.RegisterReferral(caller, referrer); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, referral.ErrNotApprovedSeller),
			errors.Is(err, referral.ErrSellerCannotSetReferrer),
			errors.Is(err, referral.ErrCircularReferral),
			errors.Is(err, referral.ErrAlreadyRegistered):
		default:
			status = http.StatusInternalServerError
		}
		writeError(w, status, req.ID, codeServerError, "registration rejected", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleGetReferrer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with address", nil)
		return
	}
	var payload struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	addr, ok := parseAddress(payload.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", nil)
		return
	}
	referrer, exists, err := s.node.Referrer(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "query failed", err.Error())
		return
	}
	result := map[string]interface{}{"registered": exists}
	if exists {
		result["referrer"] = referrer.Hex()
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetPercentages(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	table := s.node.Percentages()
	levels := make([]uint32, len(table))
	copy(levels, table[:])
	writeResult(w, req.ID, map[string]interface{}{
		"denominator": 1_000_000,
		"levels":      levels,
	})
}

func (s *Server) handleGetAccrued(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with address and token", nil)
		return
	}
	var payload struct {
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	addr, ok := parseAddress(payload.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", nil)
		return
	}
	if strings.TrimSpace(payload.Token) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "token required", nil)
		return
	}
	accrued, err := s.node.AccruedRewards(addr, payload.Token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "query failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": addr.Hex(),
		"token":   payload.Token,
		"accrued": accrued.String(),
	})
}

func (s *Server) handleSetApprovedSeller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with seller and approved", nil)
		return
	}
	var payload struct {
		Seller   string `json:"seller"`
		Approved bool   `json:"approved"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	seller, ok := parseAddress(payload.Seller)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid seller address", nil)
		return
	}
	if err := s.node.SetApprovedSeller(seller, payload.Approved); err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "update failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
