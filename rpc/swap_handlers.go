package rpc

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"settlenet/native/swap"
)

// SwapRequestPayload is the wire form of one settlement request: a token path
// of n+1 symbols with n venue selectors and optional per-hop minimum outputs
// and hex routing payloads.
type SwapRequestPayload struct {
	Sender        string   `json:"sender"`
	AmountIn      string   `json:"amountIn"`
	Path          []string `json:"path"`
	Venues        []string `json:"venues"`
	MinAmountsOut []string `json:"minAmountsOut,omitempty"`
	Routing       []string `json:"routing,omitempty"`
}

// BatchResult reports the per-request outcomes of one settled batch.
type BatchResult struct {
	Outcomes []bool `json:"outcomes"`
}

func parseAddress(raw string) (common.Address, bool) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, false
	}
	return common.HexToAddress(trimmed), true
}

func parseAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

func (p *SwapRequestPayload) toRequest() (*swap.SwapRequest, string) {
	sender, ok := parseAddress(p.Sender)
	if !ok {
		return nil, "invalid sender address"
	}
	amount, ok := parseAmount(p.AmountIn)
	if !ok {
		return nil, "invalid input amount"
	}
	var minOuts []*big.Int
	if len(p.MinAmountsOut) > 0 {
		minOuts = make([]*big.Int, len(p.MinAmountsOut))
		for i, raw := range p.MinAmountsOut {
			parsed, ok := parseAmount(raw)
			if !ok {
				return nil, "invalid minimum output"
			}
			minOuts[i] = parsed
		}
	}
	var routing [][]byte
	if len(p.Routing) > 0 {
		routing = make([][]byte, len(p.Routing))
		for i, raw := range p.Routing {
			trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
			if trimmed == "" {
				continue
			}
			decoded, err := hex.DecodeString(trimmed)
			if err != nil {
				return nil, "invalid routing payload"
			}
			routing[i] = decoded
		}
	}
	req, err := swap.NewRequest(sender, amount, p.Path, p.Venues, minOuts, routing)
	if err != nil {
		return nil, err.Error()
	}
	return req, ""
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with requests", nil)
		return
	}
	var payload struct {
		Requests []SwapRequestPayload `json:"requests"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	if len(payload.Requests) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "at least one request required", nil)
		return
	}
	requests := make([]*swap.SwapRequest, len(payload.Requests))
	for i := range payload.Requests {
		parsed, msg := payload.Requests[i].toRequest()
		if msg != "" {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
			return
		}
		requests[i] = parsed
	}
	outcomes, err := s.node.ExecuteBatch(requests)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, "batch aborted", err.Error())
		return
	}
	writeResult(w, req.ID, BatchResult{Outcomes: outcomes})
}

func (s *Server) handleFeesAccrued(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with token", nil)
		return
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	if strings.TrimSpace(payload.Token) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "token required", nil)
		return
	}
	total, err := s.node.FeesAccrued(payload.Token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "query failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{
		"token": payload.Token,
		"total": total.String(),
	})
}

func (s *Server) handleSetPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected payload with symbol and rate", nil)
		return
	}
	var payload struct {
		Symbol string `json:"symbol"`
		Rate   string `json:"rate"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	if err := s.node.SetManualPrice(payload.Symbol, payload.Rate); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "price rejected", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}
