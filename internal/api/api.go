// Package api exposes the order gateway over HTTP. Handlers are thin:
// decode, delegate to the engine, encode the single ExecutionResult.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/marketcalls/openalgo-sub001/internal/approval"
	"github.com/marketcalls/openalgo-sub001/internal/audit"
	"github.com/marketcalls/openalgo-sub001/internal/engine"
	"github.com/marketcalls/openalgo-sub001/internal/events"
	"github.com/marketcalls/openalgo-sub001/internal/logger"
	"github.com/marketcalls/openalgo-sub001/internal/model"
)

// Handler bundles the API dependencies.
type Handler struct {
	Engine  *engine.Engine
	Pending *approval.Store
	Audit   *audit.Logger
	Hub     *events.Hub
	Log     *slog.Logger
}

// Routes builds the HTTP mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/placeorder", h.placeOrder)
	mux.HandleFunc("/api/v1/placesmartorder", h.placeSmartOrder)
	mux.HandleFunc("/api/v1/basketorder", h.basketOrder)
	mux.HandleFunc("/api/v1/splitorder", h.splitOrder)
	mux.HandleFunc("/api/v1/optionorder", h.optionOrder)
	mux.HandleFunc("/api/v1/modifyorder", h.modifyOrder)
	mux.HandleFunc("/api/v1/cancelorder", h.cancelOrder)
	mux.HandleFunc("/api/v1/cancelallorder", h.cancelAllOrders)
	mux.HandleFunc("/api/v1/closeposition", h.closePosition)
	mux.HandleFunc("/api/v1/positions", h.positions)

	mux.HandleFunc("/api/v1/mode", h.mode)
	mux.HandleFunc("/api/v1/pending", h.listPending)
	mux.HandleFunc("/api/v1/pending/approve", h.approve)
	mux.HandleFunc("/api/v1/pending/reject", h.reject)
	mux.HandleFunc("/api/v1/pending/delete", h.deletePending)
	mux.HandleFunc("/api/v1/audit", h.auditLog)

	if h.Hub != nil {
		mux.HandleFunc("/ws", h.Hub.ServeWS)
	}

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}

func (h *Handler) log(r *http.Request) *slog.Logger {
	l := h.Log
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("path", r.URL.Path), slog.String("request_id", logger.NewRequestID()))
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, `{"status":"error","message":"POST required"}`, http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "malformed request body",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, res model.ExecutionResult) {
	code := res.HTTPStatus
	if code == 0 {
		code = http.StatusOK
	}
	writeJSON(w, code, res)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.Engine.PlaceOrder(r.Context(), req)
	h.log(r).Info("placeorder", "status", res.Status, "mode", res.Mode, "symbol", req.Symbol)
	writeResult(w, res)
}

func (h *Handler) placeSmartOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.Engine.PlaceSmartOrder(r.Context(), req)
	h.log(r).Info("placesmartorder", "status", res.Status, "mode", res.Mode, "symbol", req.Symbol)
	writeResult(w, res)
}

type basketRequest struct {
	APIKey   string               `json:"apikey"`
	Strategy string               `json:"strategy"`
	Orders   []model.OrderRequest `json:"orders"`
}

func (h *Handler) basketOrder(w http.ResponseWriter, r *http.Request) {
	var req basketRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.Engine.PlaceBasketOrder(r.Context(), req.APIKey, req.Strategy, req.Orders)
	h.log(r).Info("basketorder", "status", res.Status, "children", len(res.Results),
		"successful", res.Successful, "failed", res.Failed)
	writeResult(w, res)
}

func (h *Handler) splitOrder(w http.ResponseWriter, r *http.Request) {
	var req model.OrderRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.Engine.PlaceSplitOrder(r.Context(), req)
	h.log(r).Info("splitorder", "status", res.Status, "children", len(res.Results))
	writeResult(w, res)
}

func (h *Handler) optionOrder(w http.ResponseWriter, r *http.Request) {
	var req model.MultiLegOrder
	if !decode(w, r, &req) {
		return
	}
	res := h.Engine.PlaceOptionOrder(r.Context(), req)
	h.log(r).Info("optionorder", "status", res.Status, "underlying", req.Underlying,
		"legs", len(req.Legs))
	writeResult(w, res)
}

func (h *Handler) modifyOrder(w http.ResponseWriter, r *http.Request) {
	var req model.ModifyRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.Engine.ModifyOrder(r.Context(), req))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CancelRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.Engine.CancelOrder(r.Context(), req))
}

type keyOnlyRequest struct {
	APIKey string `json:"apikey"`
}

func (h *Handler) cancelAllOrders(w http.ResponseWriter, r *http.Request) {
	var req keyOnlyRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.Engine.CancelAllOrders(r.Context(), req.APIKey))
}

func (h *Handler) closePosition(w http.ResponseWriter, r *http.Request) {
	var req keyOnlyRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, h.Engine.ClosePositions(r.Context(), req.APIKey))
}

func (h *Handler) positions(w http.ResponseWriter, r *http.Request) {
	var req keyOnlyRequest
	if !decode(w, r, &req) {
		return
	}
	positions, res := h.Engine.Positions(r.Context(), req.APIKey)
	if res.Status != model.StatusSuccess {
		writeResult(w, res)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": model.StatusSuccess,
		"mode":   res.Mode,
		"data":   positions,
	})
}

// mode reads (GET) or switches (POST) the execution mode.
func (h *Handler) mode(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"mode": h.Engine.Mode()})
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	h.Engine.SetMode(req.Mode)
	h.log(r).Info("mode switched", "mode", h.Engine.Mode())
	writeJSON(w, http.StatusOK, map[string]string{"mode": h.Engine.Mode()})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	if h.Pending == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status": "error", "message": "approval queue not configured",
		})
		return
	}
	owner := r.URL.Query().Get("owner")
	status := r.URL.Query().Get("status")
	orders, err := h.Pending.List(r.Context(), owner, status)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": model.StatusSuccess,
		"data":   orders,
	})
}

type decisionRequest struct {
	ID        string `json:"id"`
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason,omitempty"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.Engine.Approve(r.Context(), req.ID, req.DecidedBy)
	h.log(r).Info("approve", "pending_id", req.ID, "status", res.Status)
	writeResult(w, res)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	res := h.Engine.Reject(r.Context(), req.ID, req.DecidedBy, req.Reason)
	h.log(r).Info("reject", "pending_id", req.ID, "status", res.Status)
	writeResult(w, res)
}

func (h *Handler) deletePending(w http.ResponseWriter, r *http.Request) {
	if h.Pending == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status": "error", "message": "approval queue not configured",
		})
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.Pending.Delete(r.Context(), req.ID); err != nil {
		code := http.StatusInternalServerError
		switch err {
		case approval.ErrNotFound:
			code = http.StatusNotFound
		case approval.ErrStillPending:
			code = http.StatusBadRequest
		}
		writeJSON(w, code, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": model.StatusSuccess})
}

func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status": "error", "message": "audit log not configured",
		})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	records, err := h.Audit.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": model.StatusSuccess,
		"data":   records,
	})
}
