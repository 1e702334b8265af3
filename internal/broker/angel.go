package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/marketcalls/openalgo-sub001/internal/model"
	"github.com/marketcalls/openalgo-sub001/internal/order"
)

// Compile-time interface check.
var _ Adapter = (*Angel)(nil)

const angelDefaultRoot = "https://apiconnect.angelone.in"

// Angel API route table, keyed the same way across adapters so new
// endpoints slot in without touching call sites.
var angelRoutes = map[string]string{
	"order.place":  "/rest/secure/angelbroking/order/v1/placeOrder",
	"order.modify": "/rest/secure/angelbroking/order/v1/modifyOrder",
	"order.cancel": "/rest/secure/angelbroking/order/v1/cancelOrder",
	"order.book":   "/rest/secure/angelbroking/order/v1/getOrderBook",
	"position":     "/rest/secure/angelbroking/order/v1/getPosition",
	"login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
}

// Angel implements Adapter against the Angel One SmartAPI. Instances
// are cheap and stateless; the registry builds one per call.
type Angel struct {
	apiKey  string
	rootURL string
	client  *http.Client
}

// AngelConfig carries process-level Angel settings; the auth token
// still arrives per call.
type AngelConfig struct {
	APIKey  string
	RootURL string
	Timeout time.Duration
}

// NewAngel builds an Angel adapter.
func NewAngel(cfg AngelConfig) *Angel {
	if cfg.RootURL == "" {
		cfg.RootURL = angelDefaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	return &Angel{
		apiKey:  cfg.APIKey,
		rootURL: cfg.RootURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns "angel".
func (a *Angel) Name() string { return "angel" }

// GenerateSession logs in with client code, password, and a TOTP minted
// from the shared secret, returning the session JWT used as the per-call
// auth token.
func (a *Angel) GenerateSession(ctx context.Context, clientCode, password, totpSecret string) (string, error) {
	code, err := totp.GenerateCode(totpSecret, time.Now())
	if err != nil {
		return "", fmt.Errorf("angel: totp: %w", err)
	}
	body := map[string]string{"clientcode": clientCode, "password": password, "totp": code}
	var resp struct {
		Status bool   `json:"status"`
		Msg    string `json:"message"`
		Data   struct {
			JWTToken string `json:"jwtToken"`
		} `json:"data"`
	}
	if err := a.post(ctx, "login", "", body, &resp); err != nil {
		return "", err
	}
	if !resp.Status || resp.Data.JWTToken == "" {
		return "", fmt.Errorf("angel: login failed: %s", resp.Msg)
	}
	return resp.Data.JWTToken, nil
}

// angel wire envelope shared by the order endpoints.
type angelEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

func (a *Angel) PlaceOrder(ctx context.Context, authToken string, req model.OrderRequest) (Reply, error) {
	body := map[string]any{
		"variety":           angelVariety(req.PriceType),
		"tradingsymbol":     req.Symbol,
		"symboltoken":       "",
		"transactiontype":   req.Action,
		"exchange":          req.Exchange,
		"ordertype":         angelOrderType(req.PriceType),
		"producttype":       angelProduct(req.Product),
		"duration":          "DAY",
		"quantity":          strconv.FormatInt(req.Quantity, 10),
		"price":             formatPrice(req.Price),
		"triggerprice":      formatPrice(req.TriggerPrice),
		"disclosedquantity": strconv.FormatInt(req.DisclosedQty, 10),
		"ordertag":          req.Strategy,
	}
	var env angelEnvelope
	if err := a.post(ctx, "order.place", authToken, body, &env); err != nil {
		return Reply{}, err
	}
	if !env.Status {
		return Reply{Status: model.StatusError, Message: angelMessage(env)}, nil
	}
	var data struct {
		OrderID string `json:"orderid"`
	}
	_ = json.Unmarshal(env.Data, &data)
	return Reply{Status: model.StatusSuccess, OrderID: data.OrderID, Message: env.Message}, nil
}

func (a *Angel) PlaceSmartOrder(ctx context.Context, authToken string, req model.OrderRequest) (Reply, error) {
	positions, err := a.Positions(ctx, authToken)
	if err != nil {
		return Reply{}, fmt.Errorf("angel: position snapshot: %w", err)
	}
	current := model.NetQty(positions, req.Symbol, req.Exchange, req.Product)
	delta, err := order.SmartDelta(req.Action, req.PositionSize, current)
	if err != nil {
		return Reply{}, err
	}
	if delta.Noop {
		return Reply{Status: model.StatusSuccess, Message: delta.Message}, nil
	}
	child := req
	child.Quantity = delta.Quantity
	return a.PlaceOrder(ctx, authToken, child)
}

func (a *Angel) ModifyOrder(ctx context.Context, authToken string, req model.ModifyRequest) (Reply, error) {
	body := map[string]any{
		"variety":         angelVariety(req.PriceType),
		"orderid":         req.OrderID,
		"ordertype":       angelOrderType(req.PriceType),
		"producttype":     angelProduct(req.Product),
		"duration":        "DAY",
		"price":           formatPrice(req.Price),
		"triggerprice":    formatPrice(req.TriggerPrice),
		"quantity":        strconv.FormatInt(req.Quantity, 10),
		"tradingsymbol":   req.Symbol,
		"transactiontype": req.Action,
		"exchange":        req.Exchange,
	}
	var env angelEnvelope
	if err := a.post(ctx, "order.modify", authToken, body, &env); err != nil {
		return Reply{}, err
	}
	if !env.Status {
		return Reply{Status: model.StatusError, Message: angelMessage(env)}, nil
	}
	var data struct {
		OrderID string `json:"orderid"`
	}
	_ = json.Unmarshal(env.Data, &data)
	return Reply{Status: model.StatusSuccess, OrderID: data.OrderID, Message: env.Message}, nil
}

func (a *Angel) CancelOrder(ctx context.Context, authToken, orderID string) (Reply, error) {
	body := map[string]any{"variety": "NORMAL", "orderid": orderID}
	var env angelEnvelope
	if err := a.post(ctx, "order.cancel", authToken, body, &env); err != nil {
		return Reply{}, err
	}
	if !env.Status {
		return Reply{Status: model.StatusError, Message: angelMessage(env)}, nil
	}
	return Reply{Status: model.StatusSuccess, OrderID: orderID, Message: env.Message}, nil
}

// angelOrderRow is one order-book entry; only the fields cancel-all needs.
type angelOrderRow struct {
	OrderID string `json:"orderid"`
	Status  string `json:"status"`
}

func (a *Angel) CancelAllOrders(ctx context.Context, authToken string) ([]string, []string, error) {
	var env angelEnvelope
	if err := a.get(ctx, "order.book", authToken, &env); err != nil {
		return nil, nil, err
	}
	var rows []angelOrderRow
	_ = json.Unmarshal(env.Data, &rows)

	var canceled, failed []string
	for _, row := range rows {
		switch row.Status {
		case "open", "trigger pending", "open pending", "modify pending":
		default:
			continue
		}
		if _, err := a.CancelOrder(ctx, authToken, row.OrderID); err != nil {
			failed = append(failed, row.OrderID)
			continue
		}
		canceled = append(canceled, row.OrderID)
	}
	return canceled, failed, nil
}

func (a *Angel) CloseAllPositions(ctx context.Context, authToken string) (Reply, error) {
	positions, err := a.Positions(ctx, authToken)
	if err != nil {
		return Reply{}, err
	}
	closed := 0
	for _, p := range positions {
		if p.Qty == 0 {
			continue
		}
		action := model.ActionSell
		qty := p.Qty
		if qty < 0 {
			action = model.ActionBuy
			qty = -qty
		}
		req := model.OrderRequest{
			Symbol:    p.Symbol,
			Exchange:  p.Exchange,
			Action:    action,
			Quantity:  qty,
			PriceType: model.PriceTypeMarket,
			Product:   p.Product,
		}
		if _, err := a.PlaceOrder(ctx, authToken, req); err != nil {
			return Reply{Status: model.StatusError, Message: fmt.Sprintf("close %s: %v", p.Symbol, err)}, nil
		}
		closed++
	}
	return Reply{Status: model.StatusSuccess, Message: fmt.Sprintf("closed %d positions", closed)}, nil
}

func (a *Angel) Positions(ctx context.Context, authToken string) ([]model.Position, error) {
	var env angelEnvelope
	if err := a.get(ctx, "position", authToken, &env); err != nil {
		return nil, err
	}
	var rows []struct {
		TradingSymbol string `json:"tradingsymbol"`
		Exchange      string `json:"exchange"`
		ProductType   string `json:"producttype"`
		NetQty        string `json:"netqty"`
		AvgPrice      string `json:"avgnetprice"`
		LTP           string `json:"ltp"`
	}
	_ = json.Unmarshal(env.Data, &rows)

	positions := make([]model.Position, 0, len(rows))
	for _, r := range rows {
		qty, _ := strconv.ParseInt(r.NetQty, 10, 64)
		avg, _ := strconv.ParseFloat(r.AvgPrice, 64)
		ltp, _ := strconv.ParseFloat(r.LTP, 64)
		positions = append(positions, model.Position{
			Symbol:   r.TradingSymbol,
			Exchange: r.Exchange,
			Product:  openalgoProduct(r.ProductType),
			Qty:      qty,
			AvgPrice: avg,
			LTP:      ltp,
		})
	}
	return positions, nil
}

// ---- HTTP plumbing ----

// angelBreaker guards the Angel HTTP transport. Adapter instances are
// per-call, so the breaker is shared at package level to see the full
// failure history.
var angelBreaker = NewBreaker(5, 10*time.Second)

func (a *Angel) post(ctx context.Context, route, authToken string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("angel: marshal %s: %w", route, err)
	}
	return a.do(ctx, http.MethodPost, route, authToken, bytes.NewReader(b), out)
}

func (a *Angel) get(ctx context.Context, route, authToken string, out any) error {
	return a.do(ctx, http.MethodGet, route, authToken, nil, out)
}

func (a *Angel) do(ctx context.Context, method, route, authToken string, body io.Reader, out any) error {
	uri, ok := angelRoutes[route]
	if !ok {
		return fmt.Errorf("angel: unknown route %q", route)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.rootURL+uri, body)
	if err != nil {
		return fmt.Errorf("angel: %s request: %w", route, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-PrivateKey", a.apiKey)
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	var resp *http.Response
	err = angelBreaker.Execute(func() error {
		var derr error
		resp, derr = a.client.Do(req)
		return derr
	})
	if err != nil {
		return fmt.Errorf("angel: %s: %w", route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("angel: %s read: %w", route, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("angel: %s parse (http %d): %w", route, resp.StatusCode, err)
	}
	return nil
}

// ---- field mapping ----

func angelVariety(priceType string) string {
	if priceType == model.PriceTypeSL || priceType == model.PriceTypeSLM {
		return "STOPLOSS"
	}
	return "NORMAL"
}

func angelOrderType(priceType string) string {
	switch priceType {
	case model.PriceTypeLimit:
		return "LIMIT"
	case model.PriceTypeSL:
		return "STOPLOSS_LIMIT"
	case model.PriceTypeSLM:
		return "STOPLOSS_MARKET"
	default:
		return "MARKET"
	}
}

func angelProduct(product string) string {
	switch product {
	case model.ProductCNC:
		return "DELIVERY"
	case model.ProductNRML:
		return "CARRYFORWARD"
	default:
		return "INTRADAY"
	}
}

func openalgoProduct(angelProduct string) string {
	switch angelProduct {
	case "DELIVERY":
		return model.ProductCNC
	case "CARRYFORWARD":
		return model.ProductNRML
	default:
		return model.ProductMIS
	}
}

func angelMessage(env angelEnvelope) string {
	if env.Message != "" {
		return env.Message
	}
	return "order rejected by broker"
}

func formatPrice(p float64) string {
	if p == 0 {
		return "0"
	}
	return strconv.FormatFloat(p, 'f', 2, 64)
}
