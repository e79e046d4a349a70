package broker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ActionBuy   = "buy"
	ActionClose = "close"

	StatusFilled          = "filled"
	StatusAccepted        = "accepted"
	StatusValidationError = "ValidationError"
)

var (
	ErrNoEndpoint       = errors.New("broker endpoint not configured")
	ErrOrderRejected    = errors.New("order rejected by broker")
	ErrRetriesExhausted = errors.New("broker retries exhausted")
)

// OrderRequest is the JSON body posted to the broker endpoint.
type OrderRequest struct {
	Symbol   string `json:"symbol"`
	Action   string `json:"action"`
	Quantity *int64 `json:"quantity,omitempty"`
}

func (r OrderRequest) asMap() map[string]any {
	out := map[string]any{
		"symbol": r.Symbol,
		"action": r.Action,
	}
	if r.Quantity != nil {
		out["quantity"] = *r.Quantity
	}
	return out
}

// Fill is what the engine learns from a successful call. Price and Quantity
// are nil when the broker did not report them, e.g. a close answered
// "accepted" because there was no open position.
type Fill struct {
	Status   string
	Price    *decimal.Decimal
	Quantity *decimal.Decimal
	Raw      map[string]any
}

// NoPosition reports a close with nothing to book: the broker accepted it
// without a fill or left out the price or quantity.
func (f Fill) NoPosition() bool {
	return f.Price == nil || f.Quantity == nil
}

// APIError carries a non-2xx HTTP answer without a usable status field.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker http %d: %s", e.Status, e.Body)
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRejected
	outcomeTransient
)

func classify(httpStatus int, body map[string]any) outcome {
	status, _ := body["status"].(string)
	switch {
	case status == StatusValidationError:
		return outcomeRejected
	case (status == StatusFilled || status == StatusAccepted) && httpStatus >= 200 && httpStatus < 300:
		return outcomeSuccess
	default:
		return outcomeTransient
	}
}

func decodeBody(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("empty response body")
	}
	return out, nil
}

// decimalField reads a numeric field that may arrive as a JSON number or a string.
func decimalField(body map[string]any, key string) *decimal.Decimal {
	v, ok := body[key]
	if !ok || v == nil {
		return nil
	}
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	case float64:
		d := decimal.NewFromFloat(x)
		return &d
	default:
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
