package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shiramwangi/gawa/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "mpesa").Logger()

// Mpesa simulates an M-Pesa STK push integration. Initiation hands back a
// CheckoutRequestID; the callback carries it back along with the result.
type Mpesa struct{}

func NewMpesa() *Mpesa {
	return &Mpesa{}
}

func (m *Mpesa) Method() entity.PaymentMethod {
	return entity.PaymentMethodMpesa
}

func (m *Mpesa) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if req.Phone == "" {
		return "", errors.New("phone number is required for M-Pesa")
	}
	if !req.Amount.IsPositive() {
		return "", fmt.Errorf("invalid amount %s", req.Amount)
	}

	checkoutID := "ws_CO_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	logger.Info().Str("reference", req.Reference).Str("checkout_request_id", checkoutID).
		Str("amount", req.Amount.String()).Msg("STK push initiated")
	return checkoutID, nil
}

type stkCallback struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string      `json:"MerchantRequestID"`
			CheckoutRequestID string      `json:"CheckoutRequestID"`
			ResultCode        json.Number `json:"ResultCode"`
			ResultDesc        string      `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback reads a Safaricom stkCallback payload. ResultCode 0 is success.
func (m *Mpesa) ParseCallback(payload []byte) (*CallbackResult, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var cb stkCallback
	if err := dec.Decode(&cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	stk := cb.Body.StkCallback
	if stk == nil || stk.CheckoutRequestID == "" || stk.ResultCode == "" {
		return nil, fmt.Errorf("%w: missing stkCallback fields", ErrMalformedCallback)
	}
	code, err := stk.ResultCode.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: result code %q", ErrMalformedCallback, stk.ResultCode)
	}

	res := &CallbackResult{
		RequestID:  stk.CheckoutRequestID,
		ResultCode: int(code),
		Success:    code == 0,
	}
	if !res.Success {
		res.FailureReason = stk.ResultDesc
		if res.FailureReason == "" {
			res.FailureReason = fmt.Sprintf("result code %d", code)
		}
		return res, nil
	}
	for _, item := range stk.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			res.ReceiptNumber = fmt.Sprint(item.Value)
		case "TransactionDate":
			res.TransactionID = fmt.Sprint(item.Value)
		}
	}
	return res, nil
}
