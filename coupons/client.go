package coupons

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	config "github.com/mkamau512/daktari_connect/configs"
)

// Coupon error codes returned by the administrative service.
const (
	CodeExpired             = "expired"
	CodeAlreadyUsed         = "already_used"
	CodeNotDistributed      = "not_distributed"
	CodeBeneficiaryMismatch = "beneficiary_mismatch"
	CodeNotFound            = "not_found"
)

// RejectionError is a business rejection from the administrative service, as
// opposed to a transport failure.
type RejectionError struct {
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("coupon rejected (%s): %s", e.Code, e.Message)
}

type ValidateRequest struct {
	Code            string  `json:"code"`
	BeneficiaryType string  `json:"beneficiary_type"`
	BeneficiaryID   string  `json:"beneficiary_id"`
	RequestedAmount float64 `json:"requested_amount"`
}

type ValidationResult struct {
	Valid          bool    `json:"valid"`
	CouponID       string  `json:"coupon_id"`
	DiscountAmount float64 `json:"discount_amount"`
	DiscountType   string  `json:"discount_type"`
	ErrorCode      string  `json:"error_code,omitempty"`
	Message        string  `json:"message,omitempty"`
}

type Usage struct {
	ConsultationID  string    `json:"case_id"`
	PaymentID       string    `json:"payment_id"`
	DiscountApplied float64   `json:"discount_applied"`
	AmountCharged   float64   `json:"amount_charged"`
	UsedAt          time.Time `json:"used_at"`
}

type MarkUsedResult struct {
	Success bool       `json:"success"`
	UsedAt  *time.Time `json:"used_at,omitempty"`
	Message string     `json:"message,omitempty"`
}

type UsageState struct {
	Code      string     `json:"code"`
	Status    string     `json:"status"`
	Used      bool       `json:"used"`
	PaymentID string     `json:"payment_id,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Client talks to the administrative coupon service over HTTP. Validation is
// read-only on the remote side and safe to retry; MarkUsed is the one write.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient() *Client {
	return &Client{
		baseURL: config.Config("ADMIN_SERVICE_BASE_URL"),
		apiKey:  config.Config("ADMIN_SERVICE_API_KEY"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request for %s: %v", path, err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("admin service unreachable: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read admin service response: %v", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return &RejectionError{Code: CodeNotFound, Message: "coupon not found"}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("admin service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode admin service response: %v", err)
		}
	}
	return nil
}

// ValidateCoupon checks status, expiry and beneficiary binding remotely and
// returns the discount. No state changes on either side.
func (c *Client) ValidateCoupon(ctx context.Context, req ValidateRequest) (*ValidationResult, error) {
	var result ValidationResult
	if err := c.do(ctx, "POST", "/api/v1/coupons/validate", req, &result); err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, &RejectionError{Code: result.ErrorCode, Message: result.Message}
	}
	return &result, nil
}

// MarkCouponUsed flips the coupon to USED remotely, attaching our payment id
// for audit linkage.
func (c *Client) MarkCouponUsed(ctx context.Context, code string, usage Usage) (*MarkUsedResult, error) {
	var result MarkUsedResult
	if err := c.do(ctx, "POST", fmt.Sprintf("/api/v1/coupons/%s/use", code), usage, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, &RejectionError{Code: CodeAlreadyUsed, Message: result.Message}
	}
	return &result, nil
}

// GetCouponUsage is used by the reconciliation sweep to resolve payments
// stuck pending after a partial saga failure.
func (c *Client) GetCouponUsage(ctx context.Context, code string) (*UsageState, error) {
	var state UsageState
	if err := c.do(ctx, "GET", fmt.Sprintf("/api/v1/coupons/%s/usage", code), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}
