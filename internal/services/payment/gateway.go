package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"

	SignatureHeader = "X-Callback-Signature"
)

// Gateway is an in-process stand-in for a hosted payment provider. It signs
// and verifies callbacks the same way the provider would.
type Gateway struct {
	MerchantCode string
	PrivateKey   string
	BaseURL      string
	now          func() time.Time
}

func NewGateway(privateKey, baseURL string) *Gateway {
	return &Gateway{
		MerchantCode: "REPAIRSHOP",
		PrivateKey:   privateKey,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		now:          time.Now,
	}
}

// Callback is the body the provider posts once a payment settles.
type Callback struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
	Note        string `json:"note,omitempty"`
	PaidAt      int64  `json:"paid_at,omitempty"`
}

func (cb *Callback) Paid() bool {
	return cb.Status == StatusPaid
}

// CheckoutURL points the customer at the simulated hosted checkout page.
// HMAC-SHA256(merchant_code + merchant_ref + amount, private_key)
func (g *Gateway) CheckoutURL(merchantRef string, amount int64) string {
	sig := g.generateSignature(fmt.Sprintf("%s%s%d", g.MerchantCode, merchantRef, amount))
	q := url.Values{}
	q.Set("merchant_ref", merchantRef)
	q.Set("amount", strconv.FormatInt(amount, 10))
	q.Set("signature", sig)
	return g.BaseURL + "/checkout?" + q.Encode()
}

// Sign returns the callback signature: HMAC-SHA256(body, private_key).
func (g *Gateway) Sign(body []byte) string {
	return g.generateSignature(string(body))
}

func (g *Gateway) ValidateSignature(incomingSig string, body []byte) bool {
	expected := g.Sign(body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(incomingSig))))
}

// BuildCallback produces a signed callback body for merchantRef, as the
// provider would send it.
func (g *Gateway) BuildCallback(merchantRef string, amount int64, paid bool, note string) ([]byte, string, error) {
	cb := Callback{
		Reference:   "SIM-" + uuid.NewString(),
		MerchantRef: merchantRef,
		Status:      StatusFailed,
		TotalAmount: amount,
		Note:        note,
	}
	if paid {
		cb.Status = StatusPaid
		cb.PaidAt = g.now().Unix()
	}
	body, err := json.Marshal(cb)
	if err != nil {
		return nil, "", fmt.Errorf("marshal callback: %w", err)
	}
	return body, g.Sign(body), nil
}

func ParseCallback(body []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("parse callback: %w", err)
	}
	if cb.MerchantRef == "" {
		return nil, fmt.Errorf("parse callback: missing merchant_ref")
	}
	switch cb.Status {
	case StatusPaid, StatusFailed, StatusExpired:
	default:
		return nil, fmt.Errorf("parse callback: unknown status %q", cb.Status)
	}
	return &cb, nil
}

func (g *Gateway) generateSignature(data string) string {
	h := hmac.New(sha256.New, []byte(g.PrivateKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
