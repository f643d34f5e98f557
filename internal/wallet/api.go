package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Credentials are what the login form collects.
type Credentials struct {
	Email    string
	Password string
	Admin    bool
}

// Balance is the wallet's current balance.
type Balance struct {
	Amount   decimal.Decimal `json:"balance"`
	WalletID int64           `json:"walletId"`
}

// Direction is the side of a transaction from the caller's wallet.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Transaction is one history entry.
type Transaction struct {
	ID                   int64           `json:"transactionId"`
	Type                 Direction       `json:"type"`
	Amount               decimal.Decimal `json:"amount"`
	CounterpartyWalletID int64           `json:"counterpartyWalletId"`
	Timestamp            time.Time       `json:"timestamp"`
	Status               string          `json:"status"`
}

// TransferRequest moves Amount to the UPI id To. OTP is empty on the
// first submission and set when answering a challenge.
type TransferRequest struct {
	To     string
	Amount decimal.Decimal
	PIN    string
	OTP    string
}

type transferBody struct {
	ToUPIID string      `json:"toUpiId"`
	Amount  json.Number `json:"amount"`
	PIN     string      `json:"pin"`
	OTP     string      `json:"otp,omitempty"`
}

// TransferOutcome says whether a transfer finished or needs an OTP.
type TransferOutcome int

const (
	TransferCompleted TransferOutcome = iota
	ChallengeRequired
)

func (o TransferOutcome) String() string {
	if o == ChallengeRequired {
		return "challenge_required"
	}
	return "completed"
}

const statusOTPRequired = "OTP_REQUIRED"

// TransferResult is the service's answer to a transfer submission.
type TransferResult struct {
	Outcome TransferOutcome
	Message string

	// Ack is the challenge acknowledgement the service returns with
	// OTP_REQUIRED. It is passed through untouched.
	Ack string
}

var errEmptyToken = errors.New("login response carried no token")

// Login exchanges credentials for a raw session token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	in := struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		AdminLogin bool   `json:"adminLogin"`
	}{creds.Email, creds.Password, creds.Admin}

	resp, err := c.do(ctx, c.public, http.MethodPost, "/api/auth/login", in)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if out.Token == "" {
		return "", errEmptyToken
	}

	return out.Token, nil
}

// Balance fetches the balance and the wallet id.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	var b Balance
	if err := c.getJSON(ctx, c.authed, "/api/wallet/balance", &b); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// Transactions fetches the history, most recent first.
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var txns []Transaction
	if err := c.getJSON(ctx, c.authed, "/api/wallet/transactions", &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// MyUPIID returns the caller's UPI id.
func (c *Client) MyUPIID(ctx context.Context) (string, error) {
	var out struct {
		UPIID string `json:"upiId"`
	}
	if err := c.getJSON(ctx, c.cached, "/api/upi/me", &out); err != nil {
		return "", err
	}
	return out.UPIID, nil
}

// Transfer submits a UPI transfer. A 2xx answer is either an OTP
// challenge or a completed transfer; business rejections come back as
// *APIError.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	in := transferBody{
		ToUPIID: req.To,
		Amount:  json.Number(req.Amount.String()),
		PIN:     req.PIN,
		OTP:     req.OTP,
	}

	resp, err := c.do(ctx, c.authed, http.MethodPost, "/api/upi/transfer", in)
	if err != nil {
		return TransferResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransferResult{}, fmt.Errorf("failed to read transfer response: %w", err)
	}

	var challenge struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		OTP     string `json:"otp"`
	}
	if json.Unmarshal(body, &challenge) == nil && challenge.Status == statusOTPRequired {
		return TransferResult{
			Outcome: ChallengeRequired,
			Message: challenge.Message,
			Ack:     challenge.OTP,
		}, nil
	}

	return TransferResult{
		Outcome: TransferCompleted,
		Message: strings.TrimSpace(string(body)),
	}, nil
}
