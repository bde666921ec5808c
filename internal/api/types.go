package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Credentials are the fields of the login and register forms.
type Credentials struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// TransactionEdit carries the editable fields of a transaction.
// Empty fields are sent as empty strings, which the backend leaves untouched.
type TransactionEdit struct {
	ID       string `json:"transaction_id"`
	Name     string `json:"new_name"`
	Amount   string `json:"new_amount"`
	Category string `json:"new_category"`
}

type (
	wireAccount struct {
		Name        string `json:"name"`
		AccountType string `json:"account_type"`
		Institution string `json:"institution"`
	}

	wireTransaction struct {
		ID           string          `json:"transaction_id"`
		Amount       decimal.Decimal `json:"amount"`
		Description  string          `json:"description"`
		MerchantName *string         `json:"merchant_name"`
		Datetime     wireTime        `json:"datetime"`
		Type         string          `json:"transaction_type"`
		Account      wireAccount     `json:"account"`
	}

	transactionsResponse struct {
		Transactions []wireTransaction `json:"transactions"`
	}

	accountsResponse struct {
		Accounts []wireAccount `json:"accounts"`
	}

	authCheckResponse struct {
		IsAuthenticated bool `json:"isAuthenticated"`
	}

	csrfResponse struct {
		CSRFToken string `json:"csrfToken"`
	}

	linkTokenResponse struct {
		LinkToken string `json:"link_token"`
	}

	hasAccountsResponse struct {
		HasAccounts bool `json:"hasAccounts"`
	}

	userExistsResponse struct {
		Exists bool `json:"exists"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

// wireTime accepts both RFC 3339 timestamps and bare dates; a bare date
// decodes to midnight UTC.
type wireTime struct{ time.Time }

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func (w *wireTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			w.Time = t
			return nil
		}
	}
	return fmt.Errorf("unrecognised datetime %q", s)
}

func (a wireAccount) toCore() core.Account {
	return core.Account{Name: a.Name, AccountType: a.AccountType, Institution: a.Institution}
}

func (t wireTransaction) toCore() core.Transaction {
	category := strings.TrimSpace(t.Type)
	if category == "" {
		category = "UNCATEGORIZED"
	}
	return core.Transaction{
		ID:           t.ID,
		Amount:       t.Amount,
		Description:  t.Description,
		MerchantName: t.MerchantName,
		Timestamp:    t.Datetime.Time,
		Category:     category,
		Account:      t.Account.toCore(),
	}
}
