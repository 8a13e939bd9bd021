package monobank

import (
	"context"
	"errors"
	"fmt"

	"github.com/extdeck/extdeck/pkg/fetch"
)

const defaultAPIURL = "https://api.monobank.ua"

type rawAccount struct {
	ID           string   `json:"id"`
	SendID       string   `json:"sendId"`
	Balance      int64    `json:"balance"`
	CreditLimit  int64    `json:"creditLimit"`
	Type         string   `json:"type"`
	CurrencyCode int      `json:"currencyCode"`
	CashbackType string   `json:"cashbackType"`
	MaskedPan    []string `json:"maskedPan"`
	IBAN         string   `json:"iban"`
}

type rawJar struct {
	ID           string `json:"id"`
	SendID       string `json:"sendId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	CurrencyCode int    `json:"currencyCode"`
	Balance      int64  `json:"balance"`
	Goal         *int64 `json:"goal"`
}

type rawClientInfo struct {
	ClientID string       `json:"clientId"`
	Name     string       `json:"name"`
	Accounts []rawAccount `json:"accounts"`
	Jars     []rawJar     `json:"jars"`
}

func (c rawClientInfo) Validate() error {
	for i, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("account %d has no id", i)
		}
	}
	for i, j := range c.Jars {
		if j.ID == "" {
			return fmt.Errorf("jar %d has no id", i)
		}
	}
	return nil
}

type rawRate struct {
	CurrencyCodeA int     `json:"currencyCodeA"`
	CurrencyCodeB int     `json:"currencyCodeB"`
	Date          int64   `json:"date"`
	RateSell      float64 `json:"rateSell"`
	RateBuy       float64 `json:"rateBuy"`
	RateCross     float64 `json:"rateCross"`
}

type rawRates []rawRate

func (rs rawRates) Validate() error {
	for _, r := range rs {
		if r.CurrencyCodeA == 0 || r.CurrencyCodeB == 0 {
			return errors.New("rate without currency codes")
		}
	}
	return nil
}

type api struct {
	c *fetch.Client
}

func (a *api) clientInfo(ctx context.Context) (rawClientInfo, error) {
	return fetch.Get[rawClientInfo](ctx, a.c, "/personal/client-info", nil)
}

// rates is public and does not need the token.
func (a *api) rates(ctx context.Context) (rawRates, error) {
	return fetch.Get[rawRates](ctx, a.c, "/bank/currency", nil)
}
