package monobank

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/extdeck/extdeck/pkg/transform"
)

const uah = 980

// Currency is an ISO 4217 currency.
type Currency struct {
	Number int    `json:"number"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Flag   string `json:"flag"`
}

var currencies = map[int]Currency{
	980: {980, "UAH", "Ukrainian hryvnia", "🇺🇦"},
	840: {840, "USD", "US dollar", "🇺🇸"},
	978: {978, "EUR", "Euro", "🇪🇺"},
	826: {826, "GBP", "Pound sterling", "🇬🇧"},
	985: {985, "PLN", "Polish złoty", "🇵🇱"},
	756: {756, "CHF", "Swiss franc", "🇨🇭"},
	392: {392, "JPY", "Japanese yen", "🇯🇵"},
	203: {203, "CZK", "Czech koruna", "🇨🇿"},
}

func currency(n int) Currency {
	if c, ok := currencies[n]; ok {
		return c
	}
	return Currency{Number: n, Code: strconv.Itoa(n), Flag: "🏳️"}
}

// Kind groups accounts into list sections.
type Kind string

const (
	KindCard Kind = "card"
	KindFOP  Kind = "fop"
	KindJar  Kind = "jar"
)

// Account is a card, a private entrepreneur (FOP) account or a jar. Amounts
// are in minor units.
type Account struct {
	ID           string   `json:"id"`
	SendID       string   `json:"send_id"`
	Kind         Kind     `json:"kind"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Currency     Currency `json:"currency"`
	Balance      int64    `json:"balance"`
	CreditLimit  int64    `json:"credit_limit"`
	Goal         int64    `json:"goal"`
	CashbackType string   `json:"cashback_type"`
	PAN          string   `json:"pan"`
	IBAN         string   `json:"iban"`
}

// DisplayTitle is the flag followed by the title, falling back to the card
// number or IBAN.
func (a Account) DisplayTitle() string {
	return a.Currency.Flag + " " + transform.Or(a.Title, transform.Or(a.PAN, a.IBAN))
}

// TopUpURL is the public top-up page, or empty when there is none.
func (a Account) TopUpURL() string {
	if a.SendID == "" || (a.Kind != KindJar && a.Currency.Number != uah) {
		return ""
	}
	return "https://send.monobank.ua/" + a.SendID
}

// Matches reports whether every word of text occurs in one of the
// searchable fields.
func (a Account) Matches(text string) bool {
	fields := []string{a.Title, a.Currency.Code}
	if a.Kind != KindJar {
		fields = append(fields, a.Type, transform.Or(a.PAN, a.IBAN))
	}
	hay := strings.ToLower(strings.Join(fields, " "))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if !strings.Contains(hay, w) {
			return false
		}
	}
	return true
}

// ClientInfo is the client's accounts and jars in upstream order.
type ClientInfo struct {
	Name     string    `json:"name"`
	Accounts []Account `json:"accounts"`
}

func toClientInfo(raw rawClientInfo) ClientInfo {
	out := ClientInfo{Name: raw.Name, Accounts: []Account{}}
	for _, a := range raw.Accounts {
		kind := KindCard
		if a.Type == "fop" {
			kind = KindFOP
		}
		pan := ""
		if len(a.MaskedPan) > 0 {
			pan = a.MaskedPan[0]
		}
		out.Accounts = append(out.Accounts, Account{
			ID:           a.ID,
			SendID:       a.SendID,
			Kind:         kind,
			Type:         a.Type,
			Currency:     currency(a.CurrencyCode),
			Balance:      a.Balance,
			CreditLimit:  a.CreditLimit,
			CashbackType: a.CashbackType,
			PAN:          pan,
			IBAN:         a.IBAN,
		})
	}
	for _, j := range raw.Jars {
		out.Accounts = append(out.Accounts, Account{
			ID:          j.ID,
			SendID:      j.SendID,
			Kind:        KindJar,
			Type:        string(KindJar),
			Title:       j.Title,
			Description: j.Description,
			Currency:    currency(j.CurrencyCode),
			Balance:     j.Balance,
			Goal:        transform.Deref(j.Goal),
		})
	}
	return out
}

// Rate converts Currency into UAH.
type Rate struct {
	Currency Currency  `json:"currency"`
	Buy      float64   `json:"buy"`
	Sell     float64   `json:"sell"`
	Cross    float64   `json:"cross"`
	Date     time.Time `json:"date"`
}

// Value is the rate used for conversion: cross when published, else buy.
func (r Rate) Value() float64 {
	if r.Cross > 0 {
		return r.Cross
	}
	return r.Buy
}

// toRates keeps the pairs quoted against UAH.
func toRates(raw rawRates) []Rate {
	out := []Rate{}
	for _, r := range raw {
		if r.CurrencyCodeB != uah {
			continue
		}
		out = append(out, Rate{
			Currency: currency(r.CurrencyCodeA),
			Buy:      r.RateBuy,
			Sell:     r.RateSell,
			Cross:    r.RateCross,
			Date:     time.Unix(r.Date, 0).UTC(),
		})
	}
	return out
}

// Total sums balances in UAH minor units. Accounts in a currency without a
// rate are skipped.
func Total(accounts []Account, rates []Rate) int64 {
	byCode := make(map[int]float64, len(rates))
	for _, r := range rates {
		byCode[r.Currency.Number] = r.Value()
	}
	var sum float64
	for _, a := range accounts {
		if a.Currency.Number == uah {
			sum += float64(a.Balance)
			continue
		}
		if rate, ok := byCode[a.Currency.Number]; ok {
			sum += float64(a.Balance) * rate
		}
	}
	return int64(math.Round(sum))
}

// FormatMoney renders minor units as "1 234.56 UAH".
func FormatMoney(minor int64, code string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	units := strconv.FormatInt(minor/100, 10)
	var b strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	cents := minor % 100
	return sign + b.String() + "." + strconv.FormatInt(cents/10, 10) + strconv.FormatInt(cents%10, 10) + " " + code
}
