package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/extdeck/extdeck/pkg/fetch"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (r tokenResponse) Validate() error {
	if r.AccessToken == "" {
		return errMissingAccessToken
	}
	return nil
}

var errMissingAccessToken = errors.New("missing access_token")

// RefreshTokenGrant returns a RefreshFunc posting a refresh_token grant to
// tokenPath on c as a form.
func RefreshTokenGrant(c *fetch.Client, tokenPath, clientID, clientSecret string) RefreshFunc {
	return func(ctx context.Context, old Token) (Token, error) {
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {old.RefreshToken},
			"client_id":     {clientID},
		}
		if clientSecret != "" {
			form.Set("client_secret", clientSecret)
		}
		resp, err := fetch.Send[tokenResponse](ctx, c, http.MethodPost, tokenPath, form)
		if err != nil {
			return Token{}, err
		}
		tok := Token{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			TokenType:    resp.TokenType,
			Scope:        resp.Scope,
		}
		if resp.ExpiresIn > 0 {
			tok.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		}
		return tok, nil
	}
}
