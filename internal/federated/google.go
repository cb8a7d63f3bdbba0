package federated

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleExchangeTimeout = 10 * time.Second

// googleUserInfo mirrors the subset of Google's userinfo response the
// adapter needs (grounded on the teacher's oauth2.UserFromUserInfoURL).
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleVerifier implements Verifier for Google: it exchanges an
// authorization code for a token, then fetches the userinfo endpoint,
// grounded on the teacher's AuthWithOAuth2Handler token-exchange flow.
type GoogleVerifier struct {
	cfg oauth2.Config
}

// NewGoogleVerifier builds a GoogleVerifier for the given OAuth2 client
// credentials and redirect URI.
func NewGoogleVerifier(clientID, clientSecret, redirectURL string) *GoogleVerifier {
	return &GoogleVerifier{cfg: oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"email", "profile"},
		Endpoint:     google.Endpoint,
	}}
}

// Verify treats opaqueToken as an authorization code, exchanges it for an
// access token, and fetches the userinfo endpoint to build the Assertion.
func (v *GoogleVerifier) Verify(ctx context.Context, opaqueToken string) (Assertion, error) {
	exchangeCtx, cancel := context.WithTimeout(ctx, googleExchangeTimeout)
	defer cancel()

	token, err := v.cfg.Exchange(exchangeCtx, opaqueToken)
	if err != nil {
		return Assertion{}, fmt.Errorf("federated: google token exchange: %w", err)
	}

	client := v.cfg.Client(exchangeCtx, token)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return Assertion{}, fmt.Errorf("federated: google userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Assertion{}, fmt.Errorf("federated: google userinfo status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Assertion{}, fmt.Errorf("federated: decode google userinfo: %w", err)
	}
	if info.ID == "" || info.Email == "" {
		return Assertion{}, fmt.Errorf("federated: incomplete google userinfo")
	}

	return Assertion{
		ProviderUID:   info.ID,
		Email:         info.Email,
		EmailVerified: info.VerifiedEmail,
		DisplayName:   info.Name,
		PictureURL:    info.Picture,
	}, nil
}
