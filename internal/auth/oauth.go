package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teamspace/backend/pkg/apperr"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// OAuthProfile is the identity returned by an external provider.
type OAuthProfile struct {
	Provider    string
	ProviderID  string
	Email       string
	DisplayName string
	PhotoURL    string
	FirstName   string
	LastName    string
}

// Normalize lowercases the email and splits the display name into first and last name.
func (p OAuthProfile) Normalize() (OAuthProfile, error) {
	if p.Provider == "" || p.ProviderID == "" {
		return p, apperr.BadRequest("oauth profile is missing its provider identity")
	}
	email, err := NormalizeEmail(p.Email)
	if err != nil {
		return p, apperr.BadRequest("oauth profile has no usable email")
	}
	p.Email = email
	if p.FirstName == "" && p.LastName == "" {
		parts := strings.Fields(p.DisplayName)
		switch len(parts) {
		case 0:
			p.FirstName = email[:strings.Index(email, "@")]
		case 1:
			p.FirstName = parts[0]
		default:
			p.FirstName = parts[0]
			p.LastName = strings.Join(parts[1:], " ")
		}
	}
	return p, nil
}

// OAuthProvider runs the authorization-code flow against one provider.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthProfile, error)
}

// GoogleProvider authenticates users with Google.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a Google OAuth provider.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// Exchange trades the authorization code for a token and fetches the profile.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*OAuthProfile, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Unauthorized("oauth code exchange failed")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create userinfo request: %w", err)
	}
	resp, err := g.config.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Unauthorized("oauth profile request was rejected")
	}
	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if !info.VerifiedEmail {
		return nil, apperr.Unauthorized("google account email is not verified")
	}
	return &OAuthProfile{
		Provider:    g.Name(),
		ProviderID:  info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
		FirstName:   info.GivenName,
		LastName:    info.FamilyName,
		PhotoURL:    info.Picture,
	}, nil
}
