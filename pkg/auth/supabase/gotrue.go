package supabase

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// grant is the slice of a GoTrue token response the provider keeps.
type grant struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
}

// authAPI is the subset of GoTrue the provider calls.
type authAPI interface {
	SignIn(email, password string) (*grant, error)
	SignUp(email, password string) error
	Refresh(refreshToken string) (*grant, error)
	Logout(accessToken string) error
}

// errTransient marks failures that never got an answer from GoTrue, such as
// DNS or connection errors. A rejected refresh token is not transient.
var errTransient = errors.New("transient auth error")

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", errTransient, err)
	}
	return err
}

type gotrueAPI struct {
	client gotrue.Client
}

func newGoTrueAPI(projectURL, anonKey string) *gotrueAPI {
	authURL := strings.TrimRight(projectURL, "/") + "/auth/v1"
	return &gotrueAPI{
		client: gotrue.New("", anonKey).WithCustomGoTrueURL(authURL),
	}
}

func (a *gotrueAPI) SignIn(email, password string) (*grant, error) {
	resp, err := a.client.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, err
	}
	return grantFrom(resp), nil
}

func (a *gotrueAPI) SignUp(email, password string) error {
	_, err := a.client.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
	})
	return err
}

func (a *gotrueAPI) Refresh(refreshToken string) (*grant, error) {
	resp, err := a.client.RefreshToken(refreshToken)
	if err != nil {
		return nil, classify(err)
	}
	return grantFrom(resp), nil
}

func (a *gotrueAPI) Logout(accessToken string) error {
	return a.client.WithToken(accessToken).Logout()
}

func grantFrom(resp *types.TokenResponse) *grant {
	expiresAt := time.Unix(resp.ExpiresAt, 0)
	if resp.ExpiresAt == 0 {
		expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return &grant{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		UserID:       resp.User.ID.String(),
		Email:        resp.User.Email,
	}
}
