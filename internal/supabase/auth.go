package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Auth returns an auth client.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{client: c}
}

// AuthClient handles GoTrue authentication operations.
type AuthClient struct {
	client *Client
}

// AuthResponse is the response from sign-in and sign-up.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// User represents a Supabase user.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	Role             string         `json:"role"`
	EmailConfirmedAt string         `json:"email_confirmed_at,omitempty"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// SignUp creates a new user. metadata is stored as user_metadata.
func (a *AuthClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*AuthResponse, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}
	resp, err := a.post(ctx, fmt.Sprintf("%s/auth/v1/signup", a.client.baseURL), payload)
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := resp.JSON(&authResp); err != nil {
		return nil, err
	}
	// With email confirmation enabled GoTrue returns the bare user.
	if authResp.User == nil {
		var user User
		if err := json.Unmarshal(resp.Body, &user); err == nil && user.ID != "" {
			authResp.User = &user
		}
	}
	return &authResp, nil
}

// SignIn signs in a user with the password grant.
func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*AuthResponse, error) {
	resp, err := a.post(ctx, fmt.Sprintf("%s/auth/v1/token?grant_type=password", a.client.baseURL), map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := resp.JSON(&authResp); err != nil {
		return nil, err
	}
	return &authResp, nil
}

// Refresh exchanges a refresh token for a new session.
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	resp, err := a.post(ctx, fmt.Sprintf("%s/auth/v1/token?grant_type=refresh_token", a.client.baseURL), map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return nil, err
	}

	var authResp AuthResponse
	if err := resp.JSON(&authResp); err != nil {
		return nil, err
	}
	return &authResp, nil
}

// GetUser gets the user owning accessToken.
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := a.client.newRequest(WithAccessToken(ctx, accessToken), http.MethodGet,
		fmt.Sprintf("%s/auth/v1/user", a.client.baseURL), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.do(req)
	if err != nil {
		return nil, err
	}

	var user User
	if err := resp.JSON(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *AuthClient) post(ctx context.Context, reqURL string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	// Auth endpoints are called with the project key, never a user token.
	req, err := a.client.newRequest(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.client.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return a.client.do(req)
}
