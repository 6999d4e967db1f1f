package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	EndpointAccessToken = "oauth_access_token"
	EndpointDebugToken  = "debug_token"
	EndpointMe          = "me"
)

var ErrMissingCode = errors.New("missing_authorization_code")

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenInfo is the introspection result of DebugToken.
type TokenInfo struct {
	AppID               string   `json:"app_id"`
	UserID              string   `json:"user_id"`
	Type                string   `json:"type"`
	Application         string   `json:"application"`
	IsValid             bool     `json:"is_valid"`
	Scopes              []string `json:"scopes"`
	ExpiresAt           int64    `json:"expires_at"`
	DataAccessExpiresAt int64    `json:"data_access_expires_at"`
}

type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ExchangeCodeForToken trades an authorization code for a short-lived token
// and immediately upgrades it to a long-lived one.
func (c *Client) ExchangeCodeForToken(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}
	var short tokenResponse
	err := c.do(ctx, call{
		endpoint: EndpointAccessToken,
		method:   http.MethodGet,
		url:      c.endpointURL("oauth/access_token"),
		query: url.Values{
			"client_id":     {c.cfg.AppID},
			"client_secret": {c.cfg.AppSecret},
			"redirect_uri":  {redirectURI},
			"code":          {code},
		},
	}, &short)
	if err != nil {
		return nil, err
	}
	if short.AccessToken == "" {
		return nil, ErrInvalidResponse
	}
	return c.ExchangeShortToLongToken(ctx, short.AccessToken)
}

// ExchangeShortToLongToken upgrades a short-lived user token.
func (c *Client) ExchangeShortToLongToken(ctx context.Context, shortToken string) (*oauth2.Token, error) {
	if strings.TrimSpace(shortToken) == "" {
		return nil, ErrMissingToken
	}
	var long tokenResponse
	err := c.do(ctx, call{
		endpoint: EndpointAccessToken,
		method:   http.MethodGet,
		url:      c.endpointURL("oauth/access_token"),
		query: url.Values{
			"grant_type":        {"fb_exchange_token"},
			"client_id":         {c.cfg.AppID},
			"client_secret":     {c.cfg.AppSecret},
			"fb_exchange_token": {shortToken},
		},
	}, &long)
	if err != nil {
		return nil, err
	}
	if long.AccessToken == "" {
		return nil, ErrInvalidResponse
	}

	token := &oauth2.Token{
		AccessToken: long.AccessToken,
		TokenType:   long.TokenType,
		ExpiresIn:   long.ExpiresIn,
	}
	if token.TokenType == "" {
		token.TokenType = "bearer"
	}
	if long.ExpiresIn > 0 {
		token.Expiry = time.Now().UTC().Add(time.Duration(long.ExpiresIn) * time.Second)
	}
	return token, nil
}

// DebugToken introspects accessToken using the application token.
func (c *Client) DebugToken(ctx context.Context, accessToken string) (*TokenInfo, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingToken
	}
	var resp struct {
		Data *TokenInfo `json:"data"`
	}
	err := c.do(ctx, call{
		endpoint: EndpointDebugToken,
		method:   http.MethodGet,
		url:      c.endpointURL("debug_token"),
		query: url.Values{
			"input_token":  {accessToken},
			"access_token": {c.cfg.AppID + "|" + c.cfg.AppSecret},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, ErrInvalidResponse
	}
	return resp.Data, nil
}

// GetUserInfo returns the profile behind accessToken.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingToken
	}
	var info UserInfo
	err := c.do(ctx, call{
		endpoint: EndpointMe,
		method:   http.MethodGet,
		url:      c.endpointURL("me"),
		query: url.Values{
			"access_token": {accessToken},
			"fields":       {"id,name,email"},
		},
	}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
