// Package provider talks to the Shopify OAuth endpoints: the access
// token exchange and the merchant consent redirect.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Scopes requested during the merchant consent flow.
const Scopes = "read_products,write_products,read_orders,write_orders"

// Client exchanges authorization codes for access tokens and builds
// consent URLs for one Shopify app.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string

	// baseURL overrides the per-shop https://<shop> base in tests.
	baseURL string
	http    *http.Client
}

// NewClient creates a provider client. redirectURI is where Shopify
// sends the merchant back after consent.
func NewClient(clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientForTest creates a client whose shop endpoints resolve under
// baseURL instead of https://<shop>.
func NewClientForTest(clientID, clientSecret, redirectURI, baseURL string) *Client {
	c := NewClient(clientID, clientSecret, redirectURI)
	c.baseURL = baseURL
	return c
}

func (c *Client) shopBase(shopDomain string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return "https://" + shopDomain
}

// AuthorizeURL builds the consent URL the merchant is redirected to
// when authorization arrives without a code.
func (c *Client) AuthorizeURL(shopDomain, state string) string {
	return fmt.Sprintf("%s/admin/oauth/authorize?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		c.shopBase(shopDomain),
		c.clientID,
		url.QueryEscape(Scopes),
		url.QueryEscape(c.redirectURI),
		state)
}

// TokenExchange trades an authorization code for a shop access token.
func (c *Client) TokenExchange(ctx context.Context, shopDomain, code string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"code":          code,
	})
	if err != nil {
		return "", fmt.Errorf("provider: marshal token request: %w", err)
	}

	endpoint := c.shopBase(shopDomain) + "/admin/oauth/access_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("provider: create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("provider: token exchange for %s returned %d: %s",
			shopDomain, resp.StatusCode, string(respBody))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("provider: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("provider: no access token in response for %s", shopDomain)
	}
	return payload.AccessToken, nil
}
