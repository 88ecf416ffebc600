// Package clients holds the outbound lookups against the account and
// friends services. Both are fixed request/response calls keyed by an
// x-api-key header; failures abort the current RPC and the game client
// retries.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const requestTimeout = 5 * time.Second

type Friends struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewFriends(baseURL, apiKey string) *Friends {
	return &Friends{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// GetUserFriendPIDs returns the pids on the user's friend list.
func (f *Friends) GetUserFriendPIDs(ctx context.Context, pid uint32) ([]uint32, error) {
	var out struct {
		PIDs []uint32 `json:"pids"`
	}
	url := fmt.Sprintf("%s/v1/users/%d/friend_pids", f.baseURL, pid)
	if err := getJSON(ctx, f.http, url, f.apiKey, &out); err != nil {
		return nil, fmt.Errorf("friends lookup for %d: %w", pid, err)
	}
	return out.PIDs, nil
}

type Account struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewAccount(baseURL, apiKey string) *Account {
	return &Account{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// GetNEXPassword returns the principal's rendezvous password.
func (a *Account) GetNEXPassword(ctx context.Context, pid uint32) (string, error) {
	var out struct {
		Password string `json:"password"`
	}
	url := fmt.Sprintf("%s/v1/users/%d/nex_password", a.baseURL, pid)
	if err := getJSON(ctx, a.http, url, a.apiKey, &out); err != nil {
		return "", fmt.Errorf("account lookup for %d: %w", pid, err)
	}
	return out.Password, nil
}

func getJSON(ctx context.Context, client *http.Client, url, apiKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", apiKey)

	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
