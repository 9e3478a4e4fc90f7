// Package signal talks to the rendezvous API served by `quizsnap signal`.
package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quizsnap/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client is a p2p.Rendezvous backed by a remote signalling server.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type room struct {
	RoomID string `json:"roomId"`
	Addr   string `json:"addr"`
}

func (c *Client) Register(ctx context.Context, roomID, addr string) error {
	body, err := json.Marshal(room{RoomID: roomID, Addr: addr})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/rooms", body)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return domain.ErrRoomTaken
	case http.StatusBadRequest:
		return domain.ErrInvalidRoomID
	default:
		return unexpected(resp)
	}
}

func (c *Client) Resolve(ctx context.Context, roomID string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", domain.ErrRoomNotFound
	case http.StatusBadRequest:
		return "", domain.ErrInvalidRoomID
	default:
		return "", unexpected(resp)
	}

	var r room
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("%w: decode room: %v", domain.ErrSignallingUnavailable, err)
	}
	if r.Addr == "" {
		return "", domain.ErrRoomNotFound
	}
	return r.Addr, nil
}

func (c *Client) Unregister(ctx context.Context, roomID, addr string) error {
	query := url.Values{"addr": {addr}}.Encode()
	resp, err := c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(roomID)+"?"+query, nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return unexpected(resp)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignallingUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignallingUnavailable, err)
	}
	return resp, nil
}

func unexpected(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: %s %s", domain.ErrSignallingUnavailable, resp.Status, strings.TrimSpace(string(msg)))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
