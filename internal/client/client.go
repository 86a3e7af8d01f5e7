package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/game"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/utils"
)

// Client talks to the escrow REST api mounted at BaseURL.
type Client struct {
	BaseURL string
	Token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a problem body returned by the server.
type APIError struct {
	Status  int
	Problem reject.Problem
}

func (e *APIError) Error() string {
	if e.Problem.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Problem.Code, e.Problem.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Problem.Code)
}

func (c *Client) CreateGame(ctx context.Context, commitment string, stake decimal.Decimal) (uint64, error) {
	var res game.CreateGameResponse
	err := c.do(ctx, http.MethodPost, "/games", game.CreateGameRequest{Commitment: commitment, Stake: stake}, &res)
	return res.GameId, err
}

func (c *Client) JoinGame(ctx context.Context, id uint64, commitment string, stake decimal.Decimal) (game.GameResponse, error) {
	var res game.GameResponse
	err := c.do(ctx, http.MethodPost, gamePath(id, "join"), game.JoinGameRequest{Commitment: commitment, Stake: stake}, &res)
	return res, err
}

func (c *Client) Reveal(ctx context.Context, id uint64, move escrow.Move, salt string) (game.GameResponse, error) {
	var res game.GameResponse
	body := game.RevealRequest{Move: moveJSON(move), Salt: salt}
	err := c.do(ctx, http.MethodPost, gamePath(id, "reveal"), body, &res)
	return res, err
}

func (c *Client) CancelGame(ctx context.Context, id uint64) (game.GameResponse, error) {
	var res game.GameResponse
	err := c.do(ctx, http.MethodPost, gamePath(id, "cancel"), nil, &res)
	return res, err
}

func (c *Client) Game(ctx context.Context, id uint64) (game.GameResponse, error) {
	var res game.GameResponse
	err := c.do(ctx, http.MethodGet, gamePath(id, ""), nil, &res)
	return res, err
}

func (c *Client) Events(ctx context.Context, id uint64) (game.EventsResponse, error) {
	var res game.EventsResponse
	err := c.do(ctx, http.MethodGet, gamePath(id, "events"), nil, &res)
	return res, err
}

// Games lists one page of games. An empty filter lists all of them.
func (c *Client) Games(ctx context.Context, filter string, pageSize, pageToken int64) (utils.PageResponse[game.GameResponse], error) {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.FormatInt(pageSize, 10))
	}
	if pageToken > 0 {
		q.Set("page_token", strconv.FormatInt(pageToken, 10))
	}
	path := "/games"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var res utils.PageResponse[game.GameResponse]
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

func (c *Client) GameCount(ctx context.Context) (uint64, error) {
	var res game.CountResponse
	err := c.do(ctx, http.MethodGet, "/games/count", nil, &res)
	return res.Count, err
}

func (c *Client) Config(ctx context.Context) (game.ConfigResponse, error) {
	var res game.ConfigResponse
	err := c.do(ctx, http.MethodGet, "/config", nil, &res)
	return res, err
}

// Commitment asks the server to compute a commitment. An empty salt lets the
// server pick one.
func (c *Client) Commitment(ctx context.Context, move escrow.Move, salt string) (game.CommitmentResponse, error) {
	var res game.CommitmentResponse
	err := c.do(ctx, http.MethodPost, "/commitments", game.CommitmentRequest{Move: moveJSON(move), Salt: salt}, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if res.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: res.StatusCode}
		_ = json.Unmarshal(data, &apiErr.Problem)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(data, out), "decode %s %s", method, path)
}

func gamePath(id uint64, action string) string {
	path := "/games/" + strconv.FormatUint(id, 10)
	if action != "" {
		path += "/" + action
	}
	return path
}

func moveJSON(m escrow.Move) json.RawMessage {
	return json.RawMessage(strconv.Itoa(int(m)))
}
