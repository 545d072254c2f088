package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"neon/internal/domain/leave"
)

// Client talks to the leave API on behalf of one bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var (
	_ leave.BalanceSource = (*Client)(nil)
	_ leave.Submitter     = (*Client)(nil)
)

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithHTTPClient swaps the transport, e.g. for an httptest server client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// Page mirrors the paginated list payload.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (c *Client) FetchBalance(ctx context.Context, employeeID string, year int) (leave.Balance, error) {
	q := url.Values{}
	if employeeID != "" {
		q.Set("employeeId", employeeID)
	}
	if year != 0 {
		q.Set("year", strconv.Itoa(year))
	}
	var out leave.Balance
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/leave/balances", q), nil, &out); err != nil {
		return leave.Balance{}, fmt.Errorf("fetch balance: %w", err)
	}
	return out, nil
}

func (c *Client) FetchMyRequests(ctx context.Context, limit, offset int) (Page[leave.LeaveRequest], error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out Page[leave.LeaveRequest]
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/leave/requests", q), nil, &out); err != nil {
		return Page[leave.LeaveRequest]{}, fmt.Errorf("fetch requests: %w", err)
	}
	return out, nil
}

func (c *Client) FetchPendingApprovals(ctx context.Context) ([]leave.QueueItem, error) {
	var out []leave.QueueItem
	if err := c.doJSON(ctx, http.MethodGet, "/leave/approvals", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch approvals: %w", err)
	}
	return out, nil
}

// SubmitRequest posts a draft. A non-empty idempotency key makes retries of
// the same draft safe.
func (c *Client) SubmitRequest(ctx context.Context, d leave.Draft) (leave.LeaveRequest, error) {
	return c.SubmitRequestWithKey(ctx, d, "")
}

func (c *Client) SubmitRequestWithKey(ctx context.Context, d leave.Draft, idempotencyKey string) (leave.LeaveRequest, error) {
	var out struct {
		Request leave.LeaveRequest `json:"request"`
	}
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}
	if err := c.do(ctx, http.MethodPost, "/leave/requests", d, &out, headers); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("submit request: %w", err)
	}
	return out.Request, nil
}

// ResolveRequest approves or rejects. The reason is only sent on rejection.
func (c *Client) ResolveRequest(ctx context.Context, id string, decision leave.Status, reason string) (leave.LeaveRequest, error) {
	var path string
	var body any
	switch decision {
	case leave.StatusApproved:
		path = "/leave/requests/" + url.PathEscape(id) + "/approve"
	case leave.StatusRejected:
		path = "/leave/requests/" + url.PathEscape(id) + "/reject"
		body = map[string]string{"rejectionReason": reason}
	default:
		return leave.LeaveRequest{}, &leave.ValidationError{Fields: []leave.FieldIssue{{Field: "decision", Reason: "must be Approved or Rejected"}}}
	}
	var out leave.LeaveRequest
	if err := c.doJSON(ctx, http.MethodPost, path, body, &out); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("resolve request: %w", err)
	}
	return out, nil
}

func (c *Client) CancelRequest(ctx context.Context, id string) (leave.LeaveRequest, error) {
	var out leave.LeaveRequest
	if err := c.doJSON(ctx, http.MethodPost, "/leave/requests/"+url.PathEscape(id)+"/cancel", nil, &out); err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("cancel request: %w", err)
	}
	return out, nil
}

func (c *Client) PendingCount(ctx context.Context) (int, error) {
	var out struct {
		PendingCount int `json:"pendingCount"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/leave/approvals/count", nil, &out); err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return out.PendingCount, nil
}

// TodayStatus reports whether employeeID (the caller when empty) is on
// approved leave today.
func (c *Client) TodayStatus(ctx context.Context, employeeID string) (leave.TodayStatus, error) {
	q := url.Values{}
	if employeeID != "" {
		q.Set("employeeId", employeeID)
	}
	var out leave.TodayStatus
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/leave/status/today", q), nil, &out); err != nil {
		return leave.TodayStatus{}, fmt.Errorf("today status: %w", err)
	}
	return out, nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	return c.do(ctx, method, path, body, result, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, headers map[string]string) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &leave.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &leave.NetworkError{Err: err}
	}

	var env envelope
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &env); err != nil && resp.StatusCode < 500 {
			return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
		}
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, env)
	}
	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// statusError maps an error response onto the domain error types.
func statusError(status int, env envelope) error {
	message := http.StatusText(status)
	var details json.RawMessage
	if env.Error != nil {
		message = env.Error.Message
		details = env.Error.Details
	}

	switch {
	case status == http.StatusBadRequest:
		var d struct {
			Fields []leave.FieldIssue `json:"fields"`
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &d)
		}
		if len(d.Fields) == 0 {
			d.Fields = []leave.FieldIssue{{Field: "request", Reason: message}}
		}
		return &leave.ValidationError{Fields: d.Fields}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		var d struct {
			Action string `json:"action"`
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &d)
		}
		return &leave.AuthorizationError{Action: d.Action, Reason: message}
	case status == http.StatusConflict:
		var d struct {
			Status leave.Status `json:"status"`
			Reason string       `json:"reason"`
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &d)
		}
		return &leave.ConflictError{Status: d.Status, Reason: d.Reason}
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", message, leave.ErrNotFound)
	case status >= 500, status == http.StatusTooManyRequests:
		return &leave.NetworkError{Err: errors.New(strconv.Itoa(status) + " " + message)}
	default:
		return fmt.Errorf("unexpected status %d: %s", status, message)
	}
}
