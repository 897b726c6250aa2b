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

	"github.com/phessophissy/POSVault/internal/models"
)

// APIError is a non-2xx response. Code and Kind come from the JSON error
// body when the server sent one.
type APIError struct {
	Status int
	Code   string
	Kind   string
	Body   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Code, e.Kind, e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Code, apiErr.Kind = body.Error, body.Kind
	}
	return apiErr
}

// Client calls the POSVault API as the principal of its certificate.
type Client struct {
	http    *http.Client
	baseURL string
}

// New returns a Client for baseURL, e.g. https://localhost:8443.
func New(httpClient *http.Client, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: baseURL}
}

// do sends in as JSON and decodes the response into out. Either may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Account is a principal's view of the vault.
type Account = models.Account

// LedgerInfo is the public state of one asset ledger.
type LedgerInfo struct {
	Asset          string             `json:"asset"`
	Owner          models.Principal   `json:"owner"`
	TotalSupply    uint64             `json:"total_supply"`
	MintingEnabled bool               `json:"minting_enabled"`
	Minters        []models.Principal `json:"minters"`
}

// ProposalInput describes a new proposal.
type ProposalInput struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Kind        models.ProposalKind `json:"kind"`
	Value       uint64              `json:"value"`
}

// ProposalView is a proposal with its derived status.
type ProposalView struct {
	models.Proposal
	Status models.ProposalStatus `json:"status"`
}

// Vault

func (c *Client) VaultState(ctx context.Context) (*models.VaultState, error) {
	var vs models.VaultState
	if err := c.do(ctx, http.MethodGet, "/api/vault", nil, &vs); err != nil {
		return nil, err
	}
	return &vs, nil
}

func (c *Client) Account(ctx context.Context, p models.Principal) (*Account, error) {
	var a Account
	if err := c.do(ctx, http.MethodGet, "/api/vault/accounts/"+url.PathEscape(string(p)), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Deposit(ctx context.Context, amount uint64) error {
	return c.do(ctx, http.MethodPost, "/api/vault/deposit", map[string]uint64{"amount": amount}, nil)
}

func (c *Client) Withdraw(ctx context.Context) (*models.WithdrawResult, error) {
	var res models.WithdrawResult
	if err := c.do(ctx, http.MethodPost, "/api/vault/withdraw", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ClaimRewards(ctx context.Context) (uint64, error) {
	var res struct {
		Rewards uint64 `json:"rewards"`
	}
	err := c.do(ctx, http.MethodPost, "/api/vault/claim", nil, &res)
	return res.Rewards, err
}

func (c *Client) SetRewardRate(ctx context.Context, rateBps uint32) error {
	return c.do(ctx, http.MethodPut, "/api/vault/rate", map[string]uint32{"rate_bps": rateBps}, nil)
}

func (c *Client) TogglePause(ctx context.Context) (bool, error) {
	var res struct {
		Paused bool `json:"paused"`
	}
	err := c.do(ctx, http.MethodPost, "/api/vault/pause", nil, &res)
	return res.Paused, err
}

func (c *Client) EmergencyWithdraw(ctx context.Context) (uint64, error) {
	var res struct {
		Amount uint64 `json:"amount"`
	}
	err := c.do(ctx, http.MethodPost, "/api/vault/emergency-withdraw", nil, &res)
	return res.Amount, err
}

func (c *Client) Admins(ctx context.Context) ([]models.Principal, error) {
	var res struct {
		Admins []models.Principal `json:"admins"`
	}
	err := c.do(ctx, http.MethodGet, "/api/vault/admins", nil, &res)
	return res.Admins, err
}

func (c *Client) AddAdmin(ctx context.Context, p models.Principal) error {
	return c.do(ctx, http.MethodPost, "/api/vault/admins", map[string]models.Principal{"principal": p}, nil)
}

func (c *Client) RemoveAdmin(ctx context.Context, p models.Principal) error {
	return c.do(ctx, http.MethodDelete, "/api/vault/admins/"+url.PathEscape(string(p)), nil, nil)
}

// Ledger

func ledgerPath(asset, rest string) string {
	return "/api/ledger/" + url.PathEscape(asset) + rest
}

func (c *Client) Ledger(ctx context.Context, asset string) (*LedgerInfo, error) {
	var info LedgerInfo
	if err := c.do(ctx, http.MethodGet, ledgerPath(asset, ""), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Balance(ctx context.Context, asset string, p models.Principal) (uint64, error) {
	var res struct {
		Balance uint64 `json:"balance"`
	}
	err := c.do(ctx, http.MethodGet, ledgerPath(asset, "/balances/"+url.PathEscape(string(p))), nil, &res)
	return res.Balance, err
}

func (c *Client) Transfer(ctx context.Context, asset string, recipient models.Principal, amount uint64) error {
	return c.do(ctx, http.MethodPost, ledgerPath(asset, "/transfer"), map[string]any{"recipient": recipient, "amount": amount}, nil)
}

func (c *Client) Mint(ctx context.Context, asset string, recipient models.Principal, amount uint64) error {
	return c.do(ctx, http.MethodPost, ledgerPath(asset, "/mint"), map[string]any{"recipient": recipient, "amount": amount}, nil)
}

func (c *Client) Burn(ctx context.Context, asset string, amount uint64) error {
	return c.do(ctx, http.MethodPost, ledgerPath(asset, "/burn"), map[string]uint64{"amount": amount}, nil)
}

func (c *Client) AddMinter(ctx context.Context, asset string, p models.Principal) error {
	return c.do(ctx, http.MethodPost, ledgerPath(asset, "/minters"), map[string]models.Principal{"principal": p}, nil)
}

func (c *Client) RemoveMinter(ctx context.Context, asset string, p models.Principal) error {
	return c.do(ctx, http.MethodDelete, ledgerPath(asset, "/minters/"+url.PathEscape(string(p))), nil, nil)
}

func (c *Client) SetMinting(ctx context.Context, asset string, enabled bool) error {
	return c.do(ctx, http.MethodPut, ledgerPath(asset, "/minting"), map[string]bool{"enabled": enabled}, nil)
}

// Governance

func proposalPath(id uint64, rest string) string {
	return "/api/governance/proposals/" + strconv.FormatUint(id, 10) + rest
}

func (c *Client) GovernanceParams(ctx context.Context) (map[string]any, error) {
	var params map[string]any
	err := c.do(ctx, http.MethodGet, "/api/governance/params", nil, &params)
	return params, err
}

func (c *Client) ProposalCount(ctx context.Context) (uint64, error) {
	var res struct {
		Count uint64 `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "/api/governance/proposals", nil, &res)
	return res.Count, err
}

func (c *Client) CreateProposal(ctx context.Context, in ProposalInput) (uint64, error) {
	var res struct {
		ID uint64 `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/governance/proposals", in, &res)
	return res.ID, err
}

func (c *Client) Proposal(ctx context.Context, id uint64) (*ProposalView, error) {
	var p ProposalView
	if err := c.do(ctx, http.MethodGet, proposalPath(id, ""), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) Vote(ctx context.Context, id uint64, support bool) error {
	return c.do(ctx, http.MethodPost, proposalPath(id, "/votes"), map[string]bool{"support": support}, nil)
}

// VoteRecord returns nil when voter has not voted on id.
func (c *Client) VoteRecord(ctx context.Context, id uint64, voter models.Principal) (*models.VoteRecord, error) {
	var v *models.VoteRecord
	err := c.do(ctx, http.MethodGet, proposalPath(id, "/votes/"+url.PathEscape(string(voter))), nil, &v)
	return v, err
}

func (c *Client) ExecuteProposal(ctx context.Context, id uint64) (bool, error) {
	var res struct {
		Passed bool `json:"passed"`
	}
	err := c.do(ctx, http.MethodPost, proposalPath(id, "/execute"), nil, &res)
	return res.Passed, err
}

func (c *Client) ActiveProposal(ctx context.Context, p models.Principal) (uint64, bool, error) {
	var res struct {
		Active bool   `json:"active"`
		ID     uint64 `json:"id"`
	}
	err := c.do(ctx, http.MethodGet, "/api/governance/active/"+url.PathEscape(string(p)), nil, &res)
	return res.ID, res.Active, err
}

// Events

// Events lists committed events after afterSeq. An empty principal lists all.
func (c *Client) Events(ctx context.Context, principal models.Principal, afterSeq uint64, limit int) ([]models.Event, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(afterSeq, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if principal != "" {
		q.Set("principal", string(principal))
	}
	var events []models.Event
	err := c.do(ctx, http.MethodGet, "/api/events?"+q.Encode(), nil, &events)
	return events, err
}
