package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultSplitwiseURL is the Splitwise REST API base
const DefaultSplitwiseURL = "https://secure.splitwise.com/api/v3.0"

// Splitwise implements Ledger against the Splitwise REST API
type Splitwise struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewSplitwise creates a Splitwise client authenticated with an API key
func NewSplitwise(baseURL, apiKey string, logger *slog.Logger) (*Splitwise, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("splitwise api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultSplitwiseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey}))
	client.Timeout = 30 * time.Second

	return &Splitwise{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}, nil
}

type splitwiseUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type splitwiseExpense struct {
	ID          int64          `json:"id"`
	Description string         `json:"description"`
	Cost        string         `json:"cost"`
	Date        string         `json:"date"`
	Details     string         `json:"details"`
	GroupID     *int64         `json:"group_id"`
	CreatedBy   *splitwiseUser `json:"created_by"`
}

type splitwiseGroup struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Members []splitwiseUser `json:"members"`
}

type splitwiseResponse struct {
	Expenses []splitwiseExpense `json:"expenses"`
	Groups   []splitwiseGroup   `json:"groups"`
	Friends  []splitwiseUser    `json:"friends"`
	Errors   json.RawMessage    `json:"errors"`
}

// CreateExpense creates an expense, split equally or by explicit shares
func (s *Splitwise) CreateExpense(ctx context.Context, input ExpenseInput) (*Expense, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	body := map[string]any{
		"cost":        strconv.FormatFloat(input.Amount, 'f', 2, 64),
		"description": input.Description,
	}
	if input.GroupID != nil {
		body["group_id"] = *input.GroupID
	}
	if details := Details(input.ReceiptData); details != "" {
		body["details"] = details
	}
	if input.SplitEqually {
		body["split_equally"] = true
	} else {
		for i, share := range input.Users {
			prefix := fmt.Sprintf("users__%d__", i)
			body[prefix+"user_id"] = share.UserID
			body[prefix+"paid_share"] = strconv.FormatFloat(share.PaidShare, 'f', 2, 64)
			body[prefix+"owed_share"] = strconv.FormatFloat(share.OwedShare, 'f', 2, 64)
		}
	}

	var resp splitwiseResponse
	if err := s.do(ctx, http.MethodPost, "/create_expense", nil, body, &resp); err != nil {
		return nil, fmt.Errorf("creating expense: %w", err)
	}
	if len(resp.Expenses) == 0 {
		return nil, fmt.Errorf("creating expense: no expense in response")
	}

	expense := toExpense(resp.Expenses[0])
	s.logger.InfoContext(ctx, "Created expense", "id", expense.ID, "amount", expense.Amount)
	return &expense, nil
}

// Groups returns the current user's groups
func (s *Splitwise) Groups(ctx context.Context) ([]Group, error) {
	var resp splitwiseResponse
	if err := s.do(ctx, http.MethodGet, "/get_groups", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("getting groups: %w", err)
	}

	groups := make([]Group, 0, len(resp.Groups))
	for _, g := range resp.Groups {
		members := make([]Member, 0, len(g.Members))
		for _, m := range g.Members {
			members = append(members, Member{ID: m.ID, Name: m.FirstName})
		}
		groups = append(groups, Group{ID: g.ID, Name: g.Name, Members: members})
	}
	return groups, nil
}

// Friends returns the current user's friends
func (s *Splitwise) Friends(ctx context.Context) ([]Friend, error) {
	var resp splitwiseResponse
	if err := s.do(ctx, http.MethodGet, "/get_friends", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("getting friends: %w", err)
	}

	friends := make([]Friend, 0, len(resp.Friends))
	for _, f := range resp.Friends {
		friends = append(friends, Friend{
			ID:        f.ID,
			FirstName: f.FirstName,
			LastName:  f.LastName,
			Email:     f.Email,
		})
	}
	return friends, nil
}

// Expenses returns recent expenses, optionally for one group
func (s *Splitwise) Expenses(ctx context.Context, query ExpenseQuery) ([]Expense, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(query.limit()))
	if query.GroupID != nil {
		params.Set("group_id", strconv.FormatInt(*query.GroupID, 10))
	}

	var resp splitwiseResponse
	if err := s.do(ctx, http.MethodGet, "/get_expenses", params, nil, &resp); err != nil {
		return nil, fmt.Errorf("getting expenses: %w", err)
	}

	expenses := make([]Expense, 0, len(resp.Expenses))
	for _, e := range resp.Expenses {
		expenses = append(expenses, toExpense(e))
	}
	return expenses, nil
}

// Close releases idle connections
func (s *Splitwise) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Splitwise) do(ctx context.Context, method, path string, params url.Values, body any, out *splitwiseResponse) error {
	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling splitwise API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		s.logger.ErrorContext(ctx, "Splitwise request failed", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("splitwise API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if msg := errorMessage(out.Errors); msg != "" {
		return fmt.Errorf("splitwise: %s", msg)
	}
	return nil
}

// errorMessage flattens the errors member of a Splitwise response, which is
// either an object of message lists or a list of messages
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var byField map[string][]string
	if err := json.Unmarshal(raw, &byField); err == nil {
		var msgs []string
		for field, list := range byField {
			for _, m := range list {
				if field == "base" {
					msgs = append(msgs, m)
				} else {
					msgs = append(msgs, field+": "+m)
				}
			}
		}
		return strings.Join(msgs, "; ")
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func toExpense(e splitwiseExpense) Expense {
	amount, _ := strconv.ParseFloat(e.Cost, 64)
	expense := Expense{
		ID:          e.ID,
		Description: e.Description,
		Amount:      amount,
		Date:        e.Date,
		GroupID:     e.GroupID,
		Details:     e.Details,
	}
	if e.CreatedBy != nil {
		expense.CreatedBy = &User{ID: e.CreatedBy.ID, Name: e.CreatedBy.FirstName}
	}
	return expense
}
