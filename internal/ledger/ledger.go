package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/zombor/receipt-splitter/internal/receipt"
)

// DefaultLimit is the number of expenses returned when a query has no limit
const DefaultLimit = 20

// Ledger defines the operations of an expense-splitting service
type Ledger interface {
	// CreateExpense records a new expense
	CreateExpense(ctx context.Context, input ExpenseInput) (*Expense, error)

	// Groups returns the groups of the current user
	Groups(ctx context.Context) ([]Group, error)

	// Friends returns the friends of the current user
	Friends(ctx context.Context) ([]Friend, error)

	// Expenses returns recent expenses, newest first
	Expenses(ctx context.Context, query ExpenseQuery) ([]Expense, error)

	// Close releases the ledger's resources
	Close() error
}

type Expense struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	GroupID     *int64  `json:"group_id,omitempty"`
	Details     string  `json:"details,omitempty"`
	CreatedBy   *User   `json:"created_by,omitempty"`
}

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Group struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

type Member struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Friend struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Share is one user's part of an expense that is not split equally
type Share struct {
	UserID    int64   `json:"user_id"`
	PaidShare float64 `json:"paid_share"`
	OwedShare float64 `json:"owed_share"`
}

// ExpenseInput describes an expense to create
type ExpenseInput struct {
	Description  string
	Amount       float64
	GroupID      *int64
	SplitEqually bool
	// Users lists the shares when SplitEqually is false
	Users []Share
	// ReceiptData is the extracted receipt the expense was created from
	ReceiptData *receipt.Document
}

// Validate checks the input before it is sent anywhere
func (in ExpenseInput) Validate() error {
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if in.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %v", in.Amount)
	}
	if !in.SplitEqually && len(in.Users) == 0 {
		return fmt.Errorf("users are required when the expense is not split equally")
	}
	return nil
}

// ExpenseQuery filters Expenses
type ExpenseQuery struct {
	GroupID *int64
	Limit   int
}

func (q ExpenseQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Details summarises a receipt for the notes of an expense
func Details(doc *receipt.Document) string {
	if doc == nil {
		return ""
	}
	var lines []string
	if doc.Vendor != nil && doc.Vendor.Name != "" {
		lines = append(lines, "Vendor: "+doc.Vendor.Name)
	}
	if doc.Transaction != nil && doc.Transaction.Date != "" {
		lines = append(lines, "Date: "+doc.Transaction.Date)
	}
	lines = append(lines, fmt.Sprintf("Items: %d", len(doc.Items)))
	for _, item := range doc.Items {
		if item.TotalPrice != nil {
			lines = append(lines, fmt.Sprintf("- %s: %.2f", item.Name, *item.TotalPrice))
		} else {
			lines = append(lines, "- "+item.Name)
		}
	}
	lines = append(lines, fmt.Sprintf("Total: %.2f", doc.Summary.Total))
	return strings.Join(lines, "\n")
}
