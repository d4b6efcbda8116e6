package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-splitter/internal/receipt"
)

type fixedTime struct {
	t time.Time
}

func (f fixedTime) Now() time.Time {
	return f.t
}

var _ = Describe("Local", func() {
	var (
		ctx   context.Context
		local *Local
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		local, err = NewLocalWithDeps(filepath.Join(GinkgoT().TempDir(), "ledger.db"), fixedTime{t: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if local != nil {
			local.Close()
		}
	})

	Describe("CreateExpense", func() {
		It("stores the expense with a new id and the current date", func() {
			expense, err := local.CreateExpense(ctx, ExpenseInput{
				Description:  "Groceries",
				Amount:       42.1,
				SplitEqually: true,
				ReceiptData:  &receipt.Document{Items: []receipt.Item{}, Summary: receipt.Summary{Total: 42.1}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(expense.ID).To(Equal(int64(1)))
			Expect(expense.Date).To(Equal("2024-03-15T10:30:00Z"))
			Expect(expense.Details).To(ContainSubstring("Total: 42.10"))

			second, err := local.CreateExpense(ctx, ExpenseInput{Description: "Coffee", Amount: 3, SplitEqually: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(int64(2)))
		})

		It("rejects an unknown group", func() {
			_, err := local.CreateExpense(ctx, ExpenseInput{Description: "Dinner", Amount: 10, SplitEqually: true, GroupID: id(7)})
			Expect(err).To(MatchError(ContainSubstring("group not found: 7")))
		})

		It("rejects invalid input", func() {
			_, err := local.CreateExpense(ctx, ExpenseInput{Amount: 10, SplitEqually: true})
			Expect(err).To(MatchError(ContainSubstring("description is required")))
		})
	})

	Describe("Expenses", func() {
		BeforeEach(func() {
			Expect(local.AddGroup(Group{ID: 7, Name: "Flat"})).To(Succeed())
			for i, desc := range []string{"Rent", "Power", "Coffee", "Internet"} {
				input := ExpenseInput{Description: desc, Amount: float64(i + 1), SplitEqually: true}
				if desc != "Coffee" {
					input.GroupID = id(7)
				}
				_, err := local.CreateExpense(ctx, input)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("returns the newest first", func() {
			expenses, err := local.Expenses(ctx, ExpenseQuery{})
			Expect(err).NotTo(HaveOccurred())
			Expect(descriptions(expenses)).To(Equal([]string{"Internet", "Coffee", "Power", "Rent"}))
		})

		It("applies the limit", func() {
			expenses, err := local.Expenses(ctx, ExpenseQuery{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(descriptions(expenses)).To(Equal([]string{"Internet", "Coffee"}))
		})

		It("filters by group", func() {
			expenses, err := local.Expenses(ctx, ExpenseQuery{GroupID: id(7), Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(descriptions(expenses)).To(Equal([]string{"Internet", "Power"}))
		})
	})

	Describe("Groups and Friends", func() {
		It("returns what was added", func() {
			Expect(local.AddGroup(Group{ID: 2, Name: "Trip", Members: []Member{{ID: 1, Name: "Ana"}}})).To(Succeed())
			Expect(local.AddGroup(Group{ID: 1, Name: "Flat"})).To(Succeed())
			Expect(local.AddFriend(Friend{ID: 5, FirstName: "Ana", LastName: "Lima", Email: "ana@example.com"})).To(Succeed())

			groups, err := local.Groups(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(HaveLen(2))
			Expect(groups[0].Name).To(Equal("Flat"))
			Expect(groups[0].Members).To(BeEmpty())
			Expect(groups[1].Members).To(ConsistOf(Member{ID: 1, Name: "Ana"}))

			friends, err := local.Friends(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(friends).To(ConsistOf(Friend{ID: 5, FirstName: "Ana", LastName: "Lima", Email: "ana@example.com"}))
		})

		It("loads a seed file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "seed.json")
			Expect(os.WriteFile(path, []byte(`{
				"groups": [{"id": 7, "name": "Flat", "members": [{"id": 1, "name": "Ana"}, {"id": 2, "name": "Ben"}]}],
				"friends": [{"id": 2, "first_name": "Ben", "last_name": "Ode", "email": "ben@example.com"}]
			}`), 0600)).To(Succeed())
			Expect(local.ImportFile(path)).To(Succeed())

			groups, err := local.Groups(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(ConsistOf(Group{ID: 7, Name: "Flat", Members: []Member{{ID: 1, Name: "Ana"}, {ID: 2, Name: "Ben"}}}))

			friends, err := local.Friends(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(friends).To(ConsistOf(Friend{ID: 2, FirstName: "Ben", LastName: "Ode", Email: "ben@example.com"}))

			expense, err := local.CreateExpense(ctx, ExpenseInput{Description: "Rent", Amount: 900, SplitEqually: true, GroupID: id(7)})
			Expect(err).NotTo(HaveOccurred())
			Expect(*expense.GroupID).To(Equal(int64(7)))
		})

		It("rejects seed records without an id", func() {
			err := local.Import(strings.NewReader(`{"groups": [{"name": "Flat"}]}`))
			Expect(err).To(MatchError(ContainSubstring(`group "Flat" has no id`)))
		})

		It("rejects a malformed seed", func() {
			Expect(local.Import(strings.NewReader(`{"groups":`))).To(MatchError(ContainSubstring("decoding seed")))
		})

		It("returns empty lists for a new ledger", func() {
			groups, err := local.Groups(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(BeEmpty())
		})
	})
})

func descriptions(expenses []Expense) []string {
	out := make([]string, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, e.Description)
	}
	return out
}
