package ledger

import (
	"context"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Splitwise", func() {
	var (
		ctx       context.Context
		server    *ghttp.Server
		splitwise *Splitwise
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = ghttp.NewServer()
		var err error
		splitwise, err = NewSplitwise(server.URL()+"/api/v3.0", "sw-key", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an api key", func() {
		_, err := NewSplitwise("", "", nil)
		Expect(err).To(HaveOccurred())
	})

	Describe("CreateExpense", func() {
		var body map[string]any

		BeforeEach(func() {
			body = nil
		})

		captureBody := func(w http.ResponseWriter, r *http.Request) {
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
		}

		When("splitting equally", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/api/v3.0/create_expense"),
					ghttp.VerifyHeaderKV("Authorization", "Bearer sw-key"),
					captureBody,
					ghttp.RespondWith(http.StatusOK, `{
						"expenses": [{"id": 991, "description": "Dinner", "cost": "25.5", "date": "2024-03-15T19:00:00Z", "group_id": 3,
							"created_by": {"id": 1, "first_name": "Ana", "last_name": "Lima"}}],
						"errors": {}
					}`),
				))
			})

			It("creates the expense", func() {
				expense, err := splitwise.CreateExpense(ctx, ExpenseInput{Description: "Dinner", Amount: 25.5, GroupID: id(3), SplitEqually: true})
				Expect(err).NotTo(HaveOccurred())
				Expect(expense.ID).To(Equal(int64(991)))
				Expect(expense.Amount).To(Equal(25.5))
				Expect(*expense.GroupID).To(Equal(int64(3)))
				Expect(expense.CreatedBy).To(Equal(&User{ID: 1, Name: "Ana"}))

				Expect(body).To(HaveKeyWithValue("cost", "25.50"))
				Expect(body).To(HaveKeyWithValue("split_equally", true))
				Expect(body).To(HaveKeyWithValue("group_id", 3.0))
			})
		})

		When("splitting by shares", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					captureBody,
					ghttp.RespondWith(http.StatusOK, `{"expenses": [{"id": 5, "description": "Taxi", "cost": "30.0"}], "errors": {}}`),
				))
			})

			It("sends each user's share", func() {
				_, err := splitwise.CreateExpense(ctx, ExpenseInput{
					Description: "Taxi",
					Amount:      30,
					Users: []Share{
						{UserID: 1, PaidShare: 30, OwedShare: 10},
						{UserID: 2, PaidShare: 0, OwedShare: 20},
					},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(body).NotTo(HaveKey("split_equally"))
				Expect(body).To(HaveKeyWithValue("users__0__user_id", 1.0))
				Expect(body).To(HaveKeyWithValue("users__0__paid_share", "30.00"))
				Expect(body).To(HaveKeyWithValue("users__1__owed_share", "20.00"))
			})
		})

		When("Splitwise reports errors", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"expenses": [], "errors": {"base": ["You are not a member of this group"]}}`))
			})

			It("returns them", func() {
				_, err := splitwise.CreateExpense(ctx, ExpenseInput{Description: "Dinner", Amount: 10, SplitEqually: true})
				Expect(err).To(MatchError(ContainSubstring("You are not a member of this group")))
			})
		})

		When("the input is invalid", func() {
			It("does not call Splitwise", func() {
				_, err := splitwise.CreateExpense(ctx, ExpenseInput{Description: "Dinner", SplitEqually: true})
				Expect(err).To(HaveOccurred())
				Expect(server.ReceivedRequests()).To(BeEmpty())
			})
		})
	})

	Describe("Groups", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/api/v3.0/get_groups"),
				ghttp.RespondWith(http.StatusOK, `{"groups": [{"id": 3, "name": "Flat", "members": [
					{"id": 1, "first_name": "Ana", "last_name": "Lima"},
					{"id": 2, "first_name": "Ben", "last_name": null}
				]}]}`),
			))
		})

		It("maps groups and members", func() {
			groups, err := splitwise.Groups(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(Equal([]Group{{
				ID:      3,
				Name:    "Flat",
				Members: []Member{{ID: 1, Name: "Ana"}, {ID: 2, Name: "Ben"}},
			}}))
		})
	})

	Describe("Friends", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/api/v3.0/get_friends"),
				ghttp.RespondWith(http.StatusOK, `{"friends": [{"id": 2, "first_name": "Ben", "last_name": "Ode", "email": "ben@example.com"}]}`),
			))
		})

		It("maps friends", func() {
			friends, err := splitwise.Friends(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(friends).To(ConsistOf(Friend{ID: 2, FirstName: "Ben", LastName: "Ode", Email: "ben@example.com"}))
		})
	})

	Describe("Expenses", func() {
		When("filtering by group", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("GET", "/api/v3.0/get_expenses", "group_id=3&limit=5"),
					ghttp.RespondWith(http.StatusOK, `{"expenses": [{"id": 9, "description": "Power", "cost": "60.25", "date": "2024-03-01T00:00:00Z",
						"created_by": {"id": 2, "first_name": "Ben"}}]}`),
				))
			})

			It("maps expenses", func() {
				expenses, err := splitwise.Expenses(ctx, ExpenseQuery{GroupID: id(3), Limit: 5})
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(HaveLen(1))
				Expect(expenses[0].Amount).To(Equal(60.25))
				Expect(expenses[0].CreatedBy.Name).To(Equal("Ben"))
			})
		})

		When("no limit is given", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("GET", "/api/v3.0/get_expenses", "limit=20"),
					ghttp.RespondWith(http.StatusOK, `{"expenses": []}`),
				))
			})

			It("uses the default limit", func() {
				expenses, err := splitwise.Expenses(ctx, ExpenseQuery{})
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(BeEmpty())
			})
		})

		When("the API rejects the request", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error": "Invalid API request: you are not logged in"}`))
			})

			It("returns the error", func() {
				_, err := splitwise.Expenses(ctx, ExpenseQuery{})
				Expect(err).To(MatchError(ContainSubstring("status 401")))
			})
		})
	})
})
