package receipt

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseDocument", func() {
	var (
		input string
		doc   *Document
		err   error
	)

	JustBeforeEach(func() {
		doc, err = parseDocument(input, compiledDocumentSchema)
	})

	When("parsing a full document", func() {
		BeforeEach(func() {
			input = `{
				"vendor": {"name": "CVS Pharmacy", "phone": 5551234567},
				"transaction": {"date": "2024/01/15", "time": "14:02", "receipt_number": 88213},
				"items": [{"name": "Bandages", "quantity": 2, "unit_price": 3.5, "total_price": 7}],
				"summary": {"subtotal": 7, "tax_details": [{"type": "sales", "amount": 0.56}], "total": 7.56},
				"payment": {"method": "card", "card_last_4": "0042", "status": "approved"}
			}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the vendor", func() {
			Expect(doc.Vendor.Name).To(Equal("CVS Pharmacy"))
			Expect(doc.Vendor.Phone).To(Equal(LooseString("5551234567")))
		})

		It("should normalize the date", func() {
			Expect(doc.Transaction.Date).To(Equal("2024-01-15"))
			Expect(doc.Transaction.ReceiptNumber).To(Equal(LooseString("88213")))
		})

		It("should parse the items and summary", func() {
			Expect(doc.Items).To(HaveLen(1))
			Expect(*doc.Items[0].Quantity).To(Equal(2.0))
			Expect(doc.Summary.TaxDetails).To(HaveLen(1))
			Expect(doc.Summary.TaxDetails[0].Type).To(Equal("sales"))
			Expect(*doc.Summary.TaxDetails[0].Amount).To(Equal(0.56))
			Expect(doc.Summary.Total).To(Equal(7.56))
		})

		It("should keep leading zeros of the card digits", func() {
			Expect(doc.Payment.CardLast4).To(Equal(LooseString("0042")))
		})
	})

	When("parsing JSON with markdown code blocks", func() {
		BeforeEach(func() {
			input = "```json\n{\"summary\": {\"total\": 10.50}}\n```"
		})

		It("should parse the total", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Summary.Total).To(Equal(10.50))
		})
	})

	When("parsing JSON with surrounding text", func() {
		BeforeEach(func() {
			input = "Here is the receipt:\n{\"summary\": {\"total\": 4}}\nLet me know if you need more."
		})

		It("should extract the object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Summary.Total).To(Equal(4.0))
		})
	})

	When("the total is missing", func() {
		BeforeEach(func() {
			input = `{"vendor": {"name": "Shop"}, "summary": {}}`
		})

		It("should return a schema error", func() {
			Expect(err).To(MatchError(ContainSubstring("does not match schema")))
		})
	})

	When("an item price is a string", func() {
		BeforeEach(func() {
			input = `{"items": [{"name": "Tea", "total_price": "2.00"}], "summary": {"total": 2}}`
		})

		It("should return a schema error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("there is no JSON object", func() {
		BeforeEach(func() {
			input = "no receipt here"
		})

		It("should return an error", func() {
			Expect(err).To(MatchError(ContainSubstring("no JSON object")))
		})
	})

	When("the JSON is truncated", func() {
		BeforeEach(func() {
			input = `{"summary": {"total": 4}`
		})

		It("should return an error", func() {
			Expect(err).To(MatchError(ContainSubstring("unmarshaling json")))
		})
	})
})

var _ = Describe("DecodeArray", func() {
	It("extracts an array from prose", func() {
		var out []map[string]any
		Expect(DecodeArray("Sure!\n```json\n[{\"name\":\"Tea\"}]\n```", nil, &out)).To(Succeed())
		Expect(out).To(HaveLen(1))
		Expect(out[0]).To(HaveKeyWithValue("name", "Tea"))
	})

	It("fails without an array", func() {
		var out []map[string]any
		Expect(DecodeArray(`{"name":"Tea"}`, nil, &out)).To(MatchError(ContainSubstring("no JSON array")))
	})
})

var _ = DescribeTable("NormalizeDate",
	func(input, expected string) {
		Expect(NormalizeDate(input)).To(Equal(expected))
	},
	Entry("ISO date", "2024-03-15", "2024-03-15"),
	Entry("slashed ISO date", "2024/03/15", "2024-03-15"),
	Entry("US date", "03/15/2024", "2024-03-15"),
	Entry("day first with dashes", "15-03-2024", "2024-03-15"),
	Entry("datetime with space", "2024-03-15 10:30:00", "2024-03-15T10:30:00"),
	Entry("datetime", "2024-03-15T10:30:00", "2024-03-15T10:30:00"),
	Entry("RFC3339", "2024-03-15T10:30:00Z", "2024-03-15T10:30:00Z"),
	Entry("unparsable", "March 15th", "March 15th"),
	Entry("empty", "", ""),
)

var _ = Describe("LooseString", func() {
	It("accepts numbers and strings", func() {
		var tx Transaction
		Expect(json.Unmarshal([]byte(`{"time":1430,"receipt_number":"A-1"}`), &tx)).To(Succeed())
		Expect(tx.Time).To(Equal(LooseString("1430")))
		Expect(tx.ReceiptNumber).To(Equal(LooseString("A-1")))
	})

	It("treats null as empty", func() {
		var p Payment
		Expect(json.Unmarshal([]byte(`{"card_last_4":null}`), &p)).To(Succeed())
		Expect(p.CardLast4).To(BeEmpty())
	})

	It("rejects other values", func() {
		var p Payment
		Expect(json.Unmarshal([]byte(`{"card_last_4":true}`), &p)).NotTo(Succeed())
	})
})

var _ = Describe("Extras", func() {
	It("keeps unknown members of an item", func() {
		var item Item
		Expect(json.Unmarshal([]byte(`{"name":"Tea","total_price":2,"discount":0.5,"tags":["hot"]}`), &item)).To(Succeed())
		Expect(item.Name).To(Equal("Tea"))
		Expect(item.Extra).To(HaveKey("discount"))
		Expect(item.Extra).NotTo(HaveKey("name"))

		out, err := json.Marshal(item)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(MatchJSON(`{"name":"Tea","total_price":2,"discount":0.5,"tags":["hot"]}`))
	})

	It("leaves Extra nil when every member is known", func() {
		var item Item
		Expect(json.Unmarshal([]byte(`{"name":"Tea"}`), &item)).To(Succeed())
		Expect(item.Extra).To(BeNil())
	})

	It("does not let an extra member override a field", func() {
		item := Item{Name: "Tea", Extra: Extras{"name": json.RawMessage(`"Coffee"`)}}
		out, err := json.Marshal(item)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(MatchJSON(`{"name":"Tea"}`))
	})
})
