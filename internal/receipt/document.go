package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Document is the structured reading of one receipt. Optional fields are
// omitted from the wire when the model did not report them. A degraded
// document carries only RawText, Error, empty Items and a zero total.
// Members the model reported beyond these fields are kept in Extra on every
// record and written back out unchanged.
type Document struct {
	Vendor      *Vendor      `json:"vendor,omitempty"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Items       []Item       `json:"items"`
	Summary     Summary      `json:"summary"`
	Payment     *Payment     `json:"payment,omitempty"`

	RawText string `json:"raw_text,omitempty"`
	Error   string `json:"error,omitempty"`

	Extra Extras `json:"-"`
}

type Vendor struct {
	Name     string      `json:"name,omitempty"`
	Address  string      `json:"address,omitempty"`
	Phone    LooseString `json:"phone,omitempty"`
	Category string      `json:"category,omitempty"`

	Extra Extras `json:"-"`
}

type Transaction struct {
	// Date is ISO-8601 when the model's value could be understood, otherwise
	// exactly what the model reported
	Date          string      `json:"date,omitempty"`
	Time          LooseString `json:"time,omitempty"`
	ReceiptNumber LooseString `json:"receipt_number,omitempty"`

	Extra Extras `json:"-"`
}

// Item is a single line of a receipt
type Item struct {
	Name       string   `json:"name"`
	Quantity   *float64 `json:"quantity,omitempty"`
	UnitPrice  *float64 `json:"unit_price,omitempty"`
	TotalPrice *float64 `json:"total_price,omitempty"`
	Category   string   `json:"category,omitempty"`

	Extra Extras `json:"-"`
}

type Summary struct {
	Subtotal   *float64   `json:"subtotal,omitempty"`
	TaxDetails []Tax      `json:"tax_details,omitempty"`
	Discounts  []Discount `json:"discounts,omitempty"`
	Total      float64    `json:"total"`

	Extra Extras `json:"-"`
}

type Tax struct {
	Type   string   `json:"type"`
	Amount *float64 `json:"amount"`

	Extra Extras `json:"-"`
}

type Discount struct {
	Description string   `json:"description"`
	Amount      *float64 `json:"amount"`

	Extra Extras `json:"-"`
}

type Payment struct {
	Method    string      `json:"method,omitempty"`
	CardLast4 LooseString `json:"card_last_4,omitempty"`
	Status    string      `json:"status,omitempty"`

	Extra Extras `json:"-"`
}

// LooseString is a text field that models sometimes emit as a JSON number,
// such as a receipt number or the last four digits of a card.
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = LooseString(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	if i, err := num.Int64(); err == nil {
		*s = LooseString(strconv.FormatInt(i, 10))
		return nil
	}
	*s = LooseString(num.String())
	return nil
}
