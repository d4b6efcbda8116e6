package receipt

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Extras holds the members of a JSON object that a record has no field for
type Extras map[string]json.RawMessage

var knownKeys sync.Map // reflect.Type -> map[string]bool

// fieldKeys lists the JSON member names bound to fields of t
func fieldKeys(t reflect.Type) map[string]bool {
	if keys, ok := knownKeys.Load(t); ok {
		return keys.(map[string]bool)
	}
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		keys[name] = true
	}
	knownKeys.Store(t, keys)
	return keys
}

// decodeRecord fills out from data and returns the members out has no
// field for. out must point to a struct type without its own UnmarshalJSON.
func decodeRecord(data []byte, out any) (Extras, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	known := fieldKeys(reflect.TypeOf(out).Elem())
	var extra Extras
	for k, v := range members {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = Extras{}
		}
		extra[k] = v
	}
	return extra, nil
}

// encodeRecord marshals v and adds extra members that v does not already
// write
func encodeRecord(v any, extra Extras) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return b, err
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(b, &members); err != nil {
		return nil, err
	}
	known := fieldKeys(reflect.TypeOf(v))
	for k, raw := range extra {
		if _, written := members[k]; written || known[k] {
			continue
		}
		members[k] = raw
	}
	return json.Marshal(members)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	extra, err := decodeRecord(data, (*plain)(d))
	d.Extra = extra
	return err
}

func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return encodeRecord(plain(d), d.Extra)
}

func (v *Vendor) UnmarshalJSON(data []byte) error {
	type plain Vendor
	extra, err := decodeRecord(data, (*plain)(v))
	v.Extra = extra
	return err
}

func (v Vendor) MarshalJSON() ([]byte, error) {
	type plain Vendor
	return encodeRecord(plain(v), v.Extra)
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	extra, err := decodeRecord(data, (*plain)(t))
	t.Extra = extra
	return err
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	return encodeRecord(plain(t), t.Extra)
}

func (i *Item) UnmarshalJSON(data []byte) error {
	type plain Item
	extra, err := decodeRecord(data, (*plain)(i))
	i.Extra = extra
	return err
}

func (i Item) MarshalJSON() ([]byte, error) {
	type plain Item
	return encodeRecord(plain(i), i.Extra)
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	type plain Summary
	extra, err := decodeRecord(data, (*plain)(s))
	s.Extra = extra
	return err
}

func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return encodeRecord(plain(s), s.Extra)
}

func (t *Tax) UnmarshalJSON(data []byte) error {
	type plain Tax
	extra, err := decodeRecord(data, (*plain)(t))
	t.Extra = extra
	return err
}

func (t Tax) MarshalJSON() ([]byte, error) {
	type plain Tax
	return encodeRecord(plain(t), t.Extra)
}

func (d *Discount) UnmarshalJSON(data []byte) error {
	type plain Discount
	extra, err := decodeRecord(data, (*plain)(d))
	d.Extra = extra
	return err
}

func (d Discount) MarshalJSON() ([]byte, error) {
	type plain Discount
	return encodeRecord(plain(d), d.Extra)
}

func (p *Payment) UnmarshalJSON(data []byte) error {
	type plain Payment
	extra, err := decodeRecord(data, (*plain)(p))
	p.Extra = extra
	return err
}

func (p Payment) MarshalJSON() ([]byte, error) {
	type plain Payment
	return encodeRecord(plain(p), p.Extra)
}
