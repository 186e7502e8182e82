// Package payload maps the loosely-typed bodies and query strings sent by
// MonCash and by browsers onto the canonical fields the relay works with.
package payload

import (
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Field string

const (
	FieldTransactionID Field = "transaction_id"
	FieldOrderID       Field = "order_id"
	FieldAmount        Field = "amount"
)

// Alias binds a canonical field to the key names it has been sent under, in
// priority order.
type Alias struct {
	Field Field
	Keys  []string
}

// DefaultAliases is the alias table shared by every adapter.
var DefaultAliases = []Alias{
	{Field: FieldTransactionID, Keys: []string{"transactionId", "transaction_id", "mc_transaction_id", "txn_id", "tid", "payment_reference"}},
	{Field: FieldOrderID, Keys: []string{"orderId", "order_id", "order", "client_order_id", "reference", "orderRef"}},
	{Field: FieldAmount, Keys: []string{"amount", "mc_gross", "amt", "price"}},
}

type Resolver struct {
	aliases map[Field][]string
}

func NewResolver(aliases []Alias) *Resolver {
	r := &Resolver{aliases: make(map[Field][]string, len(aliases))}
	for _, a := range aliases {
		r.aliases[a.Field] = append(r.aliases[a.Field], a.Keys...)
	}
	return r
}

// Default returns a resolver over DefaultAliases.
func Default() *Resolver {
	return NewResolver(DefaultAliases)
}

// Fields is the canonical view of a payload.
type Fields struct {
	TransactionID string
	OrderID       string
	Amount        *decimal.Decimal
}

// Resolve returns the first non-empty value among the field's aliases.
func (r *Resolver) Resolve(values map[string]any, field Field) string {
	for _, key := range r.aliases[field] {
		if v, ok := values[key]; ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func (r *Resolver) ResolveAll(values map[string]any) Fields {
	return Fields{
		TransactionID: r.Resolve(values, FieldTransactionID),
		OrderID:       r.Resolve(values, FieldOrderID),
		Amount:        ParseAmount(r.Resolve(values, FieldAmount)),
	}
}

// ResolveQuery applies the same rules to a query string.
func (r *Resolver) ResolveQuery(q url.Values) Fields {
	return r.ResolveAll(FromValues(q))
}

// FromValues flattens url.Values keeping the first value of each key.
func FromValues(q url.Values) map[string]any {
	out := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// ParseAmount returns nil when s is not a usable number.
func ParseAmount(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		d = decimal.NewFromFloat(f)
	}
	return &d
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []string:
		if len(t) > 0 {
			return strings.TrimSpace(t[0])
		}
	}
	return ""
}
