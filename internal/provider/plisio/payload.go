package plisio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/settlement-engine/internal/provider"
	"github.com/josh-kwaku/settlement-engine/internal/signer"
)

// payload is a callback body as the PHP SDK sees it after decoding.
type payload struct {
	fields signer.Fields
}

func parsePayload(wh provider.Webhook) (payload, error) {
	body := bytes.TrimSpace(wh.Body)
	if len(body) > 0 && body[0] == '{' {
		v, err := signer.DecodeOrdered(body)
		if err != nil {
			return payload{}, fmt.Errorf("parsePayload: %w", err)
		}
		fields, ok := v.(signer.Fields)
		if !ok {
			return payload{}, errors.New("parsePayload: body is not an object")
		}
		return payload{fields: fields}, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return payload{}, fmt.Errorf("parsePayload: %w", err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make(signer.Fields, 0, len(keys))
	for _, k := range keys {
		vs := values[k]
		fields = append(fields, signer.Field{Key: k, Value: vs[len(vs)-1]})
	}
	return payload{fields: fields}, nil
}

func (p payload) text(key string) string {
	v, _ := p.fields.Get(key)
	return phpString(v)
}

func (p payload) decimal(key string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(p.text(key)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// verify recomputes verify_hash. A payload without one never verifies.
func (p payload) verify(key string) (bool, error) {
	hash := p.text("verify_hash")
	if hash == "" {
		return false, nil
	}

	data := p.fields.Without("verify_hash")
	if v, ok := data.Get("order_description"); ok && falsy(v) {
		data = data.Set("order_description", "")
	}
	data = signer.KSort(data)
	if v, ok := data.Get("expire_utc"); ok && v != nil {
		data = data.Set("expire_utc", phpString(v))
	}
	if v, ok := data.Get("tx_urls"); ok {
		if s, isString := v.(string); isString {
			data = data.Set("tx_urls", html.UnescapeString(s))
		}
	}

	serialized, err := signer.PHPSerialize(data)
	if err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	return signer.Equal(signer.HMACSHA1Hex(key, serialized), hash), nil
}

// phpString is PHP's (string) cast for decoded JSON scalars.
func phpString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return ""
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				return s
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return s
		}
		return signer.FormatPHPFloat(f)
	default:
		return ""
	}
}

// falsy mirrors PHP truthiness for decoded JSON values.
func falsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == "" || t == "0"
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case []any:
		return len(t) == 0
	case signer.Fields:
		return len(t) == 0
	default:
		return false
	}
}
