package signer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// PHPSerialize renders v in the format of PHP's serialize(). Input is the
// shape produced by DecodeOrdered: Fields, []any, json.Number, string,
// bool and nil. Go numeric kinds are accepted as well.
func PHPSerialize(v any) ([]byte, error) {
	var b strings.Builder
	if err := writePHP(&b, v); err != nil {
		return nil, fmt.Errorf("PHPSerialize: %w", err)
	}
	return []byte(b.String()), nil
}

func writePHP(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("N;")
	case bool:
		if t {
			b.WriteString("b:1;")
		} else {
			b.WriteString("b:0;")
		}
	case string:
		fmt.Fprintf(b, "s:%d:\"%s\";", len(t), t)
	case json.Number:
		return writeNumber(b, t)
	case int:
		fmt.Fprintf(b, "i:%d;", t)
	case int64:
		fmt.Fprintf(b, "i:%d;", t)
	case float64:
		b.WriteString("d:" + FormatPHPFloat(t) + ";")
	case Fields:
		fmt.Fprintf(b, "a:%d:{", len(t))
		for _, fd := range t {
			writeKey(b, fd.Key)
			if err := writePHP(b, fd.Value); err != nil {
				return err
			}
		}
		b.WriteString("}")
	case []any:
		fmt.Fprintf(b, "a:%d:{", len(t))
		for i, item := range t {
			fmt.Fprintf(b, "i:%d;", i)
			if err := writePHP(b, item); err != nil {
				return err
			}
		}
		b.WriteString("}")
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
	return nil
}

// json_decode yields ints for integral literals that fit and floats otherwise.
func writeNumber(b *strings.Builder, n json.Number) error {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			fmt.Fprintf(b, "i:%d;", i)
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", s, err)
	}
	b.WriteString("d:" + FormatPHPFloat(f) + ";")
	return nil
}

// PHP arrays store canonical decimal-integer keys as ints.
func writeKey(b *strings.Builder, key string) {
	if i, ok := intKey(key); ok {
		fmt.Fprintf(b, "i:%d;", i)
		return
	}
	fmt.Fprintf(b, "s:%d:\"%s\";", len(key), key)
}

func intKey(key string) (int64, bool) {
	if key == "" || key == "-0" {
		return 0, false
	}
	digits := strings.TrimPrefix(key, "-")
	if digits == "" || (len(digits) > 1 && digits[0] == '0') {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	i, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// FormatPHPFloat formats f the way PHP does with serialize_precision=-1:
// shortest round-trip digits, exponent form below 1e-4 and from 1e17.
func FormatPHPFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NAN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case f == 0:
		if math.Signbit(f) {
			return "-0"
		}
		return "0"
	}

	e := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(e, "e")
	exp, _ := strconv.Atoi(expStr)
	if exp >= -4 && exp < 17 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	sign := "+"
	if exp < 0 {
		sign = "-"
		exp = -exp
	}
	return mant + "E" + sign + strconv.Itoa(exp)
}

// KSort orders top-level members the way PHP's ksort does in PHP 8:
// numeric keys compare as numbers, anything else compares as strings.
func KSort(f Fields) Fields {
	out := make(Fields, len(f))
	copy(out, f)
	sort.SliceStable(out, func(i, j int) bool {
		return phpKeyLess(out[i].Key, out[j].Key)
	})
	return out
}

func phpKeyLess(a, b string) bool {
	ai, aok := intKey(a)
	bi, bok := intKey(b)
	if aok && bok {
		return ai < bi
	}
	return a < b
}
