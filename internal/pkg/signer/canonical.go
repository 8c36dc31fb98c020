package signer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"
)

// Canonicalize rewrites a JSON document into the byte form that is signed:
// object keys sorted by code point, no insignificant whitespace, numbers in
// plain decimal notation and no HTML escaping. Semantically equal documents
// yield identical bytes.
func Canonicalize(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON payload: trailing data")
	}

	var b bytes.Buffer
	if err := writeCanonical(&b, v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// CanonicalizeValue marshals v and canonicalizes the result.
func CanonicalizeValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(raw)
}

func writeCanonical(b *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case json.Number:
		n, err := canonicalNumber(t.String())
		if err != nil {
			return err
		}
		b.WriteString(n)
	case string:
		return writeString(b, t)
	case []any:
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeString(b, k); err != nil {
				return err
			}
			b.WriteByte(':')
			if err := writeCanonical(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("unsupported JSON value %T", v)
	}
	return nil
}

// maxNumberGrowth bounds how many bytes longer than its literal a number may
// get once its exponent is written out.
const maxNumberGrowth = 32

// canonicalNumber renders lit in plain decimal notation. Literals whose
// exponent would expand them past maxNumberGrowth are rejected.
func canonicalNumber(lit string) (string, error) {
	d, err := decimal.NewFromString(lit)
	if err != nil {
		return "", fmt.Errorf("invalid number %q: %w", lit, err)
	}

	digits := int64(len(d.Coefficient().String()))
	exp := int64(d.Exponent())
	width := digits
	switch {
	case exp > 0:
		width += exp
	case -exp >= digits:
		width = 2 - exp
	}
	if width > int64(len(lit))+maxNumberGrowth {
		return "", fmt.Errorf("number %q is too large to canonicalize", lit)
	}
	return d.String(), nil
}

func writeString(b *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	b.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
