// Package idempotency derives deterministic fingerprints for logical
// generation requests so a retried identical request maps onto the same job.
package idempotency

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Version is prefixed onto every key so the hashing scheme can evolve
// without invalidating stored keys.
const Version = "v1"

// Request identifies a logical generation request. Payload is the validated
// payload document, never raw client JSON.
type Request struct {
	BrandID string
	OrderID string
	UserID  string
	JobType string
	Payload map[string]any
}

// Key returns the versioned fingerprint "v1:<hex>". It is pure and
// deterministic: semantically identical requests always produce the same key
// regardless of map iteration order or absent-vs-null field placement.
func Key(req Request) string {
	doc := map[string]any{
		"brand_id": emptyToNil(req.BrandID),
		"order_id": emptyToNil(req.OrderID),
		"user_id":  emptyToNil(req.UserID),
		"job_type": emptyToNil(req.JobType),
		"payload":  req.Payload,
	}
	var b strings.Builder
	writeCanonical(&b, doc)
	return fmt.Sprintf("%s:%016x", Version, xxhash.Sum64String(b.String()))
}

// Canonical serializes a value into the canonical form used for hashing.
// Exposed for tests and debugging.
func Canonical(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			// A present-null entry canonicalizes like the key being absent.
			// Nulls keep their meaning inside arrays, where they are
			// positional.
			if val[k] == nil {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(b, k)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case string:
		writeString(b, val)
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case float64:
		writeFloat(b, val)
	case float32:
		writeFloat(b, float64(val))
	case int:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(val, 10))
	case json.Number:
		b.WriteString(val.String())
	default:
		// Structured values fall back to a JSON round trip so nested
		// structs canonicalize the same way as decoded maps.
		raw, err := json.Marshal(val)
		if err != nil {
			writeString(b, fmt.Sprintf("%v", val))
			return
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var decoded any
		if err := dec.Decode(&decoded); err != nil {
			writeString(b, string(raw))
			return
		}
		writeCanonical(b, decoded)
	}
}

// Non-finite numbers cannot survive JSON, so they map to sentinel strings.
func writeFloat(b *strings.Builder, f float64) {
	switch {
	case math.IsNaN(f):
		writeString(b, "NaN")
	case math.IsInf(f, 1):
		writeString(b, "Infinity")
	case math.IsInf(f, -1):
		writeString(b, "-Infinity")
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		b.WriteString(strconv.FormatInt(int64(f), 10))
	default:
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
}

func writeString(b *strings.Builder, s string) {
	quoted, err := json.Marshal(s)
	if err != nil {
		b.WriteString(strconv.Quote(s))
		return
	}
	b.Write(quoted)
}

func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
