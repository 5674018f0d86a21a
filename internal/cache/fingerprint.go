// Package cache provides the content-addressed result cache.
package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/7and1/robotscraping/internal/crypto"
	"github.com/7and1/robotscraping/internal/models"
)

// Fingerprint derives the cache key for an extraction request. Equivalent
// requests must map to the same key, so the input is canonicalised first:
// fields are deduplicated and sorted, instructions trimmed, the schema
// serialised with keys in lexicographic order at every depth, and empty
// values normalised to null. The caller's identity never enters the
// fingerprint; cache entries are shared across keys.
func Fingerprint(p *models.ExtractParams) string {
	canonical := map[string]any{
		"url":          p.URL,
		"fields":       canonicalFields(p.Fields),
		"schema":       nilIfEmpty(p.Schema),
		"instructions": nilIfBlank(p.Instructions),
	}
	return crypto.SHA256Hex([]byte(stableStringify(canonical)))
}

func canonicalFields(fields []string) any {
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func nilIfEmpty(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}

func nilIfBlank(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.TrimSpace(s)
}

// stableStringify renders a value as JSON with object keys sorted at every
// level. encoding/json already sorts map keys, but values decoded from
// request bodies may contain nested maps and slices of any, so the value is
// walked explicitly to keep the output deterministic.
func stableStringify(v any) string {
	var b strings.Builder
	writeStable(&b, v)
	return b.String()
}

func writeStable(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeStable(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeStable(b, item)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(item))
		}
		b.WriteByte(']')
	case string:
		b.WriteString(strconv.Quote(val))
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case int:
		b.WriteString(strconv.Itoa(val))
	default:
		// Uncommon types (json.Number and friends) fall back to the encoder.
		enc, err := json.Marshal(val)
		if err != nil {
			b.WriteString(fmt.Sprintf("%q", fmt.Sprint(val)))
			return
		}
		b.Write(enc)
	}
}
