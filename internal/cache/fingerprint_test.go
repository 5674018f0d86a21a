package cache

import (
	"testing"

	"github.com/7and1/robotscraping/internal/models"
)

func TestFingerprintFieldOrderIrrelevant(t *testing.T) {
	a := &models.ExtractParams{
		URL:    "https://example.com/products",
		Fields: []string{"price", "title", "sku"},
	}
	b := &models.ExtractParams{
		URL:    "https://example.com/products",
		Fields: []string{"title", "sku", "price"},
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("field order should not change the fingerprint")
	}
}

func TestFingerprintDeduplicatesFields(t *testing.T) {
	a := &models.ExtractParams{URL: "https://example.com", Fields: []string{"title", "title", "price"}}
	b := &models.ExtractParams{URL: "https://example.com", Fields: []string{"price", "title"}}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("duplicate fields should not change the fingerprint")
	}
}

func TestFingerprintTrimsInstructions(t *testing.T) {
	a := &models.ExtractParams{URL: "https://example.com", Fields: []string{"a"}, Instructions: "  get the price  "}
	b := &models.ExtractParams{URL: "https://example.com", Fields: []string{"a"}, Instructions: "get the price"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("surrounding whitespace in instructions should not change the fingerprint")
	}
}

func TestFingerprintSchemaKeyOrderIrrelevant(t *testing.T) {
	a := &models.ExtractParams{
		URL: "https://example.com",
		Schema: map[string]any{
			"title": "string",
			"specs": map[string]any{"weight": "number", "color": "string"},
		},
	}
	b := &models.ExtractParams{
		URL: "https://example.com",
		Schema: map[string]any{
			"specs": map[string]any{"color": "string", "weight": "number"},
			"title": "string",
		},
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("schema key order should not change the fingerprint")
	}
}

func TestFingerprintDistinguishesRequests(t *testing.T) {
	base := &models.ExtractParams{URL: "https://example.com", Fields: []string{"title"}}
	cases := []*models.ExtractParams{
		{URL: "https://example.com/other", Fields: []string{"title"}},
		{URL: "https://example.com", Fields: []string{"price"}},
		{URL: "https://example.com", Fields: []string{"title"}, Instructions: "in euros"},
		{URL: "https://example.com", Schema: map[string]any{"title": "string"}},
	}
	for i, c := range cases {
		if Fingerprint(base) == Fingerprint(c) {
			t.Errorf("case %d should produce a different fingerprint", i)
		}
	}
}

func TestFingerprintEmptyNormalisation(t *testing.T) {
	a := &models.ExtractParams{URL: "https://example.com", Fields: []string{"a"}, Instructions: "   "}
	b := &models.ExtractParams{URL: "https://example.com", Fields: []string{"a"}}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("blank instructions should normalise to absent")
	}
}
