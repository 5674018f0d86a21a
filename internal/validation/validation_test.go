package validation

import (
	"strings"
	"testing"

	"github.com/7and1/robotscraping/internal/models"
)

func TestCheckURLRefusesInternalHosts(t *testing.T) {
	refused := []string{
		"http://localhost/admin",
		"http://127.0.0.1:8080/",
		"http://10.0.0.1/",
		"http://192.168.1.1/router",
		"http://172.16.0.1/",
		"http://169.254.169.254/latest/meta-data/",
		"http://0.0.0.0/",
		"http://metadata.google.internal/computeMetadata/v1/",
		"http://[::1]/",
		"http://[fe80::1]/",
		"http://[fc00::1]/",
		"http://[fd00::1]/",
	}
	for _, u := range refused {
		if err := CheckURL(u); err == nil {
			t.Errorf("CheckURL(%q) = nil, want refusal", u)
		}
	}
}

func TestCheckURLRefusesBadSchemes(t *testing.T) {
	for _, u := range []string{"ftp://example.com/file", "file:///etc/passwd", "data:text/plain,hi"} {
		if err := CheckURL(u); err == nil {
			t.Errorf("CheckURL(%q) = nil, want refusal", u)
		}
	}
}

func TestCheckURLAcceptsPublicHosts(t *testing.T) {
	for _, u := range []string{"https://8.8.8.8", "https://example.com/path?q=1#frag", "http://example.org"} {
		if err := CheckURL(u); err != nil {
			t.Errorf("CheckURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestCheckWebhookURLRequiresHTTPS(t *testing.T) {
	if err := CheckWebhookURL("http://hooks.example.com/cb"); err == nil {
		t.Error("plain http webhook should be refused")
	}
	if err := CheckWebhookURL("https://hooks.example.com/cb"); err != nil {
		t.Errorf("https webhook refused: %v", err)
	}
	if err := CheckWebhookURL("https://192.168.1.1/cb"); err == nil {
		t.Error("internal webhook host should be refused")
	}
}

func TestValidateExtract(t *testing.T) {
	valid := &models.ExtractParams{
		URL:    "https://example.com/products",
		Fields: []string{"title", "price"},
	}
	if err := ValidateExtract(valid); err != nil {
		t.Fatalf("ValidateExtract() = %v, want nil", err)
	}

	cases := []struct {
		name   string
		params models.ExtractParams
	}{
		{"missing url", models.ExtractParams{Fields: []string{"title"}}},
		{"no fields or schema", models.ExtractParams{URL: "https://example.com"}},
		{"explicit empty fields", models.ExtractParams{
			URL: "https://example.com", Fields: []string{},
			Schema: map[string]any{"title": "string"},
		}},
		{"empty field", models.ExtractParams{URL: "https://example.com", Fields: []string{"title", " "}}},
		{"too many fields", models.ExtractParams{URL: "https://example.com", Fields: make51Fields()}},
		{"long instructions", models.ExtractParams{
			URL: "https://example.com", Fields: []string{"a"},
			Instructions: strings.Repeat("x", 2001),
		}},
		{"bad waitUntil", models.ExtractParams{
			URL: "https://example.com", Fields: []string{"a"},
			Options: &models.ExtractOptions{WaitUntil: "load"},
		}},
		{"timeout too low", models.ExtractParams{
			URL: "https://example.com", Fields: []string{"a"},
			Options: &models.ExtractOptions{TimeoutMs: 500},
		}},
		{"timeout too high", models.ExtractParams{
			URL: "https://example.com", Fields: []string{"a"},
			Options: &models.ExtractOptions{TimeoutMs: 90000},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateExtract(&tc.params); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestValidateExtractSchemaOnly(t *testing.T) {
	p := &models.ExtractParams{
		URL:    "https://example.com",
		Schema: map[string]any{"title": "string"},
	}
	if err := ValidateExtract(p); err != nil {
		t.Errorf("schema-only request refused: %v", err)
	}
}

func make51Fields() []string {
	fields := make([]string, 51)
	for i := range fields {
		fields[i] = "f"
	}
	return fields
}
