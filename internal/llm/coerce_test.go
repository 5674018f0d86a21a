package llm

import (
	"testing"
)

func TestCoerceJSONPlain(t *testing.T) {
	data, err := CoerceJSON(`{"title":"Widget","price":9.99}`)
	if err != nil {
		t.Fatalf("CoerceJSON() error = %v", err)
	}
	if data["title"] != "Widget" {
		t.Errorf("title = %v", data["title"])
	}
}

func TestCoerceJSONStripsFences(t *testing.T) {
	raw := "```json\n{\"title\":\"Widget\"}\n```"
	data, err := CoerceJSON(raw)
	if err != nil {
		t.Fatalf("CoerceJSON() error = %v", err)
	}
	if data["title"] != "Widget" {
		t.Errorf("title = %v", data["title"])
	}
}

func TestCoerceJSONFirstObjectFallback(t *testing.T) {
	raw := `Here is the data you asked for: {"title":"Widget","tags":{"a":1}} hope that helps!`
	data, err := CoerceJSON(raw)
	if err != nil {
		t.Fatalf("CoerceJSON() error = %v", err)
	}
	if data["title"] != "Widget" {
		t.Errorf("title = %v", data["title"])
	}
}

func TestCoerceJSONIgnoresBracesInStrings(t *testing.T) {
	raw := `prefix {"note":"has a } inside","n":1} suffix`
	data, err := CoerceJSON(raw)
	if err != nil {
		t.Fatalf("CoerceJSON() error = %v", err)
	}
	if data["note"] != "has a } inside" {
		t.Errorf("note = %v", data["note"])
	}
}

func TestCoerceJSONFailureYieldsEmptyObject(t *testing.T) {
	data, err := CoerceJSON("I could not find any data on that page.")
	if err == nil {
		t.Error("expected error for non-JSON reply")
	}
	if data == nil || len(data) != 0 {
		t.Errorf("data = %v, want empty object", data)
	}
}
