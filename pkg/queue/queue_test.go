package queue

import (
	"encoding/json"
	"testing"
)

type note struct {
	Symbol string `json:"symbol"`
	Limit  int    `json:"limit"`
}

func TestParsePayloadForms(t *testing.T) {
	want := note{Symbol: "BTC", Limit: 5}

	got, err := ParsePayload[note](want)
	if err != nil || *got != want {
		t.Fatalf("value form: %+v, %v", got, err)
	}

	ptr, err := ParsePayload[note](&want)
	if err != nil || ptr != &want {
		t.Fatalf("pointer form must pass through")
	}

	got, err = ParsePayload[note](json.RawMessage(`{"symbol":"BTC","limit":5}`))
	if err != nil || *got != want {
		t.Fatalf("raw json form: %+v, %v", got, err)
	}

	got, err = ParsePayload[note](map[string]interface{}{"symbol": "BTC", "limit": 5})
	if err != nil || *got != want {
		t.Fatalf("map form: %+v, %v", got, err)
	}

	if _, err := ParsePayload[note](42); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestParsePayloadSliceForm(t *testing.T) {
	got, err := ParsePayload[[]string]([]interface{}{"BTC", "ETH"})
	if err != nil {
		t.Fatalf("slice form: %v", err)
	}
	if len(*got) != 2 || (*got)[0] != "BTC" {
		t.Fatalf("got %v", *got)
	}
}

func TestParsePayloadBadJSON(t *testing.T) {
	if _, err := ParsePayload[note](json.RawMessage(`{"symbol":`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
