package chain

import (
	"encoding/base64"
	"strings"
)

// Event is an ABCI event emitted by a transaction.
type Event struct {
	Type       string
	Attributes []Attribute
}

// Attribute is a decoded event key/value pair.
type Attribute struct {
	Key   string
	Value string
}

type rawEvent struct {
	Type       string         `json:"type"`
	Attributes []rawAttribute `json:"attributes"`
}

type rawAttribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Older nodes base64-encode attribute keys and values; newer ones send plain strings.
func (e rawEvent) event() Event {
	out := Event{Type: e.Type, Attributes: make([]Attribute, 0, len(e.Attributes))}
	for _, attr := range e.Attributes {
		key, value := attr.Key, attr.Value
		if decodedKey, ok := decodeAttributeKey(key); ok {
			key = decodedKey
			if decodedValue, err := base64.StdEncoding.DecodeString(value); err == nil {
				value = string(decodedValue)
			}
		}
		out.Attributes = append(out.Attributes, Attribute{Key: key, Value: value})
	}
	return out
}

func decodeAttributeKey(key string) (string, bool) {
	if key == "" || len(key)%4 != 0 {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) == 0 {
		return "", false
	}
	for _, ch := range decoded {
		isLower := ch >= 'a' && ch <= 'z'
		isUpper := ch >= 'A' && ch <= 'Z'
		isDigit := ch >= '0' && ch <= '9'
		if !isLower && !isUpper && !isDigit && ch != '_' && ch != '.' && ch != '-' {
			return "", false
		}
	}
	return string(decoded), true
}

// Attribute returns the first value for key.
func (e Event) Attribute(key string) (string, bool) {
	for _, attr := range e.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// FindAttribute returns the first value of key on an event of eventType.
func FindAttribute(events []Event, eventType, key string) (string, bool) {
	for _, ev := range events {
		if ev.Type != eventType {
			continue
		}
		if value, ok := ev.Attribute(key); ok {
			return value, true
		}
	}
	return "", false
}

// WasmActions splits wasm events into one attribute set per contract invocation,
// keyed on the _contract_address attribute that starts each group.
func WasmActions(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type != "wasm" && !strings.HasPrefix(ev.Type, "wasm-") {
			continue
		}
		current := -1
		for _, attr := range ev.Attributes {
			if attr.Key == "_contract_address" || current < 0 {
				out = append(out, Event{Type: ev.Type})
				current = len(out) - 1
			}
			out[current].Attributes = append(out[current].Attributes, attr)
		}
	}
	return out
}
