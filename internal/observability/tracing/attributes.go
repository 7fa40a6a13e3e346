package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Span attributes that may carry customer data are dropped. Wallet
// addresses, names and emails never leave the process through traces.
var blockedAttributeFragments = []string{
	"wallet",
	"email",
	"name",
	"authorization",
	"api_key",
	"password",
}

// SafeAttributes drops attributes whose key looks sensitive.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isBlocked(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError keeps the error class but drops the message body, which may
// echo provider responses.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx > 0 {
		msg = msg[:idx]
	}
	return errors.New(strings.TrimSpace(msg))
}

func isBlocked(key string) bool {
	key = strings.ToLower(key)
	for _, fragment := range blockedAttributeFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
