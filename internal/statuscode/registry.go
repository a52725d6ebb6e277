// Package statuscode maps provider status codes to fixed messages and a
// success/retryable/fatal category. It is the single source of truth for
// outcome classification; nothing else in the codebase compares against
// the success code literal.
package statuscode

import (
	"fmt"
	"strconv"
	"strings"
)

// Category buckets a provider status code for retry and ledger decisions.
type Category string

const (
	CategorySuccess   Category = "success"
	CategoryRetryable Category = "retryable"
	CategoryFatal     Category = "fatal"
)

// CodeSuccess is the only code the provider uses for an approved operation.
const CodeSuccess = "00"

// Status is the classification result for one provider code.
type Status struct {
	Code     string
	Message  string
	Category Category
}

// Success reports whether the status is the approved outcome.
func (s Status) Success() bool { return s.Category == CategorySuccess }

// Retryable reports whether the status belongs to the transient family.
func (s Status) Retryable() bool { return s.Category == CategoryRetryable }

var messages = map[string]string{
	"00": "Success",
	"01": "Invalid hash",
	"02": "Invalid transaction id",
	"03": "Invalid amount",
	"04": "Duplicate transaction id",
	"05": "Transaction not found",
	"06": "Requested domain is not in the whitelist",
	"07": "Invalid merchant id",
	"08": "Transaction is cancelled",
	"09": "Transaction is expired",
	"10": "Invalid currency",
	"11": "Payment option is not enabled for this merchant",
	"12": "Invalid payment option",
	"13": "Purchase amount exceeds the configured limit",
	"14": "Invalid return url",
	"15": "Gateway temporarily unavailable",
	"16": "Upstream bank timeout",
	"17": "Provider maintenance window",
	"20": "Invalid image format or size",
	"21": "Payment link limit reached",
	"96": "System busy, try again later",
	"97": "Pre-auth is not enabled for this merchant",
	"98": "Invalid request parameter",
	"99": "Internal server error",
}

// retryable is the fixed allow-list of transient codes. Every other
// non-success code is fatal.
var retryable = map[string]struct{}{
	"15": {},
	"16": {},
	"17": {},
	"96": {},
}

// Classify looks up a provider code and returns its message and category.
// Numeric inputs are zero-padded to two digits, so 0 and "0" both resolve
// to "00". Unknown codes never panic; they come back fatal with the raw
// code embedded in the message.
func Classify(code string) Status {
	normalized := Normalize(code)

	msg, known := messages[normalized]
	if !known {
		return Status{
			Code:     normalized,
			Message:  fmt.Sprintf("Unrecognized gateway status code %q", code),
			Category: CategoryFatal,
		}
	}

	switch {
	case normalized == CodeSuccess:
		return Status{Code: normalized, Message: msg, Category: CategorySuccess}
	default:
		cat := CategoryFatal
		if _, ok := retryable[normalized]; ok {
			cat = CategoryRetryable
		}
		return Status{Code: normalized, Message: msg, Category: cat}
	}
}

// ClassifyInt classifies a numeric code as delivered by JSON payloads that
// encode the status as a number.
func ClassifyInt(code int) Status {
	return Classify(strconv.Itoa(code))
}

// Normalize zero-pads single-digit numeric codes and trims whitespace.
// Non-numeric codes pass through trimmed.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	if n, err := strconv.Atoi(code); err == nil && n >= 0 && n < 10 {
		return fmt.Sprintf("0%d", n)
	}
	return code
}

// Known returns every code in the registry. Exposed for exhaustive
// classification tests.
func Known() []string {
	codes := make([]string, 0, len(messages))
	for code := range messages {
		codes = append(codes, code)
	}
	return codes
}

// RetryableCodes returns the transient allow-list.
func RetryableCodes() []string {
	codes := make([]string, 0, len(retryable))
	for code := range retryable {
		codes = append(codes, code)
	}
	return codes
}
