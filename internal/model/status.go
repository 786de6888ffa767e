package model

import "strings"

// Status is the lifecycle state of a campaign contract, using the wire key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOpen      Status = "open"
	StatusCancelled Status = "cancelled"
	StatusFunded    Status = "funded"
)

// KnownStatuses lists every status the contract may report.
var KnownStatuses = []Status{StatusPending, StatusOpen, StatusCancelled, StatusFunded}

// ParseStatus matches a status key case-insensitively.
func ParseStatus(input string) (Status, bool) {
	input = strings.TrimSpace(input)
	for _, status := range KnownStatuses {
		if strings.EqualFold(string(status), input) {
			return status, true
		}
	}
	return "", false
}

// Title returns the display form, e.g. "Open".
func (s Status) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// HasTokenPrice reports whether the status carries a funding token price.
func (s Status) HasTokenPrice() bool {
	return s == StatusOpen || s == StatusFunded
}
