package campaign

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"daoup/internal/model"
)

// ErrUnrecognizedStatus means the status object was not exactly one known key.
var ErrUnrecognizedStatus = errors.New("unrecognized campaign status")

// StatusInfo is the decoded tagged union carried by the status field.
type StatusInfo struct {
	Status                 model.Status
	TokenPrice             string
	InitialGovTokenBalance string
}

type statusFields struct {
	TokenPrice             *string `json:"token_price"`
	InitialGovTokenBalance *string `json:"initial_gov_token_balance"`
}

// DecodeStatus validates that raw is an object with exactly one known status key
// and decodes its payload.
func DecodeStatus(raw json.RawMessage) (StatusInfo, error) {
	var variants map[string]json.RawMessage
	if err := json.Unmarshal(raw, &variants); err != nil {
		return StatusInfo{}, fmt.Errorf("%w: %v", ErrUnrecognizedStatus, err)
	}
	if len(variants) != 1 {
		return StatusInfo{}, fmt.Errorf("%w: %d keys", ErrUnrecognizedStatus, len(variants))
	}

	var info StatusInfo
	for key, payload := range variants {
		switch status := model.Status(key); status {
		case model.StatusPending, model.StatusOpen, model.StatusCancelled, model.StatusFunded:
			info.Status = status
		default:
			return StatusInfo{}, fmt.Errorf("%w: %q", ErrUnrecognizedStatus, key)
		}

		payload = bytes.TrimSpace(payload)
		if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
			continue
		}
		var fields statusFields
		if err := json.Unmarshal(payload, &fields); err != nil {
			return StatusInfo{}, fmt.Errorf("decode %s status: %w", key, err)
		}
		if fields.TokenPrice != nil {
			info.TokenPrice = *fields.TokenPrice
		}
		if fields.InitialGovTokenBalance != nil {
			info.InitialGovTokenBalance = *fields.InitialGovTokenBalance
		}
	}
	return info, nil
}
