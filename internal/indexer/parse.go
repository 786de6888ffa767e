package indexer

import (
	"fmt"
	"strings"

	"daoup/internal/chain"
)

// ParseAddresses validates bech32 contract addresses against prefix.
func ParseAddresses(inputs []string, prefix string) ([]string, error) {
	addresses := make([]string, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if err := chain.ValidateAddress(input, prefix); err != nil {
			return nil, fmt.Errorf("invalid address %s: %w", input, err)
		}
		addresses = append(addresses, input)
	}
	return addresses, nil
}
