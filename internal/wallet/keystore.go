package wallet

import (
	"context"
	"errors"

	"daoup/internal/chain"
)

// Keystore is the boundary to an external key holder.
type Keystore interface {
	// Enable asks the keystore to expose accounts for chainID.
	Enable(ctx context.Context, chainID string) error
	// OfflineSigner returns a signer for the active account.
	OfflineSigner(ctx context.Context, chainID string) (chain.Signer, error)
	// SuggestToken registers a cw20 token with the keystore.
	SuggestToken(ctx context.Context, chainID, token string) error
	// Changes fires whenever the active account may have changed.
	Changes() <-chan struct{}
}

var (
	// ErrNotInstalled means no keystore is available.
	ErrNotInstalled = errors.New("wallet not installed")
	// ErrRejected means the keystore refused the request.
	ErrRejected = &chain.Error{Code: chain.CodeRequestRejected, Err: errors.New("Request rejected")}
)
