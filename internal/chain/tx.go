package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"daoup/internal/model"
)

// Executor performs signed contract calls for the connected account.
type Executor interface {
	Address() string
	Execute(ctx context.Context, contract string, msg interface{}, funds []model.Coin) (TxResult, error)
	ExecuteBatch(ctx context.Context, msgs []ExecuteMsg) (TxResult, error)
	Instantiate(ctx context.Context, codeID uint64, label string, msg interface{}, funds []model.Coin) (InstantiateResult, error)
	Balance(ctx context.Context, address, denom string) (model.Coin, error)
}

// ExecuteMsg is one contract call inside a transaction.
type ExecuteMsg struct {
	Contract string
	Msg      interface{}
	Funds    []model.Coin
}

// Fee is the flat fee attached to every transaction.
type Fee struct {
	Denom  string
	Amount string
	Gas    uint64
}

// InstantiateResult is a committed instantiate transaction and the new contract address.
type InstantiateResult struct {
	ContractAddress string
	Tx              TxResult
}

// SigningClient builds, signs, and broadcasts transactions for one signer.
type SigningClient struct {
	client  *Client
	signer  Signer
	chainID string
	fee     Fee
	timeout time.Duration
	logger  *zap.Logger
}

// NewSigningClient wires a signer to a query client. A zero timeout means 60s.
func NewSigningClient(client *Client, signer Signer, chainID string, fee Fee, timeout time.Duration, logger *zap.Logger) *SigningClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &SigningClient{
		client:  client,
		signer:  signer,
		chainID: chainID,
		fee:     fee,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *SigningClient) Address() string {
	return s.signer.Address()
}

// Balance returns a native balance through the query client.
func (s *SigningClient) Balance(ctx context.Context, address, denom string) (model.Coin, error) {
	return s.client.Balance(ctx, address, denom)
}

// Execute sends one MsgExecuteContract and waits for it to be committed.
func (s *SigningClient) Execute(ctx context.Context, contract string, msg interface{}, funds []model.Coin) (TxResult, error) {
	return s.ExecuteBatch(ctx, []ExecuteMsg{{Contract: contract, Msg: msg, Funds: funds}})
}

// ExecuteBatch signs every message into a single transaction, executed atomically in order.
func (s *SigningClient) ExecuteBatch(ctx context.Context, msgs []ExecuteMsg) (TxResult, error) {
	if len(msgs) == 0 {
		return TxResult{}, errors.New("execute: no messages")
	}
	encoded := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		msgJSON, err := json.Marshal(m.Msg)
		if err != nil {
			return TxResult{}, fmt.Errorf("encode execute msg: %w", err)
		}
		execute := message(nil).
			str(1, s.signer.Address()).
			str(2, m.Contract).
			bytes(3, msgJSON)
		execute = encodeCoins(execute, 5, m.Funds)
		encoded = append(encoded, encodeAny(typeMsgExecuteContract, execute))

		s.logger.Info("execute contract", zap.String("contract", m.Contract), zap.String("sender", s.signer.Address()))
	}
	return s.signAndBroadcast(ctx, encoded...)
}

// Instantiate creates a contract from codeID and returns its address.
func (s *SigningClient) Instantiate(ctx context.Context, codeID uint64, label string, msg interface{}, funds []model.Coin) (InstantiateResult, error) {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return InstantiateResult{}, fmt.Errorf("encode instantiate msg: %w", err)
	}
	instantiate := message(nil).
		str(1, s.signer.Address()).
		uint(3, codeID).
		str(4, label).
		bytes(5, msgJSON)
	instantiate = encodeCoins(instantiate, 6, funds)

	s.logger.Info("instantiate contract", zap.Uint64("code_id", codeID), zap.String("label", label))
	tx, err := s.signAndBroadcast(ctx, encodeAny(typeMsgInstantiateContract, instantiate))
	if err != nil {
		return InstantiateResult{}, err
	}

	address, ok := FindAttribute(tx.Events, "instantiate", "_contract_address")
	if !ok {
		address, ok = FindAttribute(tx.Events, "wasm", "_contract_address")
	}
	if !ok {
		return InstantiateResult{Tx: tx}, &Error{
			Code:   CodeUnknown,
			TxHash: tx.Hash,
			Err:    errors.New("instantiate: contract address missing from events"),
		}
	}
	return InstantiateResult{ContractAddress: address, Tx: tx}, nil
}

func (s *SigningClient) signAndBroadcast(ctx context.Context, msgs ...[]byte) (TxResult, error) {
	account, err := s.client.Account(ctx, s.signer.Address())
	if err != nil {
		return TxResult{}, err
	}

	body := message(nil)
	for _, msg := range msgs {
		body = body.embed(1, msg)
	}

	pubKey := encodeAny(typeSecp256k1PubKey, message(nil).bytes(1, s.signer.PubKey()))
	modeInfo := message(nil).embed(1, message(nil).uint(1, signModeDirect))
	signerInfo := message(nil).
		embed(1, pubKey).
		embed(2, modeInfo).
		uint(3, account.Sequence)

	fee := message(nil)
	if s.fee.Amount != "" && s.fee.Amount != "0" {
		fee = encodeCoins(fee, 1, []model.Coin{{Denom: s.fee.Denom, Amount: s.fee.Amount}})
	}
	fee = fee.uint(2, s.fee.Gas)
	authInfo := message(nil).embed(1, signerInfo).embed(2, fee)

	signDoc := message(nil).
		bytes(1, body).
		bytes(2, authInfo).
		str(3, s.chainID).
		uint(4, account.AccountNumber)

	sig, err := s.signer.Sign(signDoc)
	if err != nil {
		return TxResult{}, Wrap(fmt.Errorf("sign tx: %w", err))
	}
	txRaw := message(nil).bytes(1, body).bytes(2, authInfo).bytes(3, sig)

	hash, err := s.client.BroadcastSync(ctx, txRaw)
	if err != nil {
		return TxResult{}, err
	}
	if hash == "" {
		sum := sha256.Sum256(txRaw)
		hash = strings.ToUpper(hex.EncodeToString(sum[:]))
	}
	s.logger.Info("tx broadcast", zap.String("tx_hash", hash))

	tx, err := s.waitForTx(ctx, hash)
	if err != nil {
		return TxResult{}, err
	}
	if tx.Code != 0 {
		abciErr := &ABCIError{Code: tx.Code, Log: tx.Log}
		return tx, &Error{Code: Classify(abciErr), TxHash: hash, Err: abciErr}
	}
	return tx, nil
}

// waitForTx polls for inclusion. Broadcasts are never retried, only lookups.
func (s *SigningClient) waitForTx(ctx context.Context, hash string) (TxResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 3 * time.Second

	operation := func() (TxResult, error) {
		tx, err := s.client.Tx(ctx, hash)
		if err != nil {
			switch Classify(err) {
			case CodeNotFound, CodeNetwork:
				return TxResult{}, err
			default:
				return TxResult{}, backoff.Permanent(err)
			}
		}
		return tx, nil
	}

	tx, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(s.timeout),
	)
	if err == nil {
		return tx, nil
	}
	if code := Classify(err); code == CodeNotFound || code == CodeNetwork || errors.Is(err, context.DeadlineExceeded) {
		return TxResult{}, &Error{Code: CodeTxnSentTimeout, TxHash: hash, Err: &TimeoutError{TxHash: hash}}
	}
	return TxResult{}, err
}
