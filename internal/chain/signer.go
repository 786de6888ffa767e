package chain

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// Signer signs transaction sign bytes for one account.
type Signer interface {
	Address() string
	PubKey() []byte
	Sign(signBytes []byte) ([]byte, error)
}

// LocalSigner holds a secp256k1 private key in memory.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	pubKey  []byte
	address string
}

// NewLocalSigner parses a hex private key, with or without 0x prefix.
func NewLocalSigner(hexKey, prefix string) (*LocalSigner, error) {
	hexKey = strings.TrimSpace(hexKey)
	if !strings.HasPrefix(hexKey, "0x") {
		hexKey = "0x" + hexKey
	}
	raw, err := hexutil.Decode(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	pubKey := crypto.CompressPubkey(&key.PublicKey)
	address, err := PubKeyAddress(prefix, pubKey)
	if err != nil {
		return nil, err
	}
	return &LocalSigner{key: key, pubKey: pubKey, address: address}, nil
}

func (s *LocalSigner) Address() string {
	return s.address
}

func (s *LocalSigner) PubKey() []byte {
	return s.pubKey
}

// Sign returns the 64-byte r||s signature of sha256(signBytes).
func (s *LocalSigner) Sign(signBytes []byte) ([]byte, error) {
	hash := sha256.Sum256(signBytes)
	sig, err := crypto.Sign(hash[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig[:64], nil
}

// PubKeyAddress derives the bech32 account address of a compressed secp256k1 key.
func PubKeyAddress(prefix string, pubKey []byte) (string, error) {
	sha := sha256.Sum256(pubKey)
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	return EncodeAddress(prefix, hasher.Sum(nil))
}

// EncodeAddress bech32-encodes raw address bytes.
func EncodeAddress(prefix string, raw []byte) (string, error) {
	converted, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert address bits: %w", err)
	}
	address, err := bech32.Encode(prefix, converted)
	if err != nil {
		return "", fmt.Errorf("encode address: %w", err)
	}
	return address, nil
}

// ValidateAddress checks the bech32 checksum and, when prefix is set, the human-readable part.
func ValidateAddress(address, prefix string) error {
	hrp, _, err := bech32.Decode(address)
	if err != nil {
		return &Error{Code: CodeInvalidAddress, Err: fmt.Errorf("decoding bech32 failed: %w", err)}
	}
	if prefix != "" && hrp != prefix {
		return &Error{Code: CodeInvalidAddress, Err: fmt.Errorf("address %s has prefix %q, want %q", address, hrp, prefix)}
	}
	return nil
}
