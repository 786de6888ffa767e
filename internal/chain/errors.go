package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

// Code classifies a chain, wallet, or transport failure.
type Code int

const (
	CodeUnknown Code = iota
	CodeRequestRejected
	CodeInvalidAddress
	CodeInsufficientFees
	CodeInsufficientFunds
	CodeGetClientFailed
	CodeNetwork
	CodeUnauthorized
	CodeInsufficientForProposalDeposit
	CodePendingTransaction
	CodeCampaignNotOpen
	CodeNotFound
	CodeTextEncoding
	CodeAlreadyFunded
	CodeTxnSentTimeout
	CodeInvalidJSONResponse
	CodeNodeFailure
	CodeBlockHeightTooLow
	CodeTxPageOutOfRange
)

var codeNames = map[Code]string{
	CodeUnknown:                        "unknown",
	CodeRequestRejected:                "request_rejected",
	CodeInvalidAddress:                 "invalid_address",
	CodeInsufficientFees:               "insufficient_fees",
	CodeInsufficientFunds:              "insufficient_funds",
	CodeGetClientFailed:                "get_client_failed",
	CodeNetwork:                        "network",
	CodeUnauthorized:                   "unauthorized",
	CodeInsufficientForProposalDeposit: "insufficient_for_proposal_deposit",
	CodePendingTransaction:             "pending_transaction",
	CodeCampaignNotOpen:                "campaign_not_open",
	CodeNotFound:                       "not_found",
	CodeTextEncoding:                   "text_encoding",
	CodeAlreadyFunded:                  "already_funded",
	CodeTxnSentTimeout:                 "txn_sent_timeout",
	CodeInvalidJSONResponse:            "invalid_json_response",
	CodeNodeFailure:                    "node_failure",
	CodeBlockHeightTooLow:              "block_height_too_low",
	CodeTxPageOutOfRange:               "tx_page_out_of_range",
}

var codeMessages = map[Code]string{
	CodeRequestRejected:                "Wallet rejected transaction.",
	CodeInvalidAddress:                 "Invalid address.",
	CodeInsufficientFees:               "Insufficient fees. Reconnect your wallet, ensure you're on the right chain, and try again.",
	CodeInsufficientFunds:              "Insufficient funds.",
	CodeGetClientFailed:                "Failed to get client. Try refreshing the page or reconnecting your wallet.",
	CodeNetwork:                        "Network error. Ensure you are connected to the internet, refresh the page, or try again later. If your network is working, the blockchain nodes may be having problems.",
	CodeUnauthorized:                   "Unauthorized.",
	CodeInsufficientForProposalDeposit: "Insufficient unstaked governance tokens. Ensure you have enough unstaked governance tokens on DAO DAO to pay for the proposal deposit.",
	CodePendingTransaction:             "You have another pending transaction. Please try again in a minute or so.",
	CodeCampaignNotOpen:                "This campaign is not open, so it cannot accept or return funds.",
	CodeNotFound:                       "Not found.",
	CodeTextEncoding:                   "Text encoding/decoding error. Invalid character present in text.",
	CodeAlreadyFunded:                  "This campaign is already funded and cannot receive more funding. You may need to refresh the page if the information is out of sync.",
	CodeTxnSentTimeout:                 "Transaction sent but has not yet been detected. Refresh this page to view its changes or check back later.",
	CodeInvalidJSONResponse:            "Invalid JSON response from server.",
	CodeNodeFailure:                    "The blockchain nodes seem to be having problems. Try again later.",
	CodeBlockHeightTooLow:              "Block height is too low.",
	CodeTxPageOutOfRange:               "Transaction page is out of range.",
}

// String returns the snake_case code name used in logs and metrics.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Message returns the default user-facing message, empty for CodeUnknown.
func (c Code) Message() string {
	return codeMessages[c]
}

// Reportable reports whether errors of this code should reach monitoring even though
// they are recognized.
func (c Code) Reportable() bool {
	switch c {
	case CodeUnknown, CodeInvalidJSONResponse, CodeTxPageOutOfRange:
		return true
	default:
		return false
	}
}

// pattern matches when every part is a substring of the message.
type pattern []string

func (p pattern) match(message string) bool {
	for _, part := range p {
		if !strings.Contains(message, part) {
			return false
		}
	}
	return true
}

type codePatterns struct {
	code     Code
	patterns []pattern
}

// Order matters: the first matching code wins.
var messagePatterns = []codePatterns{
	{CodeRequestRejected, []pattern{{"Request rejected"}}},
	{CodeInvalidAddress, []pattern{
		{"decoding bech32 failed: invalid checksum"},
		{"contract: not found"},
		{"unknown variant `get_config`"},
		{"unknown variant `dump_state`"},
	}},
	{CodeInsufficientFees, []pattern{{"insufficient fees"}}},
	{CodeInsufficientFunds, []pattern{
		{"insufficient funds"},
		{"Account does not exist on chain."},
		{"fee payer address", "does not exist"},
	}},
	{CodeGetClientFailed, []pattern{
		{"Bad status on response: 403"},
		{"Failed to retrieve account from signer"},
	}},
	{CodeNetwork, []pattern{
		{"Failed to fetch"},
		{"socket disconnected"},
		{"socket hang up"},
		{"Bad status on response: 5"},
		{"ECONNREFUSED"},
		{"ETIMEDOUT"},
		{"connection refused"},
		{"panic: invalid request"},
		{"tx already exists in cache"},
	}},
	{CodeUnauthorized, []pattern{{"Unauthorized"}}},
	{CodeInsufficientForProposalDeposit, []pattern{{"Overflow: Cannot Sub with"}}},
	{CodePendingTransaction, []pattern{{"account sequence mismatch"}}},
	{CodeCampaignNotOpen, []pattern{{"Campaign is not open and accepting funds"}}},
	{CodeNotFound, []pattern{{"not found"}}},
	{CodeTextEncoding, []pattern{{"out of printable ASCII range"}}},
	{CodeAlreadyFunded, []pattern{{"Funding overflow"}}},
	{CodeTxnSentTimeout, []pattern{{"was submitted but was not yet found on the chain"}}},
	{CodeInvalidJSONResponse, []pattern{
		{"invalid json response body"},
		{"Unexpected token < in JSON"},
	}},
	{CodeNodeFailure, []pattern{{"goroutine"}}},
	{CodeBlockHeightTooLow, []pattern{{"-32603", "not available", "lowest height is"}}},
	{CodeTxPageOutOfRange, []pattern{{"-32603", "page should be within", "range", "given"}}},
}

// Error is a classified failure produced at the chain adapter boundary.
type Error struct {
	Code   Code
	TxHash string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	if e.Data == "" {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, e.Data)
}

// ABCIError is a non-zero ABCI result code from a query or transaction.
type ABCIError struct {
	Codespace string
	Code      uint32
	Log       string
}

func (e *ABCIError) Error() string {
	if e.Codespace == "" {
		return fmt.Sprintf("abci code %d: %s", e.Code, e.Log)
	}
	return fmt.Sprintf("abci code %d (%s): %s", e.Code, e.Codespace, e.Log)
}

// TimeoutError means a broadcast transaction was not found before the deadline.
type TimeoutError struct {
	TxHash string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction with ID %s was submitted but was not yet found on the chain", e.TxHash)
}

// Classify maps an error to a Code. Structured causes are checked before message patterns.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}

	var chainErr *Error
	if errors.As(err, &chainErr) {
		return chainErr.Code
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CodeTxnSentTimeout
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 403:
			return CodeGetClientFailed
		case httpErr.StatusCode >= 500:
			return CodeNetwork
		}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return CodeInvalidJSONResponse
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CodeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && !errors.Is(err, context.DeadlineExceeded) {
		return CodeNetwork
	}

	return classifyMessage(err.Error())
}

func classifyMessage(message string) Code {
	for _, entry := range messagePatterns {
		for _, p := range entry.patterns {
			if p.match(message) {
				return entry.code
			}
		}
	}
	return CodeUnknown
}

// Wrap classifies err and returns it as *Error. Nil stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var chainErr *Error
	if errors.As(err, &chainErr) {
		return err
	}
	wrapped := &Error{Code: Classify(err), Err: err}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		wrapped.TxHash = timeoutErr.TxHash
	}
	return wrapped
}

// CodeOf returns the classification of err.
func CodeOf(err error) Code {
	return Classify(err)
}

// Message renders err for a user. Overrides replace the default message for a code;
// unrecognized errors fall back to their raw text.
func Message(err error, overrides map[Code]string) string {
	if err == nil {
		return ""
	}
	code := Classify(err)
	if msg, ok := overrides[code]; ok && msg != "" {
		return msg
	}
	if msg := code.Message(); msg != "" {
		return msg
	}
	return err.Error()
}
