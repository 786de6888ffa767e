package chain

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"daoup/internal/model"
)

type fakeChain struct {
	signer      *LocalSigner
	broadcasts  int32
	lookups     int32
	foundAfter  int32
	events      []interface{}
	txCode      uint32
	lastExecute []field
	bodyMsgs    int32
}

func (f *fakeChain) handle(t *testing.T, method string, params []json.RawMessage) (interface{}, *rpcErrorBody) {
	switch method {
	case "abci_query":
		path, fields := abciRequest(t, params)
		if path != pathAccount {
			t.Errorf("unexpected query path %s", path)
		}
		base := message(nil).str(1, string(fields[0].bytes)).uint(3, 9).uint(4, 4)
		return abciValue(message(nil).embed(1, encodeAny("/cosmos.auth.v1beta1.BaseAccount", base))), nil

	case "broadcast_tx_sync":
		atomic.AddInt32(&f.broadcasts, 1)
		raw, err := base64.StdEncoding.DecodeString(stringParam(t, params[0]))
		if err != nil {
			t.Errorf("decode tx: %v", err)
			return nil, &rpcErrorBody{Code: -32602, Message: "Invalid params"}
		}
		f.verify(t, raw)
		return map[string]interface{}{"code": 0, "log": "", "hash": "A1B2C3"}, nil

	case "tx":
		n := atomic.AddInt32(&f.lookups, 1)
		if n <= f.foundAfter {
			return nil, &rpcErrorBody{Code: -32603, Message: "Internal error", Data: "tx (A1B2C3) not found"}
		}
		return map[string]interface{}{
			"hash":   "A1B2C3",
			"height": "77",
			"tx_result": map[string]interface{}{
				"code":   f.txCode,
				"log":    "Campaign is not open and accepting funds",
				"events": f.events,
			},
		}, nil
	}
	t.Errorf("unexpected method %s", method)
	return nil, nil
}

func (f *fakeChain) verify(t *testing.T, raw []byte) {
	t.Helper()
	fields, err := decodeFields(raw)
	if err != nil || len(fields) != 3 {
		t.Errorf("decode TxRaw: %v (%d fields)", err, len(fields))
		return
	}
	body, authInfo, sig := fields[0].bytes, fields[1].bytes, fields[2].bytes

	signDoc := message(nil).bytes(1, body).bytes(2, authInfo).str(3, "uni-6").uint(4, 9)
	hash := sha256.Sum256(signDoc)
	if !crypto.VerifySignature(f.signer.PubKey(), hash[:], sig) {
		t.Errorf("signature does not verify")
	}

	bodyFields, err := decodeFields(body)
	if err != nil {
		t.Errorf("decode body: %v", err)
		return
	}
	var msgs int32
	for _, f := range bodyFields {
		if f.num == 1 {
			msgs++
		}
	}
	atomic.StoreInt32(&f.bodyMsgs, msgs)
	typeURL, value, err := decodeAny(bodyFields[0].bytes)
	if err != nil {
		t.Errorf("decode msg: %v", err)
		return
	}
	if typeURL == typeMsgExecuteContract {
		f.lastExecute, _ = decodeFields(value)
	}
}

func newFakeSigningClient(t *testing.T, fake *fakeChain, timeout time.Duration) *SigningClient {
	t.Helper()
	signer, err := NewLocalSigner(testKey, "juno")
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	fake.signer = signer
	client := newTestClient(t, fake.handle)
	fee := Fee{Denom: "ujuno", Amount: "5000", Gas: 400000}
	return NewSigningClient(client, signer, "uni-6", fee, timeout, nil)
}

func TestExecuteWaitsForInclusion(t *testing.T) {
	fake := &fakeChain{foundAfter: 1}
	sc := newFakeSigningClient(t, fake, 10*time.Second)

	funds := []model.Coin{{Denom: "ujuno", Amount: "1000000"}}
	tx, err := sc.Execute(context.Background(), "juno1campaign", map[string]struct{}{"fund": {}}, funds)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if tx.Hash != "A1B2C3" || tx.Height != 77 {
		t.Fatalf("tx = %+v", tx)
	}
	if atomic.LoadInt32(&fake.broadcasts) != 1 {
		t.Fatalf("broadcasts = %d, want 1", fake.broadcasts)
	}
	if atomic.LoadInt32(&fake.lookups) != 2 {
		t.Fatalf("lookups = %d, want 2", fake.lookups)
	}

	var (
		contract string
		msg      string
		coin     model.Coin
	)
	for _, f := range fake.lastExecute {
		switch f.num {
		case 2:
			contract = string(f.bytes)
		case 3:
			msg = string(f.bytes)
		case 5:
			coin, _ = decodeCoin(f.bytes)
		}
	}
	if contract != "juno1campaign" || msg != `{"fund":{}}` || coin != funds[0] {
		t.Fatalf("execute msg = %s %s %+v", contract, msg, coin)
	}
}

func TestExecuteFailedTxIsClassified(t *testing.T) {
	fake := &fakeChain{txCode: 5}
	sc := newFakeSigningClient(t, fake, 10*time.Second)

	_, err := sc.Execute(context.Background(), "juno1campaign", map[string]struct{}{"fund": {}}, nil)
	if code := CodeOf(err); code != CodeCampaignNotOpen {
		t.Fatalf("code = %s", code)
	}
}

func TestExecuteTimeoutKeepsHash(t *testing.T) {
	fake := &fakeChain{foundAfter: 1 << 20}
	sc := newFakeSigningClient(t, fake, time.Second)

	_, err := sc.Execute(context.Background(), "juno1campaign", map[string]struct{}{"fund": {}}, nil)
	var chainErr *Error
	if !errorsAs(err, &chainErr) {
		t.Fatalf("err = %v", err)
	}
	if chainErr.Code != CodeTxnSentTimeout || chainErr.TxHash != "A1B2C3" {
		t.Fatalf("err = %+v", chainErr)
	}
	if !strings.Contains(err.Error(), "was submitted but was not yet found on the chain") {
		t.Fatalf("message = %s", err)
	}
	if atomic.LoadInt32(&fake.broadcasts) != 1 {
		t.Fatalf("broadcast retried: %d", fake.broadcasts)
	}
}

func TestInstantiateReturnsContractAddress(t *testing.T) {
	fake := &fakeChain{events: []interface{}{
		map[string]interface{}{"type": "instantiate", "attributes": []interface{}{
			map[string]string{"key": "_contract_address", "value": "juno1newcampaign"},
			map[string]string{"key": "code_id", "value": "12"},
		}},
	}}
	sc := newFakeSigningClient(t, fake, 10*time.Second)

	res, err := sc.Instantiate(context.Background(), 12, "[DAO Up!] Test", map[string]string{"dao_address": "juno1dao"}, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if res.ContractAddress != "juno1newcampaign" {
		t.Fatalf("address = %s", res.ContractAddress)
	}
}

func TestExecuteBatchSignsOneTransaction(t *testing.T) {
	fake := &fakeChain{}
	sc := newFakeSigningClient(t, fake, 10*time.Second)

	_, err := sc.ExecuteBatch(context.Background(), []ExecuteMsg{
		{Contract: "juno1gov", Msg: map[string]interface{}{"increase_allowance": map[string]string{"amount": "10", "spender": "juno1dao"}}},
		{Contract: "juno1dao", Msg: map[string]interface{}{"propose": map[string]string{"title": "t"}}},
	})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if atomic.LoadInt32(&fake.broadcasts) != 1 || atomic.LoadInt32(&fake.bodyMsgs) != 2 {
		t.Fatalf("broadcasts = %d, msgs = %d", fake.broadcasts, fake.bodyMsgs)
	}

	if _, err := sc.ExecuteBatch(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}
