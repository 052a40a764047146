package rpc

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/events"
	"github.com/landvn/landledger/identity"
	"github.com/landvn/landledger/indexer"
	"github.com/landvn/landledger/internal/testutil"
	"github.com/landvn/landledger/ledger"

	// Register command modules
	_ "github.com/landvn/landledger/ledger/modules/admin"
	_ "github.com/landvn/landledger/ledger/modules/market"
	_ "github.com/landvn/landledger/ledger/modules/registry"
	_ "github.com/landvn/landledger/ledger/modules/token"
)

func newHandler(t *testing.T, codec identity.Codec) *Handler {
	t.Helper()
	st := testutil.NewStateDB()
	err := ledger.Bootstrap(st, ledger.Genesis{
		Admin:         "admin",
		ListingFee:    uint256.NewInt(100),
		CancelPenalty: uint256.NewInt(50),
		Alloc: map[string]*uint256.Int{
			"alice": uint256.NewInt(1_000_000),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	emitter := events.NewEmitter()
	idx := indexer.New(testutil.NewMemDB(), emitter)
	exec := ledger.NewExecutor(st, emitter)
	return NewHandler(exec, idx, codec)
}

func call(t *testing.T, h *Handler, method string, params any) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	return h.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
}

func send(t *testing.T, h *Handler, typ core.CmdType, caller string, payload any) Response {
	t.Helper()
	cmd, err := core.NewCommand(typ, caller, payload)
	if err != nil {
		t.Fatal(err)
	}
	return call(t, h, "sendCommand", cmd)
}

func mustOK(t *testing.T, resp Response) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
}

func registerParcel(t *testing.T, h *Handler, caller, identifier string) {
	t.Helper()
	mustOK(t, send(t, h, core.CmdRegisterParcel, caller, core.RegisterParcelPayload{
		Location:        "Go Vap, TP.HCM",
		Area:            50,
		OwnerIdentifier: identifier,
		DocumentURI:     "ipfs://doc",
		ImageURI:        "ipfs://img",
	}))
}

func TestSendCommandAndGetParcel(t *testing.T) {
	h := newHandler(t, nil)
	registerParcel(t, h, "alice", "tok-alice")

	resp := call(t, h, "getParcel", idParams{ID: 1})
	mustOK(t, resp)
	parcel, ok := resp.Result.(*core.Parcel)
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if parcel.Registrant != "alice" || parcel.Status != core.ParcelPending {
		t.Errorf("parcel: %+v", parcel)
	}

	resp = call(t, h, "isParcelPending", idParams{ID: 1})
	mustOK(t, resp)
	if got := resp.Result.(map[string]bool)["result"]; !got {
		t.Error("freshly registered parcel not pending")
	}
}

func TestSendCommandRejectionCode(t *testing.T) {
	h := newHandler(t, nil)
	registerParcel(t, h, "alice", "tok-alice")

	resp := send(t, h, core.CmdApproveParcel, "bob",
		core.ApproveParcelPayload{ParcelID: 1, MetadataURI: "u"})
	if resp.Error == nil || resp.Error.Code != CodeCommandFailed {
		t.Fatalf("approve by non-admin: %+v", resp.Error)
	}

	// State is untouched by the rejected command.
	resp = call(t, h, "isParcelPending", idParams{ID: 1})
	mustOK(t, resp)
	if got := resp.Result.(map[string]bool)["result"]; !got {
		t.Error("rejected command changed state")
	}
}

func TestTokenQueriesAfterApproval(t *testing.T) {
	h := newHandler(t, nil)
	registerParcel(t, h, "alice", "tok-alice")
	mustOK(t, send(t, h, core.CmdApproveParcel, "admin",
		core.ApproveParcelPayload{ParcelID: 1, MetadataURI: "ipfs://meta/1"}))

	resp := call(t, h, "ownerOf", idParams{ID: 1})
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["owner"]; got != "alice" {
		t.Errorf("ownerOf: got %q", got)
	}

	resp = call(t, h, "tokenURI", idParams{ID: 1})
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["uri"]; got != "ipfs://meta/1" {
		t.Errorf("tokenURI: got %q", got)
	}

	resp = call(t, h, "balanceOf", map[string]any{"owner": "alice"})
	mustOK(t, resp)
	if got := resp.Result.(map[string]int)["balance"]; got != 1 {
		t.Errorf("balanceOf: got %d", got)
	}

	resp = call(t, h, "getParcelsByIdentifier", map[string]any{"identifier": "tok-alice"})
	mustOK(t, resp)
	if got := resp.Result.(map[string]any)["parcels"].([]uint64); len(got) != 1 || got[0] != 1 {
		t.Errorf("parcels by identifier: got %v", got)
	}
}

func TestPendingTokenQueries(t *testing.T) {
	h := newHandler(t, nil)
	registerParcel(t, h, "alice", "tok-alice")

	// Before approval the parcel has an owner but no token.
	resp := call(t, h, "getOwner", idParams{ID: 1})
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["owner"]; got != "alice" {
		t.Errorf("getOwner: got %q", got)
	}
	resp = call(t, h, "ownerOf", idParams{ID: 1})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("ownerOf before mint: %+v", resp.Error)
	}
}

func TestMoneyQueries(t *testing.T) {
	h := newHandler(t, nil)

	resp := call(t, h, "getBalance", addressParams{Address: "alice"})
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["balance"]; got != "1000000" {
		t.Errorf("getBalance: got %q", got)
	}
	resp = call(t, h, "getEscrowBalance", addressParams{Address: "alice"})
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["amount"]; got != "0" {
		t.Errorf("getEscrowBalance: got %q", got)
	}
	resp = call(t, h, "getFees", nil)
	mustOK(t, resp)
	fees := resp.Result.(map[string]string)
	if fees["listing_fee"] != "100" || fees["cancel_penalty"] != "50" {
		t.Errorf("getFees: %v", fees)
	}
	resp = call(t, h, "getAdmin", nil)
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["admin"]; got != "admin" {
		t.Errorf("getAdmin: got %q", got)
	}
}

func TestStateRootChangesWithCommands(t *testing.T) {
	h := newHandler(t, nil)

	resp := call(t, h, "getStateRoot", nil)
	mustOK(t, resp)
	before := resp.Result.(map[string]string)["root"]
	if before == "" {
		t.Fatal("empty state root")
	}

	registerParcel(t, h, "alice", "tok-alice")

	resp = call(t, h, "getStateRoot", nil)
	mustOK(t, resp)
	if after := resp.Result.(map[string]string)["root"]; after == before {
		t.Error("state root did not move after a committed command")
	}
}

func TestDispatchErrors(t *testing.T) {
	h := newHandler(t, nil)

	resp := h.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "noSuchMethod"})
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("unknown method: %+v", resp.Error)
	}
	resp = h.Dispatch(Request{JSONRPC: "1.0", ID: 1, Method: "getAdmin"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Errorf("bad version: %+v", resp.Error)
	}
	resp = h.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "getParcel", Params: json.RawMessage(`{`)})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("bad params: %+v", resp.Error)
	}
	resp = call(t, h, "getParcel", idParams{ID: 99})
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Errorf("unknown parcel: %+v", resp.Error)
	}
}

func TestDecryptIdentifier(t *testing.T) {
	// A node without keys answers the sentinel, never an error.
	h := newHandler(t, nil)
	resp := call(t, h, "decryptIdentifier", map[string]any{"token": "whatever"})
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["identifier"]; got != "unavailable" {
		t.Errorf("without codec: got %q", got)
	}

	codec, err := identity.Generate()
	if err != nil {
		t.Fatal(err)
	}
	token, err := codec.Encrypt("079123456789")
	if err != nil {
		t.Fatal(err)
	}

	h = newHandler(t, codec)
	resp = call(t, h, "decryptIdentifier", map[string]any{"token": token})
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["identifier"]; got != "079123456789" {
		t.Errorf("with codec: got %q", got)
	}

	// Encrypt-only nodes also answer the sentinel.
	h = newHandler(t, identity.NewEncryptOnly(codec.PublicKey()))
	resp = call(t, h, "decryptIdentifier", map[string]any{"token": token})
	mustOK(t, resp)
	if got := resp.Result.(map[string]string)["identifier"]; got != "unavailable" {
		t.Errorf("encrypt-only: got %q", got)
	}
}
