package rpc

import (
	"encoding/json"
	"errors"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/core"
	"github.com/landvn/landledger/identity"
	"github.com/landvn/landledger/indexer"
	"github.com/landvn/landledger/ledger"
	"github.com/landvn/landledger/ledger/ownership"
)

// Handler dispatches JSON-RPC methods to the ledger executor and the
// secondary indexer.
type Handler struct {
	exec  *ledger.Executor
	idx   *indexer.Indexer
	codec identity.Codec // nil when the node has no identity keys
}

// NewHandler creates a Handler. codec may be nil.
func NewHandler(exec *ledger.Executor, idx *indexer.Indexer, codec identity.Codec) *Handler {
	return &Handler{exec: exec, idx: idx, codec: codec}
}

// commandErrors lists the precondition failures a handler may reject a
// command with. Anything else from Apply is an internal fault.
var commandErrors = []error{
	core.ErrInvalidInput,
	core.ErrNotFound,
	core.ErrNotAdmin,
	core.ErrNotPending,
	core.ErrNotMinter,
	core.ErrNotTokenOwner,
	core.ErrNotOwnerOrApproved,
	core.ErrTokenNotFound,
	core.ErrListingNotFound,
	core.ErrListingNotActive,
	core.ErrTransactionNotFound,
	core.ErrNotBuyer,
	core.ErrInsufficientFee,
	core.ErrWrongDepositAmount,
	core.ErrInsufficientBalance,
	core.ErrAlreadyMinted,
}

func isCommandError(err error) bool {
	for _, sentinel := range commandErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Dispatch routes a single request to its method implementation.
func (h *Handler) Dispatch(req Request) Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errResponse(req.ID, CodeInvalidRequest, "invalid request")
	}

	switch req.Method {
	case "sendCommand":
		return h.sendCommand(req)
	case "getParcel":
		return h.getParcel(req)
	case "getOwner":
		return h.getOwner(req)
	case "getParcelsOfOwner":
		return h.getParcelsOfOwner(req)
	case "isParcelPending":
		return h.parcelStatusIs(req, core.ParcelPending)
	case "isParcelApproved":
		return h.parcelStatusIs(req, core.ParcelApproved)
	case "isParcelRejected":
		return h.parcelStatusIs(req, core.ParcelRejected)
	case "ownerOf":
		return h.ownerOf(req)
	case "tokenURI":
		return h.tokenURI(req)
	case "balanceOf":
		return h.balanceOf(req)
	case "getApproved":
		return h.getApproved(req)
	case "isApprovedForAll":
		return h.isApprovedForAll(req)
	case "getListing":
		return h.getListing(req)
	case "getTransaction":
		return h.getTransaction(req)
	case "getEscrowBalance":
		return h.getEscrowBalance(req)
	case "getBalance":
		return h.getBalance(req)
	case "getTreasury":
		return h.getTreasury(req)
	case "getFees":
		return h.getFees(req)
	case "getAdmin":
		return h.getAdmin(req)
	case "getParcelsByIdentifier":
		return h.getParcelsByIdentifier(req)
	case "decryptIdentifier":
		return h.decryptIdentifier(req)
	case "getStateRoot":
		return okResponse(req.ID, map[string]string{"root": h.exec.StateRoot()})
	default:
		return errResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

// ---- commands ----

func (h *Handler) sendCommand(req Request) Response {
	var cmd core.Command
	if err := json.Unmarshal(req.Params, &cmd); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "invalid command: "+err.Error())
	}
	// The id is derived from the body; never trust the one on the wire.
	cmd.ID = cmd.Hash()

	if err := h.exec.Apply(&cmd); err != nil {
		if isCommandError(err) {
			return errResponse(req.ID, CodeCommandFailed, err.Error())
		}
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{
		"cmd_id":     cmd.ID,
		"state_root": h.exec.StateRoot(),
	})
}

// ---- queries ----

type idParams struct {
	ID uint64 `json:"id"`
}

type addressParams struct {
	Address string `json:"address"`
}

func (h *Handler) getParcel(req Request) Response {
	var p idParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var parcel *core.Parcel
	err := h.exec.View(func(st core.State) error {
		var err error
		parcel, err = st.GetParcel(p.ID)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, parcel)
}

func (h *Handler) getOwner(req Request) Response {
	var p idParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var owner string
	err := h.exec.View(func(st core.State) error {
		var err error
		owner, err = st.GetParcelOwner(p.ID)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{"owner": owner})
}

func (h *Handler) getParcelsOfOwner(req Request) Response {
	var p struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var ids []uint64
	err := h.exec.View(func(st core.State) error {
		var err error
		ids, err = st.GetOwnedParcels(p.Owner)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return okResponse(req.ID, map[string]any{"parcels": ids})
}

func (h *Handler) parcelStatusIs(req Request, want core.ParcelStatus) Response {
	var p idParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var parcel *core.Parcel
	err := h.exec.View(func(st core.State) error {
		var err error
		parcel, err = st.GetParcel(p.ID)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]bool{"result": parcel.Status == want})
}

func (h *Handler) ownerOf(req Request) Response {
	var p idParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var owner string
	err := h.exec.View(func(st core.State) error {
		var err error
		owner, err = ownership.OwnerOf(st, p.ID)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{"owner": owner})
}

func (h *Handler) tokenURI(req Request) Response {
	var p idParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var token *core.Token
	err := h.exec.View(func(st core.State) error {
		var err error
		token, err = st.GetToken(p.ID)
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrTokenNotFound
		}
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{"uri": token.MetadataURI})
}

// balanceOf counts minted tokens held by owner; parcels still pending
// approval do not count.
func (h *Handler) balanceOf(req Request) Response {
	var p struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var count int
	err := h.exec.View(func(st core.State) error {
		ids, err := st.GetOwnedParcels(p.Owner)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := st.GetToken(id); err == nil {
				count++
			} else if !errors.Is(err, core.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]int{"balance": count})
}

func (h *Handler) getApproved(req Request) Response {
	var p idParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var operator string
	err := h.exec.View(func(st core.State) error {
		if _, err := ownership.OwnerOf(st, p.ID); err != nil {
			return err
		}
		var err error
		operator, err = st.GetApproved(p.ID)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{"operator": operator})
}

func (h *Handler) isApprovedForAll(req Request) Response {
	var p struct {
		Owner    string `json:"owner"`
		Operator string `json:"operator"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var approved bool
	err := h.exec.View(func(st core.State) error {
		var err error
		approved, err = st.GetOperator(p.Owner, p.Operator)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]bool{"approved": approved})
}

func (h *Handler) getListing(req Request) Response {
	var p idParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var listing *core.Listing
	err := h.exec.View(func(st core.State) error {
		var err error
		listing, err = st.GetListing(p.ID)
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrListingNotFound
		}
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, listing)
}

func (h *Handler) getTransaction(req Request) Response {
	var p idParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var txn *core.Transaction
	err := h.exec.View(func(st core.State) error {
		var err error
		txn, err = st.GetTransaction(p.ID)
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrTransactionNotFound
		}
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, txn)
}

func (h *Handler) getEscrowBalance(req Request) Response {
	var p addressParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var amount *uint256.Int
	err := h.exec.View(func(st core.State) error {
		var err error
		amount, err = st.GetEscrow(p.Address)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{"amount": amount.Dec()})
}

func (h *Handler) getBalance(req Request) Response {
	var p addressParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var acct *core.Account
	err := h.exec.View(func(st core.State) error {
		var err error
		acct, err = st.GetAccount(p.Address)
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{"balance": acct.Balance.Dec()})
}

func (h *Handler) getTreasury(req Request) Response {
	var amount *uint256.Int
	err := h.exec.View(func(st core.State) error {
		var err error
		amount, err = st.GetTreasury()
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{"amount": amount.Dec()})
}

func (h *Handler) getFees(req Request) Response {
	var fees *core.Fees
	err := h.exec.View(func(st core.State) error {
		var err error
		fees, err = st.GetFees()
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{
		"listing_fee":    fees.ListingFee.Dec(),
		"cancel_penalty": fees.CancelPenalty.Dec(),
	})
}

func (h *Handler) getAdmin(req Request) Response {
	var admin string
	err := h.exec.View(func(st core.State) error {
		var err error
		admin, err = st.GetAdmin()
		return err
	})
	if err != nil {
		return queryError(req.ID, err)
	}
	return okResponse(req.ID, map[string]string{"admin": admin})
}

func (h *Handler) getParcelsByIdentifier(req Request) Response {
	var p struct {
		Identifier string `json:"identifier"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	ids, err := h.idx.GetParcelsByIdentifier(p.Identifier)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if ids == nil {
		ids = []uint64{}
	}
	return okResponse(req.ID, map[string]any{"parcels": ids})
}

// decryptIdentifier opens an identifier token with the node's private key.
// Nodes without the key answer "unavailable" instead of failing, so public
// read replicas can serve the rest of the API.
func (h *Handler) decryptIdentifier(req Request) Response {
	var p struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if h.codec == nil {
		return okResponse(req.ID, map[string]string{"identifier": "unavailable"})
	}
	plain, err := h.codec.Decrypt(p.Token)
	if err != nil {
		if errors.Is(err, identity.ErrUnavailable) {
			return okResponse(req.ID, map[string]string{"identifier": "unavailable"})
		}
		return errResponse(req.ID, CodeInvalidParams, "undecryptable token: "+err.Error())
	}
	return okResponse(req.ID, map[string]string{"identifier": plain})
}

// queryError maps a read failure to the proper JSON-RPC error code.
func queryError(id any, err error) Response {
	if isCommandError(err) {
		return errResponse(id, CodeInvalidParams, err.Error())
	}
	return errResponse(id, CodeInternalError, err.Error())
}
