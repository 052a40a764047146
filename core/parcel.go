package core

// ParcelStatus tracks a parcel through the registration workflow.
// Approved and Rejected are terminal; there is no transition out of either.
type ParcelStatus uint8

const (
	ParcelPending  ParcelStatus = 0
	ParcelApproved ParcelStatus = 1
	ParcelRejected ParcelStatus = 2
)

func (s ParcelStatus) String() string {
	switch s {
	case ParcelPending:
		return "pending"
	case ParcelApproved:
		return "approved"
	case ParcelRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Parcel is a submitted land record. OwnerIdentifier is an opaque token
// produced by the identity codec; the ledger stores and moves it verbatim
// and never inspects its content. It is rewritten on every ownership
// transfer to the new owner's identifier token.
type Parcel struct {
	ID              uint64       `json:"id"`
	Location        string       `json:"location"`
	Area            uint64       `json:"area"`
	OwnerIdentifier string       `json:"owner_identifier"`
	Status          ParcelStatus `json:"status"`
	DocumentURI     string       `json:"document_uri"`
	ImageURI        string       `json:"image_uri"`
	Registrant      string       `json:"registrant"` // address that submitted the record
}

// Token is the ownership token minted when a parcel is approved. Its
// existence is what makes a parcel id "minted"; ownership itself lives in
// the ownership index so the two can never disagree.
type Token struct {
	ID          uint64 `json:"id"` // equals the parcel id
	MetadataURI string `json:"metadata_uri"`
	MintedAt    int64  `json:"minted_at"`
}
