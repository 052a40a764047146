package core

// Well-known module principals. The registry principal is the default
// minter; the marketplace principal is the caller identity the market
// module uses when it moves tokens on sale completion, so sellers must
// grant it token approval before their listing can settle.
const (
	RegistryPrincipal = "sys:registry"
	MarketPrincipal   = "sys:marketplace"
)
