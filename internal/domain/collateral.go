package domain

import "strings"

// knownCollateral maps lowercased collateral token addresses to display
// metadata. Markets on unknown collateral degrade to a generic label.
var knownCollateral = map[string]CollateralMeta{
	"0xe91d153e0b41518a2ce8dd3d7944fa863463a97d": {Symbol: "XDAI", USDPegged: true},
	"0x0000000000000000000000000000000000000000": {Symbol: "ETH", USDPegged: false},
}

// CollateralMetadata resolves display metadata for a collateral token
// address.
func CollateralMetadata(address string) CollateralMeta {
	if address == "" {
		return CollateralMeta{Symbol: "Collateral"}
	}
	if meta, ok := knownCollateral[strings.ToLower(address)]; ok {
		return meta
	}
	return CollateralMeta{Symbol: "Collateral"}
}
