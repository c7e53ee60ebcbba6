package state

// Key helpers for module-owned records stored through KVPut/KVGet. Keys are
// namespaced before hashing so modules cannot collide.

func appendParts(prefix string, parts ...[]byte) []byte {
	buf := []byte(prefix)
	for _, part := range parts {
		buf = append(buf, ':')
		buf = append(buf, part...)
	}
	return buf
}

// ReferralEdgeKey addresses the referrer edge owned by addr.
func ReferralEdgeKey(addr []byte) []byte {
	return appendParts("referral:edge", addr)
}

// ReferralSellerKey addresses the approved-seller flag for addr.
func ReferralSellerKey(addr []byte) []byte {
	return appendParts("referral:seller", addr)
}

// ReferralAccruedKey addresses the cumulative reward accrual for (addr, asset).
func ReferralAccruedKey(addr []byte, symbol string) []byte {
	return appendParts("referral:accrued", addr, []byte(symbol))
}

// FeeAccruedKey addresses the cumulative settlement fee total for an asset.
func FeeAccruedKey(symbol string) []byte {
	return appendParts("swap:fees", []byte(symbol))
}

// VenuePoolKey addresses the stored pool record for a venue selector.
func VenuePoolKey(kind, id string) []byte {
	return appendParts("venue:pool", []byte(kind), []byte(id))
}

// GenesisAppliedKey marks that the seed configuration has been applied.
func GenesisAppliedKey() []byte {
	return []byte("genesis:applied")
}
