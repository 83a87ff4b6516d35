package domain

// PoolAddress represents a pre-generated deployment keypair held in the
// shared address pool. Corresponds to the pool_addresses table.
//
// Invariant: IsUsed and UsedBy agree at all times, both set or both
// cleared. At most one requester holds an address at a time; exclusivity is
// enforced by the conditional acquire update, not by this struct.
type PoolAddress struct {
	PublicKey         string // base58 public key, unique
	SecretKeyMaterial string // custody-encrypted secret key
	IsUsed            bool
	UsedBy            string // requester id, empty when free
	UsedAt            int64  // acquisition timestamp (ms), 0 when free
	CreatedAt         int64  // provisioning timestamp (ms)
}
