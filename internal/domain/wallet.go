package domain

// WalletRole represents the function a wallet plays in a campaign.
type WalletRole string

const (
	RoleDev     WalletRole = "dev"
	RoleFunding WalletRole = "funding"
	RoleBuyer   WalletRole = "buyer"
)

// Role cardinality limits per owner. Soft business limits enforced at
// wallet creation, not storage invariants.
const (
	MaxDevWallets   = 5
	MaxBuyerWallets = 10
)

// String returns the string representation of WalletRole.
func (r WalletRole) String() string {
	return string(r)
}

// IsValid checks if the role is a valid value.
func (r WalletRole) IsValid() bool {
	return r == RoleDev || r == RoleFunding || r == RoleBuyer
}

// Wallet represents a user wallet with custody-encrypted key material.
// Corresponds to the wallets table in PostgreSQL.
type Wallet struct {
	Owner               string     // owner identifier
	PublicKey           string     // base58 public key, unique
	EncryptedPrivateKey string     // custody-encrypted secret key
	Role                WalletRole // dev | funding | buyer
	IsDefault           bool       // preferred wallet for its role
	CreatedAt           int64      // record creation timestamp (ms)
}
