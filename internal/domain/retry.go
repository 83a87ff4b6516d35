package domain

// FlowKind identifies a resumable user flow whose last submitted parameters
// are cached for retry.
type FlowKind string

const (
	FlowLaunch     FlowKind = "launch"
	FlowDevSell    FlowKind = "dev_sell"
	FlowWalletSell FlowKind = "wallet_sell"
)

// String returns the string representation of FlowKind.
func (k FlowKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a valid value.
func (k FlowKind) IsValid() bool {
	return k == FlowLaunch || k == FlowDevSell || k == FlowWalletSell
}

// RetryData caches the last user-entered parameters for a resumable flow.
// At most one live record per (owner, kind); a new Put supersedes the old
// record instead of versioning it.
type RetryData struct {
	Owner     string
	Kind      FlowKind
	Payload   []byte // opaque JSON parameters
	CreatedAt int64  // ms
}
