package domain

// TokenState represents the lifecycle state of a token campaign.
type TokenState string

const (
	StateListed    TokenState = "LISTED"
	StateLaunching TokenState = "LAUNCHING"
	StateLaunched  TokenState = "LAUNCHED"
)

// String returns the string representation of TokenState.
func (s TokenState) String() string {
	return string(s)
}

// IsValid checks if the state is a valid value.
func (s TokenState) IsValid() bool {
	return s == StateListed || s == StateLaunching || s == StateLaunched
}

// Launch stages within the LAUNCHING state. Each stage marks pipeline
// progress that survives a crash; a retry resumes from the last persisted
// stage rather than repeating completed work.
const (
	StagePrepared     = 1 // funds moved, wallets prepared
	StageTokenCreated = 2 // on-chain mint created
	StageDevBuyDone   = 3 // dev wallet buy confirmed
	StageSnipesDone   = 4 // distributed buys confirmed, terminal
)

// Token represents a token campaign owned by a single user.
// Corresponds to the tokens table in PostgreSQL.
type Token struct {
	Owner            string     // owner identifier
	Name             string     // display name
	Symbol           string     // ticker symbol
	MintAddress      string     // base58 mint address, unique
	EncryptedMintKey string     // custody-encrypted mint secret key
	State            TokenState // LISTED | LAUNCHING | LAUNCHED
	Launch           LaunchData // launch pipeline state
	CreatedAt        int64      // record creation timestamp (ms)
}

// LaunchData holds the mutable launch pipeline state for a token.
// Mutated exclusively through conditional stage-advance updates; two
// concurrent advances for the same token cannot both apply.
type LaunchData struct {
	FundingKeyEncrypted string    // custody-encrypted funding wallet key
	DevWalletRef        string    // dev wallet public key
	BuyerWalletRefs     []string  // buyer wallet public keys
	BuyAmount           float64   // total distributed buy amount (SOL)
	DevBuyAmount        float64   // dev wallet buy amount (SOL)
	LaunchStage         int       // pipeline checkpoint, see Stage* constants
	LaunchAttempt       int       // monotonic non-decreasing retry counter
	LockDevSell         bool      // advisory lock: dev sell in flight
	LockWalletSell      bool      // advisory lock: wallet sell in flight
	DevSellAttempt      int       // dev sell submission counter
	WalletSellAttempt   int       // wallet sell submission counter
	BuyDistribution     []float64 // per-wallet spend schedule
}
