package domain

// TransactionType classifies an attempted on-chain operation. The set is
// closed; branching on type must handle every value so a typo cannot create
// an unclassifiable ledger row.
type TransactionType string

const (
	TxTokenCreation TransactionType = "token_creation"
	TxDevBuy        TransactionType = "dev_buy"
	TxSnipeBuy      TransactionType = "snipe_buy"
	TxDevSell       TransactionType = "dev_sell"
	TxWalletSell    TransactionType = "wallet_sell"
	TxExternalSell  TransactionType = "external_sell"
	TxExternalBuy   TransactionType = "external_buy"
)

// AllTransactionTypes lists every valid transaction type.
var AllTransactionTypes = []TransactionType{
	TxTokenCreation, TxDevBuy, TxSnipeBuy,
	TxDevSell, TxWalletSell, TxExternalSell, TxExternalBuy,
}

// String returns the string representation of TransactionType.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the type is a valid value.
func (t TransactionType) IsValid() bool {
	switch t {
	case TxTokenCreation, TxDevBuy, TxSnipeBuy,
		TxDevSell, TxWalletSell, TxExternalSell, TxExternalBuy:
		return true
	}
	return false
}

// IsBuy reports whether the type spends SOL.
func (t TransactionType) IsBuy() bool {
	return t == TxTokenCreation || t == TxDevBuy || t == TxSnipeBuy || t == TxExternalBuy
}

// IsSell reports whether the type earns SOL.
func (t TransactionType) IsSell() bool {
	return t == TxDevSell || t == TxWalletSell || t == TxExternalSell
}

// TransactionRecord is one row of the append-only transaction ledger.
// Records are never updated or deleted; retried operations append new rows
// with increasing RetryAttempt. Corresponds to transaction_records in
// ClickHouse.
type TransactionRecord struct {
	TokenAddress    string          // mint address
	WalletPublicKey string          // wallet that attempted the operation
	Type            TransactionType // closed enum, see above
	Signature       string          // transaction signature, empty on pre-send failure
	Success         bool
	LaunchAttempt   int     // campaign attempt the row belongs to
	AmountSol       float64 // SOL spent or received
	AmountTokens    float64 // tokens bought or sold
	RetryAttempt    int     // per-operation retry counter
	ErrorMessage    string  // sanitized failure reason, empty on success
	CreatedAt       int64   // append timestamp (ms)
}
