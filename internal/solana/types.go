package solana

// getTransactionResult mirrors the getTransaction RPC response.
type getTransactionResult struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *transactionMeta    `json:"meta"`
	Transaction *transactionPayload `json:"transaction"`
}

type transactionMeta struct {
	Err          any      `json:"err"`
	Fee          uint64   `json:"fee"`
	PreBalances  []uint64 `json:"preBalances"`
	PostBalances []uint64 `json:"postBalances"`
}

type transactionPayload struct {
	Message struct {
		AccountKeys []string `json:"accountKeys"`
	} `json:"message"`
}

// TransactionReceipt is a confirmed transaction's settlement data.
type TransactionReceipt struct {
	Signature    string
	Slot         int64
	BlockTime    int64
	Err          any
	Fee          uint64
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
}

// Succeeded reports whether the transaction executed without error.
func (r *TransactionReceipt) Succeeded() bool {
	return r != nil && r.Err == nil
}

// BalanceChangeSol returns the net SOL change for an account in the
// receipt, derived from pre/post balances. Zero when the account is not in
// the transaction.
func (r *TransactionReceipt) BalanceChangeSol(pubkey string) float64 {
	if r == nil {
		return 0
	}
	for i, key := range r.AccountKeys {
		if key != pubkey {
			continue
		}
		if i >= len(r.PreBalances) || i >= len(r.PostBalances) {
			return 0
		}
		return (float64(r.PostBalances[i]) - float64(r.PreBalances[i])) / LamportsPerSol
	}
	return 0
}
