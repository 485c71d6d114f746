package public

import "github.com/coinforge/node/foundation/chain/txn"

// submitTx is the payload a wallet posts to submit a signed transaction.
// The node recomputes the id and verifies every signature itself; the
// validate tags only reject payloads whose shape is wrong before the core
// validator runs.
type submitTx struct {
	ID   string      `json:"id" validate:"required"`
	Ins  []txn.TxIn  `json:"ins" validate:"required,min=1"`
	Outs []txn.TxOut `json:"outs" validate:"required,min=1"`
}

// txInfo is a mempool transaction decorated with resolved names for
// display purposes.
type txInfo struct {
	ID       string      `json:"id"`
	Ins      []txn.TxIn  `json:"ins"`
	Outs     []txn.TxOut `json:"outs"`
	ToNames  []string    `json:"toNames,omitempty"`
	OutTotal float64     `json:"outTotal"`
}

// latestInfo describes the canonical tip.
type latestInfo struct {
	Latest     string `json:"latest"`
	Height     uint64 `json:"height"`
	Difficulty int    `json:"difficulty"`
}

// balanceInfo is the balance summary for one address.
type balanceInfo struct {
	Address string  `json:"address"`
	Name    string  `json:"name,omitempty"`
	Balance float64 `json:"balance"`
}

// miningStatus reports a mining control transition.
type miningStatus struct {
	Old string `json:"old"`
	New string `json:"new"`
}
