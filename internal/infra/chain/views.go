package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/halcyonlabs/walletd/internal/core/domain"
	"github.com/halcyonlabs/walletd/internal/transfer"
)

// GetTransaction builds the native transfer view of a transaction. For mined,
// successful transactions the view carries confirmations relative to the
// current head and the enclosing block's timestamp.
func GetTransaction(ctx context.Context, client Client, hash common.Hash) (domain.Transfer, error) {
	tx, pending, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return domain.Transfer{}, err
	}

	view := transfer.Native(tx, nil)
	if pending {
		return view, nil
	}

	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil || receipt.Status == 0 {
		return view, nil
	}

	current, err := client.LatestBlockNumber(ctx)
	if err != nil {
		return view, nil
	}
	block, err := client.BlockByNumber(ctx, tx.BlockNumber)
	if err != nil {
		return view, nil
	}

	view.Confirmations = current - tx.BlockNumber
	if block != nil {
		view.Timestamp = block.Timestamp
	}
	return view, nil
}
