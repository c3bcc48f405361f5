package tradebook

import (
	"fmt"
	"slices"
)

// engineLinks are the link labels written by Net, Allocate and BookTransfer
// only. Amendments must carry them unchanged.
var engineLinks = []string{LinkNet, LinkNetMember, LinkAllocation, LinkAllocatedFrom, LinkTransferLeg}

// batchError reports why tx cannot be changed as stated by what, because it
// belongs to a netting set, an allocation or a book transfer. It is nil for a
// transaction outside any batch.
//
// Members of a netting set are Netted, which the lifecycle already freezes.
func batchError(tx *Transaction, what string) error {
	has := func(label string) bool { return len(tx.Links[label]) > 0 }
	switch {
	case has(LinkAllocation):
		return &AllocationError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Reason: "allocated transaction " + what}
	case has(LinkAllocatedFrom):
		return &AllocationError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Reason: "allocation child " + what}
	case has(LinkNetMember):
		return &NettingError{AssetManagerID: tx.AssetManagerID, TransactionIDs: []string{tx.TransactionID}, Reason: "net transaction " + what}
	case has(LinkTransferLeg):
		return &ValidationError{AssetManagerID: tx.AssetManagerID, TransactionID: tx.TransactionID, Field: "transaction_id", Reason: "is a book transfer leg that " + what}
	}
	return nil
}

// frozen checks that next, amending latest, keeps what the batches of latest
// rely on: the engine links of any transaction, and the asset, book and
// quantity of a batch member.
func frozen(latest, next *Transaction) error {
	for _, label := range engineLinks {
		if slices.Equal(latest.Links[label], next.Links[label]) {
			continue
		}
		if err := batchError(latest, fmt.Sprintf("cannot change its %q links", label)); err != nil {
			return err
		}
		return &ValidationError{AssetManagerID: latest.AssetManagerID, TransactionID: latest.TransactionID, Field: "links", Reason: fmt.Sprintf("%q is maintained by the engine", label)}
	}
	switch {
	case !next.Quantity.Equal(latest.Quantity):
		return batchError(latest, "cannot change quantity")
	case next.AssetID != latest.AssetID:
		return batchError(latest, "cannot change asset")
	case next.AssetBookID != latest.AssetBookID:
		return batchError(latest, "cannot change book")
	}
	return nil
}
