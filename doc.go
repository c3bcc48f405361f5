// Package tradebook manages the lifecycle of trading transactions for asset
// managers. It keeps every version of a transaction and derives positions
// from them.
//
// The core functionalities include:
//   - Transactions: an immutable, versioned record of each transaction with
//     its children (charges, codes, comments, links, parties, rates and
//     references). Every change stores a new version and supersedes the
//     previous one.
//   - Lifecycle: a state machine over New, Amended, Superseded, Cancelled,
//     Netted and Novated, enforced by the Engine with optimistic versioning
//     and per transaction locks.
//   - Batches: netting transactions into one, allocating a transaction across
//     books and transferring an asset between books. The transactions of a
//     batch are written together or not at all.
//   - Positions: a stateless fold of the live transactions of a book as of a
//     date, on transaction or settlement dates.
//
// Storage is behind the Repository interface. MemoryStore is the in-process
// implementation, the store packages provide SQL ones. The Engine is the
// foundational logic of the tbk command line tool.
package tradebook
