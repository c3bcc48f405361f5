// Package lineage projects the relations between transactions into a graph
// database: nets and their members, allocated parents and their children,
// and the two legs of a book transfer.
//
// Every transaction is a (:Transaction) node keyed by asset manager and id.
// Each active link is a [:LINKED {label}] edge from the transaction holding
// it to the linked one. The projection is rebuilt from each committed
// version, so deactivated links disappear.
package lineage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/etnz/tradebook"
)

const upsertTransaction = `
MERGE (t:Transaction {asset_manager_id: $asset_manager_id, transaction_id: $transaction_id})
SET t.version = $version,
    t.status = $status,
    t.type = $type,
    t.asset_id = $asset_id,
    t.asset_book_id = $asset_book_id
WITH t
OPTIONAL MATCH (t)-[old:LINKED]->()
DELETE old
WITH DISTINCT t
UNWIND $links AS link
MERGE (o:Transaction {asset_manager_id: $asset_manager_id, transaction_id: link.target})
MERGE (t)-[:LINKED {label: link.label}]->(o)`

const relatedTransactions = `
MATCH (t:Transaction {asset_manager_id: $asset_manager_id, transaction_id: $transaction_id})-[:LINKED {label: $label}]->(o:Transaction)
RETURN o.transaction_id AS transaction_id
ORDER BY transaction_id`

// Sink writes committed transactions to the graph. It implements
// tradebook.Listener.
type Sink struct {
	client Client
	logger *zap.Logger
}

// NewSink returns a Sink writing through client. A nil logger disables
// logging.
func NewSink(client Client, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{client: client, logger: logger}
}

// Committed implements tradebook.Listener. The ledger is the source of truth,
// so failures are logged and do not undo the commit.
func (s *Sink) Committed(ctx context.Context, txs []*tradebook.Transaction) {
	if err := s.Record(ctx, txs...); err != nil {
		s.logger.Error("failed to record lineage", zap.Error(err))
	}
}

// Record writes txs and their active links.
func (s *Sink) Record(ctx context.Context, txs ...*tradebook.Transaction) error {
	for _, tx := range txs {
		if _, err := s.client.ExecuteWrite(ctx, upsertTransaction, params(tx)); err != nil {
			return fmt.Errorf("record %d/%s: %w", tx.AssetManagerID, tx.TransactionID, err)
		}
	}
	return nil
}

func params(tx *tradebook.Transaction) map[string]any {
	links := []map[string]any{}
	for _, label := range tx.Links.Labels() {
		for _, target := range tx.Links.Targets(label) {
			links = append(links, map[string]any{"label": label, "target": target})
		}
	}
	return map[string]any{
		"asset_manager_id": tx.AssetManagerID,
		"transaction_id":   tx.TransactionID,
		"version":          int64(tx.Version),
		"status":           string(tx.Status),
		"type":             string(tx.Type),
		"asset_id":         tx.AssetID,
		"asset_book_id":    tx.AssetBookID,
		"links":            links,
	}
}

// Related returns the ids of the transactions linked from id under label,
// in id order.
func (s *Sink) Related(ctx context.Context, tenant int64, id, label string) ([]string, error) {
	res, err := s.client.ExecuteRead(ctx, relatedTransactions, map[string]any{
		"asset_manager_id": tenant,
		"transaction_id":   id,
		"label":            label,
	})
	if err != nil {
		return nil, fmt.Errorf("related %s of %d/%s: %w", label, tenant, id, err)
	}
	ids := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		related, ok := rec["transaction_id"].(string)
		if !ok {
			return nil, fmt.Errorf("related %s of %d/%s: unexpected record %v", label, tenant, id, rec)
		}
		ids = append(ids, related)
	}
	return ids, nil
}
