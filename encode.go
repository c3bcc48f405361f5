package tradebook

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook/date"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// jsonTransaction is the decoding proxy of a Transaction. Field names follow
// the interface representation of the ledger service.
type jsonTransaction struct {
	AssetManagerID      int64               `json:"asset_manager_id"`
	TransactionID       string              `json:"transaction_id"`
	Version             int                 `json:"version"`
	AssetID             string              `json:"asset_id"`
	AssetBookID         string              `json:"asset_book_id"`
	CounterpartyBookID  string              `json:"counterparty_book_id"`
	Action              Action              `json:"transaction_action"`
	Type                Type                `json:"transaction_type"`
	Status              Status              `json:"transaction_status"`
	Quantity            decimal.Decimal     `json:"quantity"`
	Price               decimal.Decimal     `json:"price"`
	TransactionCurrency string              `json:"transaction_currency"`
	SettlementCurrency  string              `json:"settlement_currency"`
	TransactionDate     date.Date           `json:"transaction_date"`
	SettlementDate      date.Date           `json:"settlement_date"`
	Charges             Children[Charge]    `json:"charges"`
	Codes               Children[Code]      `json:"codes"`
	Comments            Children[Comment]   `json:"comments"`
	Links               Links               `json:"links"`
	Parties             Children[Party]     `json:"parties"`
	Rates               Children[Rate]      `json:"rates"`
	References          Children[Reference] `json:"references"`
}

// MarshalJSON implements the json.Marshaler interface with a stable key order.
func (t Transaction) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	w.Append("asset_manager_id", t.AssetManagerID)
	w.Append("transaction_id", t.TransactionID)
	w.Optional("version", t.Version)
	w.Append("asset_id", t.AssetID)
	w.Append("asset_book_id", t.AssetBookID)
	w.Optional("counterparty_book_id", t.CounterpartyBookID)
	w.Append("transaction_action", t.Action)
	w.Append("transaction_type", t.Type)
	w.Append("transaction_status", t.Status)
	w.Append("quantity", t.Quantity)
	w.Append("price", t.Price)
	w.Append("transaction_currency", t.TransactionCurrency)
	w.Append("settlement_currency", t.SettlementCurrency)
	w.Append("transaction_date", t.TransactionDate)
	w.Append("settlement_date", t.SettlementDate)
	w.Optional("charges", t.Charges)
	w.Optional("codes", t.Codes)
	w.Optional("comments", t.Comments)
	w.Optional("links", t.Links)
	w.Optional("parties", t.Parties)
	w.Optional("rates", t.Rates)
	w.Optional("references", t.References)
	return w.MarshalJSON()
}

// UnmarshalJSON implements the json.Unmarshaler interface. It does not
// validate: use Validate on the result.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var j jsonTransaction
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*t = Transaction{
		AssetManagerID:      j.AssetManagerID,
		TransactionID:       j.TransactionID,
		Version:             j.Version,
		AssetID:             j.AssetID,
		AssetBookID:         j.AssetBookID,
		CounterpartyBookID:  j.CounterpartyBookID,
		Action:              j.Action,
		Type:                j.Type,
		Status:              j.Status,
		Quantity:            j.Quantity,
		Price:               j.Price,
		TransactionCurrency: j.TransactionCurrency,
		SettlementCurrency:  j.SettlementCurrency,
		TransactionDate:     j.TransactionDate,
		SettlementDate:      j.SettlementDate,
		Charges:             j.Charges,
		Codes:               j.Codes,
		Comments:            j.Comments,
		Links:               j.Links,
		Parties:             j.Parties,
		Rates:               j.Rates,
		References:          j.References,
	}
	return nil
}

// EncodeTransaction marshals a single transaction to JSON and writes it to the
// writer, followed by a newline, in JSONL format.
func EncodeTransaction(w io.Writer, tx *Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction %s: %w", tx.TransactionID, err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}
	return nil
}

// EncodeTransactions writes txs in JSONL format.
func EncodeTransactions(w io.Writer, txs []*Transaction) error {
	for _, tx := range txs {
		if err := EncodeTransaction(w, tx); err != nil {
			return err
		}
	}
	return nil
}

// DecodeTransactions decodes transactions from a stream of JSONL data.
// Empty lines are skipped. Transactions are not validated.
func DecodeTransactions(r io.Reader) ([]*Transaction, error) {
	var txs []*Transaction
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		lineBytes := scanner.Bytes()
		if len(lineBytes) == 0 {
			continue
		}
		tx := new(Transaction)
		if err := json.Unmarshal(lineBytes, tx); err != nil {
			return nil, fmt.Errorf("could not decode transaction on line %d: %w", line, err)
		}
		txs = append(txs, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading from input: %w", err)
	}
	return txs, nil
}
