package tradebook

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/tradebook/date"
)

func TestTransaction_MarshalJSON(t *testing.T) {
	tx := trade("t1", "B1", Buy, "100", "10.5")
	tx.Version = 2
	tx.Codes.Add(CodeNettingType, Code{Value: "Net", Active: true})

	var buf bytes.Buffer
	require.NoError(t, EncodeTransaction(&buf, tx))
	want := `{"asset_manager_id":1,"transaction_id":"t1","version":2,"asset_id":"ACME","asset_book_id":"B1",` +
		`"transaction_action":"Buy","transaction_type":"Trade","transaction_status":"New","quantity":100,"price":10.5,` +
		`"transaction_currency":"USD","settlement_currency":"USD","transaction_date":"2024-03-01","settlement_date":"2024-03-03",` +
		`"codes":{"Netting Type":[{"code_value":"Net","active":true}]}}` + "\n"
	assert.Equal(t, want, buf.String())
}

func TestDecodeTransactions(t *testing.T) {
	input := `{"asset_manager_id":1,"transaction_id":"t1","asset_id":"ACME","asset_book_id":"B1","transaction_action":"Sell","transaction_type":"Trade","transaction_status":"Amended","quantity":-40,"price":11,"transaction_currency":"USD","settlement_currency":"EUR","transaction_date":"2024-03-01","settlement_date":"2024-03-05","links":{"Net":[{"linked_transaction_id":"n1","active":true}]}}

{"asset_manager_id":1,"transaction_id":"t2","asset_id":"ACME","asset_book_id":"B2","transaction_action":"Buy","transaction_type":"Trade","transaction_status":"New","quantity":5,"price":1,"transaction_currency":"USD","settlement_currency":"USD","transaction_date":"2024-03-02","settlement_date":"2024-03-02"}
`
	txs, err := DecodeTransactions(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, txs, 2)

	first := txs[0]
	assert.Equal(t, Sell, first.Action)
	assert.Equal(t, Amended, first.Status)
	assertDecimal(t, "-40", first.Quantity)
	assert.Equal(t, "EUR", first.SettlementCurrency)
	assert.Equal(t, date.MustParse("2024-03-05"), first.SettlementDate)
	netID, ok := first.NetTransactionID()
	assert.True(t, ok)
	assert.Equal(t, "n1", netID)
	assert.NoError(t, first.Validate())

	assert.Equal(t, "B2", txs[1].AssetBookID)
}

func TestDecodeTransactions_Error(t *testing.T) {
	_, err := DecodeTransactions(strings.NewReader("{\"transaction_id\":\"t1\"}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
