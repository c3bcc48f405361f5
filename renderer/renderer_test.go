package renderer

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/date"
)

// document summarizes a parsed markdown document: its headings and, for each
// table, its cells row by row, header included.
type document struct {
	headings []string
	tables   [][][]string
}

func parse(t *testing.T, md string) document {
	t.Helper()
	source := []byte(md)
	root := goldmark.New(goldmark.WithExtensions(extension.Table)).Parser().Parse(text.NewReader(source))

	var doc document
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading:
			doc.headings = append(doc.headings, string(n.Lines().Value(source)))
		case *east.Table:
			doc.tables = append(doc.tables, nil)
		case *east.TableHeader, *east.TableRow:
			var cells []string
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				cells = append(cells, strings.TrimSpace(string(c.Lines().Value(source))))
			}
			last := len(doc.tables) - 1
			doc.tables[last] = append(doc.tables[last], cells)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	require.NoError(t, err)
	return doc
}

func sample() *tradebook.Transaction {
	tx := &tradebook.Transaction{
		AssetManagerID:      1,
		TransactionID:       "t1",
		Version:             2,
		AssetID:             "ACME",
		AssetBookID:         "B1",
		CounterpartyBookID:  "C1",
		Action:              tradebook.Buy,
		Type:                tradebook.Trade,
		Status:              tradebook.Amended,
		Quantity:            decimal.NewFromInt(75),
		Price:               decimal.RequireFromString("10.50"),
		TransactionCurrency: "USD",
		SettlementCurrency:  "USD",
		TransactionDate:     date.MustParse("2024-03-01"),
		SettlementDate:      date.MustParse("2024-03-03"),
	}
	tx.Charges.Add("Commission", tradebook.Charge{Value: decimal.RequireFromString("1.2"), Currency: "USD", Active: true})
	tx.Comments.Add("Desk", tradebook.Comment{Value: "late booking", Active: false})
	return tx
}

func TestMoney(t *testing.T) {
	tests := []struct {
		amount, currency, want string
	}{
		{"10.5", "USD", "$10.50"},
		{"787.5", "USD", "$787.50"},
		{"1000", "JPY", "¥1,000"},
		{"12.345", "XXX1", "12.345 XXX1"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Money(decimal.RequireFromString(tc.amount), tc.currency), "%s %s", tc.amount, tc.currency)
	}
}

func TestTransaction(t *testing.T) {
	doc := parse(t, Transaction(sample()))
	assert.Equal(t, []string{"Transaction t1", "Children"}, doc.headings)
	require.Len(t, doc.tables, 2)

	fields := map[string]string{}
	for _, row := range doc.tables[0][1:] {
		fields[row[0]] = row[1]
	}
	assert.Equal(t, "2", fields["Version"])
	assert.Equal(t, "Amended", fields["Status"])
	assert.Equal(t, "C1", fields["Counterparty Book"])
	assert.Equal(t, "$10.50", fields["Price"])
	assert.Equal(t, "$787.50", fields["Notional"])
	assert.Equal(t, "2024-03-03", fields["Settlement Date"])

	assert.Equal(t, [][]string{
		{"Kind", "Label", "Value", "Active"},
		{"Charge", "Commission", "$1.20", "yes"},
		{"Comment", "Desk", "late booking", "no"},
	}, doc.tables[1])
}

func TestTransaction_NoChildren(t *testing.T) {
	tx := sample()
	tx.Charges, tx.Comments, tx.CounterpartyBookID = nil, nil, ""
	doc := parse(t, Transaction(tx))
	assert.Equal(t, []string{"Transaction t1"}, doc.headings)
	require.Len(t, doc.tables, 1)
	for _, row := range doc.tables[0] {
		assert.NotEqual(t, "Counterparty Book", row[0])
	}
}

func TestTransactions(t *testing.T) {
	sell := sample()
	sell.TransactionID, sell.Action, sell.Quantity = "t2", tradebook.Sell, decimal.NewFromInt(-40)

	doc := parse(t, Transactions("Book B1", []*tradebook.Transaction{sample(), sell}))
	assert.Equal(t, []string{"Book B1"}, doc.headings)
	require.Len(t, doc.tables, 1)
	require.Len(t, doc.tables[0], 3)
	assert.Equal(t, []string{"t2", "2", "Amended", "Trade", "Sell", "ACME", "B1", "-40", "$10.50", "2024-03-01"}, doc.tables[0][2])

	empty := Transactions("Nothing", nil)
	assert.Contains(t, empty, "No transactions.")
	assert.Empty(t, parse(t, empty).tables)
}

func TestNettingSet(t *testing.T) {
	net := sample()
	net.TransactionID, net.Type, net.Quantity = "n1", tradebook.Net, decimal.NewFromInt(60)
	doc := parse(t, NettingSet(net, []*tradebook.Transaction{sample()}))
	assert.Equal(t, []string{"Netting Set n1"}, doc.headings)
	require.Len(t, doc.tables, 1)
	assert.Len(t, doc.tables[0], 2)
}

func TestPositions(t *testing.T) {
	md := Positions("B1", date.MustParse("2024-03-01"), tradebook.SettlementDate, []tradebook.Position{
		{AssetID: "ACME", Quantity: decimal.NewFromInt(60)},
		{AssetID: "BOLT", Quantity: decimal.RequireFromString("-2.5")},
	})
	assert.Contains(t, md, "Settlement Date as of 2024-03-01.")
	doc := parse(t, md)
	assert.Equal(t, [][]string{{"Asset", "Quantity"}, {"ACME", "60"}, {"BOLT", "-2.5"}}, doc.tables[0])

	assert.Contains(t, Positions("B2", date.Date{}, tradebook.TransactionDate, nil), "No positions.")
}

func TestBookPositions(t *testing.T) {
	positions := []tradebook.Position{
		{BookID: "B1", AssetID: "ACME", Quantity: decimal.NewFromInt(60)},
		{BookID: "B2", AssetID: "ACME", Quantity: decimal.NewFromInt(-30)},
	}
	md := BookPositions(nil, date.MustParse("2024-03-01"), tradebook.TransactionDate, positions)
	assert.Contains(t, md, "# Positions of all books")
	doc := parse(t, md)
	assert.Equal(t, [][]string{{"Book", "Asset", "Quantity"}, {"B1", "ACME", "60"}, {"B2", "ACME", "-30"}}, doc.tables[0])

	md = BookPositions([]string{"B1", "B2"}, date.Date{}, tradebook.SettlementDate, nil)
	assert.Contains(t, md, "# Positions of B1, B2")
	assert.Contains(t, md, "No positions.")
}
