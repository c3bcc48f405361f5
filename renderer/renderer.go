// Package renderer formats transactions and positions as markdown.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"text/template"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/date"
)

//go:embed templates/*.md
var embedded embed.FS

var templates, _ = fs.Sub(embedded, "templates")

// Transaction renders one transaction with all its children.
func Transaction(tx *tradebook.Transaction) string {
	return renderTemplate("transaction", "transaction.md", nil, newTransactionView(tx))
}

// Transactions renders a table of transactions under a title.
func Transactions(title string, txs []*tradebook.Transaction) string {
	data := struct {
		Title string
		Rows  []transactionView
	}{Title: title, Rows: views(txs)}
	return renderTemplate("transactions", "transactions.md", rows, data)
}

// NettingSet renders a net transaction and its members.
func NettingSet(net *tradebook.Transaction, members []*tradebook.Transaction) string {
	data := struct {
		Net     transactionView
		Members []transactionView
	}{Net: newTransactionView(net), Members: views(members)}
	return renderTemplate("nettingSet", "netting_set.md", rows, data)
}

// Positions renders the positions of a book.
func Positions(bookID string, asOf date.Date, acct tradebook.AccountingType, positions []tradebook.Position) string {
	type row struct{ Asset, Quantity string }
	data := struct {
		Book  string
		Basis tradebook.AccountingType
		AsOf  string
		Rows  []row
	}{Book: bookID, Basis: acct}
	if !asOf.IsZero() {
		data.AsOf = asOf.String()
	}
	for _, p := range positions {
		data.Rows = append(data.Rows, row{p.AssetID, p.Quantity.String()})
	}
	return renderTemplate("positions", "positions.md", nil, data)
}

// BookPositions renders positions across several books, or across every book
// of the asset manager when bookIDs is empty.
func BookPositions(bookIDs []string, asOf date.Date, acct tradebook.AccountingType, positions []tradebook.Position) string {
	type row struct{ Book, Asset, Quantity string }
	data := struct {
		Title string
		Basis tradebook.AccountingType
		AsOf  string
		Rows  []row
	}{Title: "all books", Basis: acct}
	if len(bookIDs) > 0 {
		data.Title = strings.Join(bookIDs, ", ")
	}
	if !asOf.IsZero() {
		data.AsOf = asOf.String()
	}
	for _, p := range positions {
		data.Rows = append(data.Rows, row{p.BookID, p.AssetID, p.Quantity.String()})
	}
	return renderTemplate("bookPositions", "book_positions.md", nil, data)
}

var rows = map[string]string{"transaction_rows": "transaction_rows.md"}

type childView struct {
	Kind, Label, Value string
	Active             bool
}

type transactionView struct {
	ID, Version, Status, Type, Action string
	Asset, Book, Counterparty         string
	Quantity, Price, Notional         string
	TradeDate, SettleDate             string
	Children                          []childView
}

func views(txs []*tradebook.Transaction) []transactionView {
	out := make([]transactionView, len(txs))
	for i, tx := range txs {
		out[i] = newTransactionView(tx)
	}
	return out
}

func newTransactionView(tx *tradebook.Transaction) transactionView {
	v := transactionView{
		ID:           tx.TransactionID,
		Version:      strconv.Itoa(tx.Version),
		Status:       string(tx.Status),
		Type:         string(tx.Type),
		Action:       string(tx.Action),
		Asset:        tx.AssetID,
		Book:         tx.AssetBookID,
		Counterparty: tx.CounterpartyBookID,
		Quantity:     tx.Quantity.String(),
		Price:        Money(tx.Price, tx.TransactionCurrency),
		Notional:     Money(tx.Quantity.Mul(tx.Price).Abs(), tx.TransactionCurrency),
		TradeDate:    tx.TransactionDate.String(),
		SettleDate:   tx.SettlementDate.String(),
	}
	for _, label := range tx.Charges.Labels() {
		for _, c := range tx.Charges.Get(label) {
			v.Children = append(v.Children, childView{"Charge", label, Money(c.Value, c.Currency), c.Active})
		}
	}
	for _, label := range tx.Codes.Labels() {
		for _, c := range tx.Codes.Get(label) {
			v.Children = append(v.Children, childView{"Code", label, c.Value, c.Active})
		}
	}
	for _, label := range tx.Comments.Labels() {
		for _, c := range tx.Comments.Get(label) {
			v.Children = append(v.Children, childView{"Comment", label, c.Value, c.Active})
		}
	}
	for _, label := range tx.Links.Labels() {
		for _, l := range tx.Links[label] {
			v.Children = append(v.Children, childView{"Link", label, l.LinkedTransactionID, l.Active})
		}
	}
	for _, label := range tx.Parties.Labels() {
		for _, p := range tx.Parties.Get(label) {
			v.Children = append(v.Children, childView{"Party", label, p.PartyID, p.Active})
		}
	}
	for _, label := range tx.Rates.Labels() {
		for _, r := range tx.Rates.Get(label) {
			v.Children = append(v.Children, childView{"Rate", label, r.Value.String(), r.Active})
		}
	}
	for _, label := range tx.References.Labels() {
		for _, r := range tx.References.Get(label) {
			v.Children = append(v.Children, childView{"Reference", label, r.Value, r.Active})
		}
	}
	return v
}

// Money formats amount in currency, rounded to the currency minor unit. An
// unknown currency is rendered as the plain amount followed by the code.
func Money(amount decimal.Decimal, currency string) string {
	c := money.GetCurrency(currency)
	if c == nil {
		return strings.TrimSpace(amount.String() + " " + currency)
	}
	minor := amount.Shift(int32(c.Fraction)).Round(0).IntPart()
	return money.New(minor, c.Code).Display()
}

// renderTemplate renders mainFile, with the partials named in partials
// available to it.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}
	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}
	for name, file := range partials {
		content, err := fs.ReadFile(templates, file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}
	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
