package domain

import "time"

// StatementBalance is the balance part of a statement.
type StatementBalance struct {
	Total       int64     `json:"total"`
	AsOf        time.Time `json:"asOf"`
	CreditLimit int64     `json:"creditLimit"`
}

// Statement is the current balance with the most recent transactions, newest first.
type Statement struct {
	Balance      StatementBalance    `json:"balance"`
	Transactions []TransactionRecord `json:"transactions"`
}
