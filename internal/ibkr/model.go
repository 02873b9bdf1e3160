package ibkr

import (
	"encoding/xml"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FlexRequestResponse is the status document returned when a statement is requested, and while
// it is still being generated.
type FlexRequestResponse struct {
	XMLName       xml.Name `xml:"FlexStatementResponse"`
	Timestamp     string   `xml:"timestamp,attr"`
	Status        string   `xml:"Status"`        // Success or Fail
	ReferenceCode int      `xml:"ReferenceCode"` // Code to download the requested statement
	URL           string   `xml:"Url"`           // URL to download statement
	ErrorCode     *int     `xml:"ErrorCode"`
	ErrorMessage  *string  `xml:"ErrorMessage"`
}

func (r FlexRequestResponse) err() error {
	if r.ErrorCode != nil {
		msg := ""
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		return fmt.Errorf("ibkr error %d: %s", *r.ErrorCode, msg)
	}
	return fmt.Errorf("ibkr request status %q", r.Status)
}

// FlexQueryResponse is a generated Flex report. Only the sections the importer reads are mapped.
type FlexQueryResponse struct {
	XMLName        xml.Name `xml:"FlexQueryResponse"`
	QueryName      string   `xml:"queryName,attr"`
	Type           string   `xml:"type,attr"`
	FlexStatements struct {
		Count         string          `xml:"count,attr"`
		FlexStatement []FlexStatement `xml:"FlexStatement"`
	} `xml:"FlexStatements"`
}

// FlexStatement is the report section of one broker account.
type FlexStatement struct {
	AccountID        string `xml:"accountId,attr"`
	FromDate         string `xml:"fromDate,attr"`
	ToDate           string `xml:"toDate,attr"`
	CashTransactions struct {
		CashTransaction []FlexCashTransaction `xml:"CashTransaction"`
	} `xml:"CashTransactions"`
	ConversionRates struct {
		ConversionRate []FlexConversionRate `xml:"ConversionRate"`
	} `xml:"ConversionRates"`
}

// FlexCashTransaction is a deposit, withdrawal, dividend, interest or fee line.
type FlexCashTransaction struct {
	Currency      string `xml:"currency,attr"`
	Symbol        string `xml:"symbol,attr"`
	Description   string `xml:"description,attr"`
	DateTime      string `xml:"dateTime,attr"`
	Amount        string `xml:"amount,attr"`
	Type          string `xml:"type,attr"`
	TransactionID string `xml:"transactionID,attr"`
	ReportDate    string `xml:"reportDate,attr"`
}

// FlexConversionRate is the broker's daily rate from one currency to another.
type FlexConversionRate struct {
	ReportDate   string `xml:"reportDate,attr"`
	FromCurrency string `xml:"fromCurrency,attr"`
	ToCurrency   string `xml:"toCurrency,attr"`
	Rate         string `xml:"rate,attr"`
}

// Statement is the parsed report of one broker account.
type Statement struct {
	AccountID string
	From, To  time.Time
	Cash      []CashEntry      // oldest first
	Rates     []ConversionRate // oldest first
}

// CashEntry is a signed cash movement.
type CashEntry struct {
	TransactionID string
	Date          time.Time
	Type          string
	Symbol        string
	Currency      string
	Description   string
	Amount        decimal.Decimal
}

// ConversionRate converts one unit of From into To on Date.
type ConversionRate struct {
	Date     time.Time
	From, To string
	Rate     decimal.Decimal
}

// Cash transaction types reported by the broker.
const (
	TypeDeposits         = "Deposits/Withdrawals"
	TypeDividends        = "Dividends"
	TypeInLieu           = "Payment In Lieu Of Dividends"
	TypeInterestReceived = "Broker Interest Received"
)

// ParseStatements decodes a Flex report into one Statement per account.
func ParseStatements(data []byte) ([]Statement, error) {
	var report FlexQueryResponse
	if err := xml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode flex report: %w", err)
	}

	statements := make([]Statement, 0, len(report.FlexStatements.FlexStatement))
	for _, fs := range report.FlexStatements.FlexStatement {
		st, err := parseStatement(fs)
		if err != nil {
			return nil, fmt.Errorf("statement of %s: %w", fs.AccountID, err)
		}
		statements = append(statements, st)
	}
	return statements, nil
}

func parseStatement(fs FlexStatement) (Statement, error) {
	st := Statement{AccountID: fs.AccountID}
	var err error
	if st.From, err = parseDate(fs.FromDate); err != nil {
		return Statement{}, err
	}
	if st.To, err = parseDate(fs.ToDate); err != nil {
		return Statement{}, err
	}

	for _, c := range fs.CashTransactions.CashTransaction {
		date, err := parseDate(c.DateTime)
		if err != nil {
			return Statement{}, fmt.Errorf("cash transaction %s: %w", c.TransactionID, err)
		}
		amount, err := decimal.NewFromString(c.Amount)
		if err != nil {
			return Statement{}, fmt.Errorf("cash transaction %s amount: %w", c.TransactionID, err)
		}
		st.Cash = append(st.Cash, CashEntry{
			TransactionID: c.TransactionID,
			Date:          date,
			Type:          c.Type,
			Symbol:        c.Symbol,
			Currency:      c.Currency,
			Description:   c.Description,
			Amount:        amount,
		})
	}

	for _, r := range fs.ConversionRates.ConversionRate {
		date, err := parseDate(r.ReportDate)
		if err != nil {
			return Statement{}, fmt.Errorf("conversion rate: %w", err)
		}
		rate, err := decimal.NewFromString(r.Rate)
		if err != nil {
			return Statement{}, fmt.Errorf("conversion rate %s/%s: %w", r.FromCurrency, r.ToCurrency, err)
		}
		st.Rates = append(st.Rates, ConversionRate{Date: date, From: r.FromCurrency, To: r.ToCurrency, Rate: rate})
	}

	slices.SortStableFunc(st.Cash, func(a, b CashEntry) int { return a.Date.Compare(b.Date) })
	slices.SortStableFunc(st.Rates, func(a, b ConversionRate) int { return a.Date.Compare(b.Date) })
	return st, nil
}

// parseDate reads the broker's date formats, "20240115" or "2024-01-15", optionally followed by
// ";" and a time of day, which is dropped.
func parseDate(s string) (time.Time, error) {
	day, _, _ := strings.Cut(strings.TrimSpace(s), ";")
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, day); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
