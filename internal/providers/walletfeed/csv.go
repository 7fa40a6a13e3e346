// Package walletfeed reads wallet-to-company pairs from the analytics
// export, either a CSV file or the analytics Postgres database.
package walletfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
)

const (
	columnWallet  = "wallet_address"
	columnCompany = "company_name"
)

// CSVFeed reads pairs from a CSV document. A header row naming
// wallet_address and company_name is honored in any column order; without
// it the first two columns are wallet then company.
type CSVFeed struct {
	name string
	open func() (io.ReadCloser, error)
}

func NewCSVFile(path string) *CSVFeed {
	return &CSVFeed{
		name: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewCSVReader wraps an already open document, such as an upload body. It
// can be read once.
func NewCSVReader(name string, r io.Reader) *CSVFeed {
	return &CSVFeed{
		name: name,
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}

func (f *CSVFeed) Pairs(ctx context.Context) ([]domain.WalletPair, error) {
	rc, err := f.open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.name, err)
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	walletIdx, companyIdx := 0, 1
	var pairs []domain.WalletPair
	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", f.name, row+1, err)
		}
		if row == 0 {
			if w, c, ok := headerColumns(record); ok {
				walletIdx, companyIdx = w, c
				continue
			}
		}
		if row%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if pair, ok := pairFrom(record, walletIdx, companyIdx); ok {
			pairs = append(pairs, pair)
		}
	}
	return pairs, nil
}

func headerColumns(record []string) (int, int, bool) {
	walletIdx, companyIdx := -1, -1
	for i, header := range record {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))) {
		case columnWallet:
			walletIdx = i
		case columnCompany:
			companyIdx = i
		}
	}
	if walletIdx < 0 || companyIdx < 0 {
		return 0, 0, false
	}
	return walletIdx, companyIdx, true
}

// pairFrom skips rows where either side is blank.
func pairFrom(record []string, walletIdx, companyIdx int) (domain.WalletPair, bool) {
	if walletIdx >= len(record) || companyIdx >= len(record) {
		return domain.WalletPair{}, false
	}
	wallet := strings.TrimSpace(record[walletIdx])
	company := strings.TrimSpace(record[companyIdx])
	if wallet == "" || company == "" {
		return domain.WalletPair{}, false
	}
	return domain.WalletPair{WalletAddress: wallet, CompanyName: company}, true
}
