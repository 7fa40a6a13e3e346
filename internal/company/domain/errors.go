package domain

import "errors"

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidWallet  = errors.New("invalid_wallet")
	ErrInvalidID      = errors.New("invalid_id")
	ErrUnknownColumn  = errors.New("unknown_column")
	ErrCompanyMissing = errors.New("company_not_found")

	ErrDuplicateCompany = errors.New("duplicate_company")
)
