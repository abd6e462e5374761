package oracle

import "github.com/pkg/errors"

var (
	ErrInvalidOracleData = errors.New("invalid oracle data")
	ErrMissingFeedId     = errors.New("no oracle key found for feed id")
	ErrNoOracleAccount   = errors.New("neither sponsored oracle account exists")
)
