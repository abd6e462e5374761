package core

import (
	"context"
	"sort"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
)

type (
	// PriceResolver resolves one price per bank, keyed by base58 bank address.
	PriceResolver interface {
		Resolve(ctx context.Context, banks []*Bank) (map[string]*OraclePrice, error)
	}

	// Snapshot is a consistent set of banks and prices for one evaluation pass.
	Snapshot struct {
		Banks     map[string]*Bank        `json:"banks"`
		Prices    map[string]*OraclePrice `json:"prices"`
		Timestamp int64                   `json:"timestamp,string"`
	}
)

func NewSnapshot(clk clock.Clock, banks []*Bank, prices map[string]*OraclePrice) *Snapshot {
	s := &Snapshot{
		Banks:     make(map[string]*Bank, len(banks)),
		Prices:    prices,
		Timestamp: clk.Now().Unix(),
	}
	for _, b := range banks {
		s.Banks[b.Key()] = b
	}
	return s
}

// LoadSnapshot resolves prices for banks and bundles them.
func LoadSnapshot(ctx context.Context, clk clock.Clock, resolver PriceResolver, banks []*Bank) (*Snapshot, error) {
	prices, err := resolver.Resolve(ctx, banks)
	if err != nil {
		return nil, errors.Wrap(err, "resolve prices")
	}
	return NewSnapshot(clk, banks, prices), nil
}

// BankList returns the banks ordered by address.
func (s *Snapshot) BankList() []*Bank {
	keys := make([]string, 0, len(s.Banks))
	for k := range s.Banks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	banks := make([]*Bank, 0, len(keys))
	for _, k := range keys {
		banks = append(banks, s.Banks[k])
	}
	return banks
}

func (s *Snapshot) EmodePairs() []EmodePair {
	return GetEmodePairs(s.BankList())
}

// WithAccruedInterest returns a snapshot whose banks accrued interest up to its timestamp.
func (s *Snapshot) WithAccruedInterest(log Log) (*Snapshot, error) {
	c := &Snapshot{
		Banks:     make(map[string]*Bank, len(s.Banks)),
		Prices:    s.Prices,
		Timestamp: s.Timestamp,
	}
	for k, b := range s.Banks {
		accrued, err := b.WithAccruedInterest(log, s.Timestamp)
		if err != nil {
			return nil, err
		}
		c.Banks[k] = accrued
	}
	return c, nil
}

func (s *Snapshot) NewRiskEngine(account *Account, opts ...RiskEngineOption) (*RiskEngine, error) {
	return NewRiskEngine(account, s.Banks, s.Prices, opts...)
}
