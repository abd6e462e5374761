package core

import (
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
)

type Account struct {
	Address      solana.PublicKey `json:"address"`
	Group        solana.PublicKey `json:"group"`
	Authority    solana.PublicKey `json:"authority"`
	AccountFlags AccountFlags     `json:"accountFlags"`
	Balances     []*Balance       `json:"balances"`
}

type AccountFlags uint64

const (
	DisabledFlag                 AccountFlags = 1 << 0
	InFlashloanFlag              AccountFlags = 1 << 1
	FlashloanEnabledFlag         AccountFlags = 1 << 2
	TransferAuthorityAllowedFlag AccountFlags = 1 << 3
)

func (a *Account) SetFlag(flag AccountFlags) {
	a.AccountFlags |= flag
}

func (a *Account) UnsetFlag(flag AccountFlags) {
	a.AccountFlags &= ^flag
}

func (a *Account) GetFlag(flag AccountFlags) bool {
	return a.AccountFlags&flag != 0
}

func (a *Account) Clone() *Account {
	c := *a
	c.Balances = make([]*Balance, len(a.Balances))
	for i, b := range a.Balances {
		c.Balances[i] = b.Clone()
	}
	return &c
}

func (a *Account) ActiveBalances() []*Balance {
	active := make([]*Balance, 0, len(a.Balances))
	for _, b := range a.Balances {
		if b.Active {
			active = append(active, b)
		}
	}
	return active
}

// GetBalance returns the active balance of bank, or nil.
func (a *Account) GetBalance(bank solana.PublicKey) *Balance {
	for _, b := range a.Balances {
		if b.Active && b.BankAddress == bank {
			return b
		}
	}
	return nil
}

// ActiveLiabilityBanks lists banks where the account holds a non-empty liability.
func (a *Account) ActiveLiabilityBanks() []solana.PublicKey {
	var banks []solana.PublicKey
	for _, b := range a.ActiveBalances() {
		if !b.IsEmpty(BalanceSideLiabilities) {
			banks = append(banks, b.BankAddress)
		}
	}
	return banks
}

// ActiveCollateralBanks lists banks where the account holds a non-empty asset.
func (a *Account) ActiveCollateralBanks() []solana.PublicKey {
	var banks []solana.PublicKey
	for _, b := range a.ActiveBalances() {
		if !b.IsEmpty(BalanceSideAssets) {
			banks = append(banks, b.BankAddress)
		}
	}
	return banks
}

// GetAccountHealth is (assets - liabilities) / assets, 1 when either side is zero.
func GetAccountHealth(totalAssets, totalLiabilities fixed.I80F48) (fixed.I80F48, error) {
	if totalLiabilities.IsZero() || totalAssets.IsZero() {
		return ONE, nil
	}
	return totalAssets.Sub(totalLiabilities).Div(totalAssets)
}
