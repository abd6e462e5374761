package core

import (
	"strings"

	"github.com/pkg/errors"
)

// ActionType is a simulated user action on one bank.
type ActionType uint8

const (
	ActionSupply ActionType = iota + 1
	ActionBorrow
	ActionRepay
	ActionWithdraw
	ActionRepayAll
	ActionWithdrawAll
)

func (a ActionType) String() string {
	switch a {
	case ActionSupply:
		return "Supply"
	case ActionBorrow:
		return "Borrow"
	case ActionRepay:
		return "Repay"
	case ActionWithdraw:
		return "Withdraw"
	case ActionRepayAll:
		return "RepayAll"
	case ActionWithdrawAll:
		return "WithdrawAll"
	default:
		return "Unknown"
	}
}

func ParseActionType(s string) (ActionType, error) {
	for a := ActionSupply; a <= ActionWithdrawAll; a++ {
		if strings.EqualFold(a.String(), s) {
			return a, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownAction, "%q", s)
}

// IsIncreasing reports whether the action can grow a bank position.
func (a ActionType) IsIncreasing() bool {
	return a == ActionSupply || a == ActionBorrow
}
