package settlement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/susu3304/stakepool/internal/stake"
	"github.com/susu3304/stakepool/internal/transfer"
)

var (
	ErrLedgerOpen = errors.New("cannot plan an open stake ledger")
	ErrUnbalanced = errors.New("settlement balances do not net to zero")
)

// Mode decides how forfeited stakes reach the completers.
type Mode string

const (
	// ModePeerToPeer: stakes stay with their owners, so failers pay completers directly.
	ModePeerToPeer Mode = "peer"
	// ModeEscrow: the pool already holds every stake and pays out itself; no peer transfers.
	ModeEscrow Mode = "escrow"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePeerToPeer:
		return ModePeerToPeer, nil
	case ModeEscrow:
		return ModeEscrow, nil
	}
	return "", fmt.Errorf("unknown forfeit mode %q", s)
}

type Policy struct {
	Mode Mode
	// MinimumTransfer waives legs below this amount: they are emitted with
	// status none and carry no obligation. Zero disables it.
	MinimumTransfer int64
}

type Result struct {
	Payouts   map[string]int64
	Transfers []transfer.Transfer
	// UnresolvedPool is set when nobody completed; the pool has no beneficiary.
	UnresolvedPool bool
}

// Plan computes payouts and the transfers that realize them. It reads the
// ledger and never mutates it.
func Plan(ledger *stake.Ledger, policy Policy) (Result, error) {
	if !ledger.Closed() {
		return Result{}, fmt.Errorf("session %s: %w", ledger.SessionID(), ErrLedgerOpen)
	}

	participants := ledger.Participants()
	payouts, unresolved := computePayouts(participants)
	res := Result{Payouts: payouts, UnresolvedPool: unresolved}

	if unresolved || policy.Mode == ModeEscrow {
		return res, nil
	}

	balances := make([]balance, 0, len(participants))
	for _, p := range participants {
		if net := payouts[p.UserID] - p.StakeAmount; net != 0 {
			balances = append(balances, balance{userID: p.UserID, net: net})
		}
	}

	transfers, err := minimize(balances)
	if err != nil {
		return Result{}, fmt.Errorf("session %s: %w", ledger.SessionID(), err)
	}
	for i := range transfers {
		transfers[i].ID = fmt.Sprintf("t%d", i+1)
		transfers[i].Status = transfer.StatusPending
		if transfers[i].Amount < policy.MinimumTransfer {
			transfers[i].Status = transfer.StatusNone
		}
	}
	res.Transfers = transfers
	return res, nil
}

// computePayouts gives failers nothing and splits the forfeited stakes evenly
// across completers; the indivisible remainder goes one unit at a time in
// ascending user id order. participants must already be sorted by user id.
func computePayouts(participants []stake.Participant) (map[string]int64, bool) {
	payouts := make(map[string]int64, len(participants))
	var forfeited int64
	var winners []string
	for _, p := range participants {
		if p.Outcome == stake.OutcomeFailed {
			forfeited += p.StakeAmount
			payouts[p.UserID] = 0
			continue
		}
		winners = append(winners, p.UserID)
		payouts[p.UserID] = p.StakeAmount
	}
	if len(winners) == 0 {
		return payouts, true
	}

	n := int64(len(winners))
	share, rem := forfeited/n, forfeited%n
	for i, id := range winners {
		payouts[id] += share
		if int64(i) < rem {
			payouts[id]++
		}
	}
	return payouts, false
}

type balance struct {
	userID string
	net    int64 // negative owes, positive is owed
}

// minimize pairs the largest debtor with the largest creditor until every
// balance is zero. Ties go to the smaller user id.
func minimize(balances []balance) ([]transfer.Transfer, error) {
	var sum int64
	for _, b := range balances {
		sum += b.net
	}
	if sum != 0 {
		return nil, fmt.Errorf("%w: off by %d", ErrUnbalanced, sum)
	}

	var debtors, creditors []balance
	for _, b := range balances {
		switch {
		case b.net < 0:
			debtors = append(debtors, balance{userID: b.userID, net: -b.net})
		case b.net > 0:
			creditors = append(creditors, b)
		}
	}

	var out []transfer.Transfer
	for len(debtors) > 0 && len(creditors) > 0 {
		sortLargestFirst(debtors)
		sortLargestFirst(creditors)

		d, c := &debtors[0], &creditors[0]
		amt := min(d.net, c.net)
		out = append(out, transfer.Transfer{FromUserID: d.userID, ToUserID: c.userID, Amount: amt})
		d.net -= amt
		c.net -= amt

		if d.net == 0 {
			debtors = debtors[1:]
		}
		if c.net == 0 {
			creditors = creditors[1:]
		}
	}
	return out, nil
}

func sortLargestFirst(bs []balance) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].net != bs[j].net {
			return bs[i].net > bs[j].net
		}
		return bs[i].userID < bs[j].userID
	})
}
