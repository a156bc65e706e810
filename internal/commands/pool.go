package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/stakepool/internal/pool"
	"github.com/susu3304/stakepool/internal/session"
	"github.com/susu3304/stakepool/internal/stake"
	"github.com/susu3304/stakepool/internal/transfer"
)

// PoolService is the part of pool.Service the slash command drives.
type PoolService interface {
	Snapshot(sessionID string) (session.Snapshot, error)
	MarkPaymentSent(ctx context.Context, sessionID, transferID string) (transfer.Transition, error)
	ConfirmReceipt(ctx context.Context, sessionID, transferID string) (transfer.Transition, error)
	RaiseDispute(ctx context.Context, sessionID, transferID string) (transfer.Transition, error)
	PaymentLink(sessionID, transferID, note string) (string, error)
}

func HandlePool(s *discordgo.Session, i *discordgo.InteractionCreate, svc PoolService) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		respondText(s, i, "No subcommand given")
		return
	}
	sub := data.Options[0]
	respondText(s, i, RunPool(context.Background(), svc, sub.Name, sub.Options))
}

// RunPool executes one /pool subcommand and returns the reply text.
func RunPool(ctx context.Context, svc PoolService, name string, opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	sessionID := getStringOption(opts, "session")
	transferID := getStringOption(opts, "transfer")

	var signal func(context.Context, string, string) (transfer.Transition, error)
	switch name {
	case "status":
		snap, err := svc.Snapshot(sessionID)
		if err != nil {
			return DescribeError(err)
		}
		return FormatSnapshot(snap)
	case "link":
		uri, err := svc.PaymentLink(sessionID, transferID, getStringOption(opts, "note"))
		if err != nil {
			return DescribeError(err)
		}
		return fmt.Sprintf("Pay %s: %s", transferID, uri)
	case "sent":
		signal = svc.MarkPaymentSent
	case "confirm":
		signal = svc.ConfirmReceipt
	case "dispute":
		signal = svc.RaiseDispute
	default:
		return fmt.Sprintf("Unknown subcommand %q", name)
	}

	tr, err := signal(ctx, sessionID, transferID)
	switch {
	case errors.Is(err, pool.ErrNotPersisted):
		return FormatTransition(tr) + "\n(not saved yet; it will be retried)"
	case err != nil:
		return DescribeError(err)
	}
	return FormatTransition(tr)
}

func FormatSnapshot(snap session.Snapshot) string {
	var b strings.Builder
	state := "open"
	if snap.Closed {
		state = "closed"
	}
	fmt.Fprintf(&b, "**Session %s** (%s) pool %s\n", snap.SessionID, state, FormatAmount(snap.PoolSize))

	for _, p := range snap.Participants {
		fmt.Fprintf(&b, "- <@%s> staked %s, %s", p.UserID, FormatAmount(p.StakeAmount), p.Outcome)
		if p.Payout != nil {
			fmt.Fprintf(&b, ", payout %s", FormatAmount(*p.Payout))
		}
		b.WriteString("\n")
	}

	switch {
	case !snap.Closed:
	case snap.UnresolvedPool:
		b.WriteString("Nobody completed; the pool is unresolved\n")
	case len(snap.Transfers) == 0:
		b.WriteString("No transfers needed\n")
	default:
		b.WriteString("Transfers:\n")
		for _, t := range snap.Transfers {
			fmt.Fprintf(&b, "- %s: <@%s> → <@%s> %s [%s]\n", t.ID, t.FromUserID, t.ToUserID, FormatAmount(t.Amount), t.Status)
		}
		if snap.Outstanding > 0 {
			fmt.Fprintf(&b, "Outstanding: %s\n", FormatAmount(snap.Outstanding))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatTransition(tr transfer.Transition) string {
	if !tr.Changed {
		return fmt.Sprintf("Transfer %s is already %s", tr.TransferID, tr.To)
	}
	return fmt.Sprintf("Transfer %s: %s → %s", tr.TransferID, tr.From, tr.To)
}

// DescribeError turns engine errors into something a channel member can act on.
func DescribeError(err error) string {
	var te *transfer.TransitionError
	switch {
	case errors.As(err, &te):
		return fmt.Sprintf("Transfer %s is %s and cannot take %s", te.TransferID, te.Status, te.Event)
	case errors.Is(err, session.ErrSessionNotFound):
		return "No such session"
	case errors.Is(err, session.ErrNotSettled):
		return "Session has not been closed yet"
	case errors.Is(err, transfer.ErrUnknownTransfer):
		return "No such transfer in this session"
	case errors.Is(err, transfer.ErrInvalidRecipient):
		return "The recipient has no Venmo handle on file"
	case errors.Is(err, stake.ErrAlreadyClosed):
		return "Session is already closed"
	default:
		return "Something went wrong: " + err.Error()
	}
}
