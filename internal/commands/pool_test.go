package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/stakepool/internal/pool"
	"github.com/susu3304/stakepool/internal/session"
	"github.com/susu3304/stakepool/internal/settlement"
	"github.com/susu3304/stakepool/internal/stake"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{1234, "$12.34"},
		{-250, "-$2.50"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.cents); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func opts(pairs ...string) []*discordgo.ApplicationCommandInteractionDataOption {
	var out []*discordgo.ApplicationCommandInteractionDataOption
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &discordgo.ApplicationCommandInteractionDataOption{
			Name:  pairs[i],
			Type:  discordgo.ApplicationCommandOptionString,
			Value: pairs[i+1],
		})
	}
	return out
}

func closedSession(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(settlement.Policy{Mode: settlement.ModePeerToPeer})
	if _, err := m.Create("s1", "c1", []stake.Entry{
		{UserID: "111", StakeAmount: 1000, VenmoHandle: "winner"},
		{UserID: "222", StakeAmount: 1000},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.MarkOutcome("s1", "222", stake.OutcomeFailed); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Close("s1"); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRunPool(t *testing.T) {
	m := closedSession(t)
	svc := pool.NewService(m, nil)
	ctx := context.Background()

	status := RunPool(ctx, svc, "status", opts("session", "s1"))
	for _, want := range []string{"Session s1", "(closed)", "$20.00", "t1: <@222> → <@111> $10.00 [pending]", "Outstanding: $10.00"} {
		if !strings.Contains(status, want) {
			t.Errorf("status missing %q:\n%s", want, status)
		}
	}

	tests := []struct {
		sub  string
		args []string
		want string
	}{
		{"confirm", []string{"session", "s1", "transfer", "t1"}, "Transfer t1 is pending and cannot take receipt_confirmed"},
		{"sent", []string{"session", "s1", "transfer", "t1"}, "Transfer t1: pending → payment_indicated"},
		{"sent", []string{"session", "s1", "transfer", "t1"}, "Transfer t1 is already payment_indicated"},
		{"link", []string{"session", "s1", "transfer", "t1"}, "venmo://paycharge?txn=pay&amount=10.00&recipients=winner"},
		{"sent", []string{"session", "nope", "transfer", "t1"}, "No such session"},
		{"dispute", []string{"session", "s1", "transfer", "t7"}, "No such transfer"},
		{"bogus", nil, "Unknown subcommand"},
	}
	for _, tt := range tests {
		if got := RunPool(ctx, svc, tt.sub, opts(tt.args...)); !strings.Contains(got, tt.want) {
			t.Errorf("%s %v = %q, want it to contain %q", tt.sub, tt.args, got, tt.want)
		}
	}
}

func TestFormatSnapshot_Open(t *testing.T) {
	m := session.NewManager(settlement.Policy{})
	snap, _ := m.Create("s2", "", []stake.Entry{{UserID: "1", StakeAmount: 300}})
	got := FormatSnapshot(snap)
	if !strings.Contains(got, "(open)") || strings.Contains(got, "Transfers") {
		t.Errorf("open snapshot rendered as:\n%s", got)
	}
}
