package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/stakepool/internal/commands"
	"github.com/susu3304/stakepool/internal/session"
	"github.com/susu3304/stakepool/internal/transfer"
)

// Minimal session interface for sending channel messages.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts settlement progress to the session's channel.
type Notifier struct {
	session messageSender
}

func NewNotifier(session messageSender) *Notifier {
	return &Notifier{session: session}
}

func (n *Notifier) TransferChanged(ctx context.Context, snap session.Snapshot, tr transfer.Transition) error {
	if snap.ChannelID == "" {
		return nil
	}
	msg := TransferMessage(snap, tr)
	if msg == "" {
		return nil
	}
	return n.post(ctx, snap.ChannelID, "transfer "+snap.SessionID+"/"+tr.TransferID, msg)
}

func (n *Notifier) SessionClosed(ctx context.Context, snap session.Snapshot) error {
	if snap.ChannelID == "" {
		return nil
	}
	return n.post(ctx, snap.ChannelID, "session "+snap.SessionID, commands.FormatSnapshot(snap))
}

// TransferMessage renders a transition for the channel. Empty means stay quiet.
func TransferMessage(snap session.Snapshot, tr transfer.Transition) string {
	t, ok := snap.Transfer(tr.TransferID)
	if !ok {
		return ""
	}
	amount := commands.FormatAmount(t.Amount)
	switch tr.To {
	case transfer.StatusPaymentIndicated:
		return fmt.Sprintf("<@%s> says they sent %s to <@%s> (%s). <@%s>, please confirm with `/pool confirm`.",
			t.FromUserID, amount, t.ToUserID, t.ID, t.ToUserID)
	case transfer.StatusSettled:
		msg := fmt.Sprintf("<@%s> confirmed %s from <@%s> (%s).", t.ToUserID, amount, t.FromUserID, t.ID)
		if snap.Outstanding == 0 {
			msg += " Everything in this session is settled."
		}
		return msg
	case transfer.StatusOverdue:
		return fmt.Sprintf("<@%s>, your payment of %s to <@%s> (%s) is overdue.", t.FromUserID, amount, t.ToUserID, t.ID)
	case transfer.StatusDisputed:
		return fmt.Sprintf("Transfer %s (%s from <@%s> to <@%s>) is disputed.", t.ID, amount, t.FromUserID, t.ToUserID)
	}
	return ""
}

// post sends one message, retrying once when Discord is rate limiting,
// failing server side or the request timed out. what names the session or
// transfer the message is about, for the log.
func (n *Notifier) post(ctx context.Context, channelID, what, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err = n.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil || !retryable(err) {
			break
		}
		log.Printf("notify: %s: attempt %d to channel %s failed: %v", what, attempt, channelID, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt*400+rand.Intn(400)) * time.Millisecond):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("notify %s: %w", what, err)
	}
	return nil
}

func retryable(err error) bool {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		code := rest.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
