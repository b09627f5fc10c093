package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var errNoHistory = errors.New("no history reader configured")

// exchangeReader performs the one bounded history read behind the loop guard and the annotator.
type exchangeReader struct {
	history  HistoryReader
	lookback int
	timeout  time.Duration
	selfID   string
	round    time.Duration // standup rooms only count exchanges this close to the trigger
}

type historyResult struct {
	msgs []Message
	err  error
}

// count returns how many times self already answered the sender of msg inside the window.
// The read is abandoned when the timeout elapses even if the reader ignores ctx.
func (r *exchangeReader) count(ctx context.Context, msg Message, room RoomClass) (int, error) {
	if r.history == nil {
		return 0, errNoHistory
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ch := make(chan historyResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- historyResult{err: fmt.Errorf("history reader panic: %v", p)}
			}
		}()
		msgs, err := r.history.RecentMessages(ctx, msg.RoomID, r.lookback)
		ch <- historyResult{msgs: msgs, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return 0, fmt.Errorf("read history: %w", res.err)
		}
		window := Window(res.msgs, r.lookback)
		if room == RoomStandup && r.round > 0 && !msg.CreatedAt.IsZero() {
			window = Since(window, msg.CreatedAt.Add(-r.round))
		}
		return CountExchanges(window, r.selfID, msg.senderKey()), nil
	case <-ctx.Done():
		return 0, fmt.Errorf("read history: %w", ctx.Err())
	}
}

// LoopGuard is the authoritative gate for agent-to-agent replies.
type LoopGuard struct {
	enabled    bool
	maxGeneral int
	maxStandup int
	self       Identity
	selfNames  []string
	rooms      *RoomClassifier
	senders    *SenderClassifier
	exchanges  *exchangeReader
}

// Validate reports whether msg comes from an agent and therefore needs the full check.
func (g *LoopGuard) Validate(msg Message) bool {
	class, _ := g.senders.Classify(msg)
	return class == SenderAgent
}

// MaxFor returns the exchange budget for a room class.
func (g *LoopGuard) MaxFor(room RoomClass) int {
	if room == RoomStandup {
		return g.maxStandup
	}
	return g.maxGeneral
}

// Decide returns whether self may reply to msg. It never fails: a history error allows.
func (g *LoopGuard) Decide(ctx context.Context, msg Message) GuardDecision {
	room := g.rooms.Classify(ctx, msg)
	return g.decide(ctx, msg, room)
}

func (g *LoopGuard) decide(ctx context.Context, msg Message, room RoomClass) GuardDecision {
	limit := g.MaxFor(room)
	if !g.enabled {
		return GuardDecision{ShouldRespond: true, Reason: "A2A guard disabled", State: GuardDisabled, MaxExchanges: limit}
	}
	if room == RoomKnowledge {
		return GuardDecision{ShouldRespond: true, Reason: "knowledge room: no exchange limit", State: GuardExempt}
	}
	if !g.Validate(msg) {
		return GuardDecision{ShouldRespond: true, Reason: "human sender: no exchange limit", State: GuardExempt, MaxExchanges: limit}
	}
	if g.isReplyToSelf(msg) {
		return GuardDecision{ShouldRespond: false, Reason: "Message is a reply to own previous message", State: GuardBlockedSelf, MaxExchanges: limit}
	}

	count, err := g.exchanges.count(ctx, msg, room)
	if err != nil {
		slog.Warn("a2a.fail_open", "agent", g.self.ID, "room_id", msg.RoomID, "message_id", msg.ID, "error", err)
		return GuardDecision{ShouldRespond: true, Reason: "history unavailable, allowing", State: GuardFailOpen, MaxExchanges: limit}
	}
	if count >= limit {
		return GuardDecision{
			ShouldRespond: false,
			Reason:        fmt.Sprintf("Already responded %d times to this agent (max: %d)", count, limit),
			State:         GuardBlockedBudget,
			ResponseCount: count,
			MaxExchanges:  limit,
		}
	}
	return GuardDecision{
		ShouldRespond: true,
		Reason:        fmt.Sprintf("A2A exchange allowed (%d/%d)", count, limit),
		State:         GuardAllowed,
		ResponseCount: count,
		MaxExchanges:  limit,
	}
}

// isReplyToSelf matches the reply target by id, then by display name under the roster rule.
func (g *LoopGuard) isReplyToSelf(msg Message) bool {
	rt := msg.Content.Metadata.ReplyTo
	if rt == nil {
		return false
	}
	if rt.AuthorID != "" && strings.EqualFold(rt.AuthorID, g.self.ID) {
		return true
	}
	return nameMatches(rt.AuthorDisplayName, g.selfNames)
}
