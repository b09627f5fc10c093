package a2a

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Annotator turns the same exchange facts the loop guard uses into generation guidance.
// It never blocks; the loop guard stays authoritative.
type Annotator struct {
	self            Identity
	facilitator     string
	isFacilitator   bool
	singleResponder bool
	guard           *LoopGuard
}

// Annotate returns guidance for msg, possibly empty.
func (a *Annotator) Annotate(ctx context.Context, msg Message) string {
	room := a.guard.rooms.Classify(ctx, msg)
	class, member := a.guard.senders.Classify(msg)
	return a.annotate(ctx, msg, room, class, member)
}

func (a *Annotator) annotate(ctx context.Context, msg Message, room RoomClass, class SenderClass, member *Member) string {
	if class == SenderHuman {
		if room == RoomStandup && a.singleResponder && !a.isFacilitator {
			return a.standupIgnore()
		}
		return humanPriority()
	}

	sender := senderName(msg, member)
	var b strings.Builder
	fmt.Fprintf(&b, "## Agent-to-Agent Conversation\n\nYou are talking with %s, another AI agent.\n\n", sender)

	if room == RoomKnowledge {
		b.WriteString("This is a knowledge room: collaborate freely, there is no exchange limit. " +
			"Respond only if you have something useful to add.")
		return b.String()
	}

	count, err := a.guard.exchanges.count(ctx, msg, room)
	if err != nil {
		slog.Debug("a2a.annotate_history_unavailable", "agent", a.self.ID, "room_id", msg.RoomID, "error", err)
		b.WriteString("Keep the exchange short and purposeful. Respond only if it adds value.")
		return b.String()
	}
	limit := a.guard.MaxFor(room)
	switch {
	case count >= limit:
		fmt.Fprintf(&b, "SYSTEM OVERRIDE: you have already responded %d times to %s (max: %d). "+
			"IGNORE this message. Do not generate any reply.", count, sender, limit)
	case count == limit-1:
		fmt.Fprintf(&b, "This is your LAST reply to %s in this exchange (%d/%d). "+
			"Wrap up the conversation naturally, e.g. \"good talk, catch you later\".", sender, count+1, limit)
	default:
		fmt.Fprintf(&b, "You may respond (exchange %d/%d). Keep it concise and avoid repeating yourself.", count+1, limit)
	}
	return b.String()
}

func (a *Annotator) standupIgnore() string {
	fac := a.facilitator
	if fac == "" {
		fac = "the facilitator"
	}
	return fmt.Sprintf("## Standup Channel\n\nIGNORE this human message. Do not reply. "+
		"%s is facilitating this standup and answers human messages here. "+
		"Speak only when %s calls on you by name.", fac, fac)
}

func humanPriority() string {
	return "## HUMAN MESSAGE\n\nThis message is from a human. PRIORITY RESPONSE: answer it directly; " +
		"agent exchange limits do not apply."
}

func senderName(msg Message, member *Member) string {
	if member != nil && member.DisplayName != "" {
		return member.DisplayName
	}
	if n := strings.TrimSpace(msg.Content.SenderDisplayName); n != "" {
		return n
	}
	return "another agent"
}
