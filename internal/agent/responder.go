// Package agent runs one responder per hosted agent: it consumes the agent's inbound
// messages, asks the turn-taking protocol whether to speak, and publishes replies.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/crosstalk/internal/a2a"
	"github.com/nextlevelbuilder/crosstalk/internal/bus"
	"github.com/nextlevelbuilder/crosstalk/internal/metrics"
)

// Outcome is what a responder did with one inbound message.
type Outcome struct {
	Verdict a2a.Verdict
	Reply   string // empty when the agent stayed silent
}

// TurnTaker supplies scripted facilitator posts. ok=false leaves the reply to the
// generator; wrapUp asks for a generated summary after text.
type TurnTaker interface {
	Handoff(msg a2a.Message, v a2a.Verdict) (text string, wrapUp bool, ok bool)
	WrapUpGuidance() string
}

// Responder is the per-agent consumer loop.
type Responder struct {
	protocol    *a2a.Protocol
	bus         bus.MessageRouter
	generator   Generator
	turns       TurnTaker
	history     a2a.HistoryReader
	historySize int
	delay       time.Duration
	tracer      trace.Tracer
}

// ResponderConfig configures a new Responder.
type ResponderConfig struct {
	Protocol    *a2a.Protocol
	Bus         bus.MessageRouter
	Generator   Generator         // nil = NoopGenerator
	History     a2a.HistoryReader // context passed to the generator; nil = none
	HistorySize int               // messages of context (default 20)
	Delay       time.Duration     // pause before generating
	Turns       TurnTaker         // standup facilitator only
}

const defaultHistorySize = 20

// NewResponder creates a responder for the protocol's agent.
func NewResponder(cfg ResponderConfig) *Responder {
	gen := cfg.Generator
	if gen == nil {
		gen = NoopGenerator{}
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = defaultHistorySize
	}
	return &Responder{
		protocol:    cfg.Protocol,
		bus:         cfg.Bus,
		generator:   gen,
		turns:       cfg.Turns,
		history:     cfg.History,
		historySize: size,
		delay:       cfg.Delay,
		tracer:      otel.Tracer("github.com/nextlevelbuilder/crosstalk/internal/agent"),
	}
}

// ID returns the agent id this responder serves.
func (r *Responder) ID() string { return r.protocol.Self().ID }

// Run consumes inbound messages until ctx ends. Per-message failures are logged, not returned.
func (r *Responder) Run(ctx context.Context) error {
	id := r.ID()
	slog.Info("agent responder started", "agent", id)
	for {
		in, ok := r.bus.ConsumeInbound(ctx, id)
		if !ok {
			slog.Info("agent responder stopped", "agent", id)
			return nil
		}
		if _, err := r.Handle(ctx, in); err != nil {
			slog.Error("agent: handle message failed", "agent", id, "message_id", in.Message.ID, "error", err)
		}
	}
}

// Handle evaluates one inbound message and, when the agent may speak, generates and
// publishes a reply.
func (r *Responder) Handle(ctx context.Context, in bus.InboundMessage) (Outcome, error) {
	self := r.protocol.Self()
	msg := in.Message

	ctx, span := r.tracer.Start(ctx, "agent.handle", trace.WithAttributes(
		attribute.String("agent.id", self.ID),
		attribute.String("room.id", msg.RoomID),
		attribute.String("message.id", msg.ID),
		attribute.String("channel", in.Channel),
	))
	defer span.End()

	verdict := r.protocol.Evaluate(ctx, msg)
	metrics.ObserveVerdict(self.ID, verdict)
	span.SetAttributes(
		attribute.Bool("verdict.respond", verdict.ShouldRespond),
		attribute.String("verdict.stage", string(verdict.Stage)),
		attribute.String("room.class", string(verdict.RoomClass)),
		attribute.String("sender.class", string(verdict.SenderClass)),
	)

	out := Outcome{Verdict: verdict}
	if !verdict.ShouldRespond {
		slog.Debug("agent: staying silent",
			"agent", self.ID,
			"room_id", msg.RoomID,
			"stage", verdict.Stage,
			"reason", verdict.Reason,
		)
		return out, nil
	}

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}

	guidance := verdict.Guidance
	var prefix string
	if r.turns != nil {
		if text, wrapUp, ok := r.turns.Handoff(msg, verdict); ok {
			if !wrapUp {
				return r.publish(in, verdict, text, out), nil
			}
			prefix = text
			guidance = r.turns.WrapUpGuidance()
		}
	}

	req := GenerateRequest{
		AgentID:        self.ID,
		AgentName:      self.DisplayName,
		Message:        msg,
		History:        r.context(ctx, msg.RoomID),
		Guidance:       guidance,
		NeedsRelevance: verdict.NeedsRelevance && prefix == "",
		Reason:         verdict.Reason,
	}
	text, err := r.generator.Generate(ctx, req)
	if err != nil {
		metrics.GenerateErrors.WithLabelValues(self.ID).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		if prefix != "" {
			return r.publish(in, verdict, prefix, out), fmt.Errorf("generate wrap-up: %w", err)
		}
		return out, fmt.Errorf("generate reply: %w", err)
	}

	text = SanitizeReply(text)
	if text == "" || IsSilentReply(text) {
		if prefix != "" {
			return r.publish(in, verdict, prefix, out), nil
		}
		slog.Debug("agent: generator chose silence", "agent", self.ID, "room_id", msg.RoomID)
		return out, nil
	}
	if prefix != "" {
		text = prefix + "\n\n" + text
	}
	return r.publish(in, verdict, text, out), nil
}

// publish queues text for the channel the trigger came from. Agent turns in standup
// rooms are posted unthreaded so the next speaker is not answering a reply to itself.
func (r *Responder) publish(in bus.InboundMessage, verdict a2a.Verdict, text string, out Outcome) Outcome {
	self := r.protocol.Self()
	replyTo := in.PlatformMessageID
	if verdict.RoomClass == a2a.RoomStandup && verdict.SenderClass == a2a.SenderAgent {
		replyTo = ""
	}
	r.bus.PublishOutbound(bus.OutboundMessage{
		Channel: in.Channel,
		ChatID:  in.ChatID,
		AgentID: self.ID,
		Content: text,
		ReplyTo: replyTo,
	})
	metrics.RepliesSent.WithLabelValues(self.ID).Inc()
	slog.Info("agent: reply published",
		"agent", self.ID,
		"room_id", in.Message.RoomID,
		"channel", in.Channel,
		"reason", verdict.Reason,
	)
	out.Reply = text
	return out
}

// context reads recent room history for the generator. Failures yield no context.
func (r *Responder) context(ctx context.Context, roomID string) []a2a.Message {
	if r.history == nil {
		return nil
	}
	msgs, err := r.history.RecentMessages(ctx, roomID, r.historySize)
	if err != nil {
		slog.Warn("agent: history for generation unavailable", "agent", r.ID(), "room_id", roomID, "error", err)
		return nil
	}
	return msgs
}
