package a2a

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/crosstalk/internal/config"
)

// Defaults used when the corresponding config value is zero or negative.
const (
	DefaultMaxExchanges        = 3
	DefaultStandupMaxExchanges = 1
	DefaultLookbackMessages    = 10
	DefaultHistoryTimeout      = 2 * time.Second
	DefaultStandupRound        = time.Hour
)

// Protocol is the per-agent decision contract. It is safe for concurrent use and holds
// no mutable state.
type Protocol struct {
	self       Identity
	roster     *Roster
	rooms      *RoomClassifier
	senders    *SenderClassifier
	arbitrator *Arbitrator
	guard      *LoopGuard
	annotator  *Annotator
}

// New builds the protocol for the agent self. history and registry may be nil: a nil
// registry classifies rooms from the message alone, a nil history makes the guard fail open.
func New(cfg config.A2AConfig, self Identity, roster *Roster, history HistoryReader, registry RoomRegistry) *Protocol {
	if roster == nil {
		roster = NewRoster(nil)
	}
	names := selfNames(self, roster)

	maxGeneral := cfg.MaxExchanges
	if maxGeneral <= 0 {
		maxGeneral = DefaultMaxExchanges
	}
	maxStandup := cfg.StandupMaxExchanges
	if maxStandup <= 0 {
		maxStandup = DefaultStandupMaxExchanges
	}
	lookback := cfg.LookbackMessages
	if lookback <= 0 {
		lookback = DefaultLookbackMessages
	}
	timeout := cfg.HistoryTimeout()
	if timeout <= 0 {
		timeout = DefaultHistoryTimeout
	}
	round := time.Duration(cfg.StandupRoundMinutes) * time.Minute
	if round <= 0 {
		round = DefaultStandupRound
	}

	rooms := NewRoomClassifier(registry, cfg.StandupChannelNames, cfg.KnowledgeChannelNames)
	senders := NewSenderClassifier(roster, cfg.KnownHumans)
	arb := NewArbitrator(self, names, cfg.Facilitator)
	guard := &LoopGuard{
		enabled:    cfg.GuardEnabled(),
		maxGeneral: maxGeneral,
		maxStandup: maxStandup,
		self:       self,
		selfNames:  names,
		rooms:      rooms,
		senders:    senders,
		exchanges: &exchangeReader{
			history:  history,
			lookback: lookback,
			timeout:  timeout,
			selfID:   self.ID,
			round:    round,
		},
	}
	return &Protocol{
		self:       self,
		roster:     roster,
		rooms:      rooms,
		senders:    senders,
		arbitrator: arb,
		guard:      guard,
		annotator: &Annotator{
			self:            self,
			facilitator:     cfg.Facilitator,
			isFacilitator:   arb.IsFacilitator(),
			singleResponder: cfg.SingleResponder(),
			guard:           guard,
		},
	}
}

// Self returns the identity this protocol decides for.
func (p *Protocol) Self() Identity { return p.self }

// LoopGuard returns the authoritative agent-to-agent gate.
func (p *Protocol) LoopGuard() *LoopGuard { return p.guard }

// ClassifyAndArbitrate routes msg by room and sender class.
func (p *Protocol) ClassifyAndArbitrate(ctx context.Context, msg Message) Decision {
	room := p.rooms.Classify(ctx, msg)
	class, _ := p.senders.Classify(msg)
	return p.arbitrator.Arbitrate(msg, room, class)
}

// AnnotateContext returns generation guidance for msg, possibly empty.
func (p *Protocol) AnnotateContext(ctx context.Context, msg Message) string {
	return p.annotator.Annotate(ctx, msg)
}

// Evaluate runs arbitration, then the loop guard and the annotator concurrently, and
// folds the results into one verdict.
func (p *Protocol) Evaluate(ctx context.Context, msg Message) Verdict {
	room := p.rooms.Classify(ctx, msg)
	class, member := p.senders.Classify(msg)
	decision := p.arbitrator.Arbitrate(msg, room, class)

	v := Verdict{
		ShouldRespond:  decision.ShouldRespond,
		NeedsRelevance: !decision.SkipEvaluation,
		Reason:         decision.Reason,
		Stage:          StageArbitrator,
		RoomClass:      room,
		SenderClass:    class,
	}
	if !decision.SkipEvaluation {
		v.Stage = StageOpen
	}

	runGuard := decision.ShouldRespond && class == SenderAgent && room != RoomKnowledge

	var g errgroup.Group
	var guard GuardDecision
	if runGuard {
		g.Go(func() error {
			guard = p.guard.decide(ctx, msg, room)
			return nil
		})
	}
	g.Go(func() error {
		v.Guidance = p.annotator.annotate(ctx, msg, room, class, member)
		return nil
	})
	_ = g.Wait()

	if runGuard {
		v.Guard = &guard
		if !guard.ShouldRespond {
			v.ShouldRespond = false
			v.NeedsRelevance = false
			v.Reason = guard.Reason
			v.Stage = StageLoopGuard
		} else {
			v.Reason = decision.Reason + "; " + guard.Reason
		}
	}
	return v
}

// selfNames returns the lowercased display name and aliases of self, merged with the
// roster entry carrying the same id.
func selfNames(self Identity, roster *Roster) []string {
	var names []string
	seen := make(map[string]bool)
	add := func(n string) {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	add(self.DisplayName)
	if m, ok := roster.Get(self.ID); ok {
		for _, n := range m.Names() {
			add(n)
		}
	}
	return names
}
