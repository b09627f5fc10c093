// Package a2a implements the agent-to-agent turn-taking and loop-prevention protocol.
//
// Every agent process runs the same decision logic on its own, without talking to the
// other agents. Decisions are derived from the current message, a bounded slice of the
// shared room history, room metadata and static configuration:
//   - standup rooms: only the facilitator answers humans; agents answer agents only when called by name
//   - knowledge rooms: no exchange limit
//   - general rooms: agent-to-agent exchanges are capped per sender, reply-to-self is always blocked
//
// Nothing is written back to storage, so there is no state to lose on restart.
package a2a

import (
	"context"
	"time"
)

// RoomClass is the derived classification of a room.
type RoomClass string

const (
	RoomStandup   RoomClass = "standup"
	RoomKnowledge RoomClass = "knowledge"
	RoomGeneral   RoomClass = "general"
)

// SenderClass is the derived classification of a message author.
type SenderClass string

const (
	SenderHuman SenderClass = "human"
	SenderAgent SenderClass = "agent"
)

// ReplyTo describes the message a trigger message is replying to.
type ReplyTo struct {
	AuthorID          string `json:"author_id,omitempty"`
	IsBot             bool   `json:"is_bot,omitempty"`
	AuthorDisplayName string `json:"author_display_name,omitempty"`
}

// Metadata carries platform flags attached by the ingress adapter.
type Metadata struct {
	IsBot   bool     `json:"is_bot,omitempty"`
	ReplyTo *ReplyTo `json:"reply_to,omitempty"`
}

// Content is the payload of a log entry.
type Content struct {
	Text              string   `json:"text"`
	SenderDisplayName string   `json:"sender_display_name,omitempty"`
	ChannelName       string   `json:"channel_name,omitempty"` // platform channel name, fallback for room classification
	Metadata          Metadata `json:"metadata"`
}

// Message is one immutable entry of the shared room log.
type Message struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"room_id"`
	SenderEntityID string    `json:"sender_entity_id,omitempty"`
	AgentID        string    `json:"agent_id,omitempty"` // set when an agent runtime authored the message
	Content        Content   `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// senderKey returns the identity used to match the trigger's author against history.
func (m Message) senderKey() string {
	if m.SenderEntityID != "" {
		return m.SenderEntityID
	}
	return m.AgentID
}

// authoredBy reports whether the message was written by the entity with the given id.
func (m Message) authoredBy(id string) bool {
	if id == "" {
		return false
	}
	return m.SenderEntityID == id || m.AgentID == id
}

// Room is read-only room metadata from the registry.
type Room struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	WorldID     string            `json:"world_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Identity is the evaluating agent's own stable id and display name.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// HistoryReader returns the last count messages of a room in ascending creation order.
type HistoryReader interface {
	RecentMessages(ctx context.Context, roomID string, count int) ([]Message, error)
}

// RoomRegistry resolves room metadata. Unknown rooms return (nil, nil).
type RoomRegistry interface {
	GetRoom(ctx context.Context, roomID string) (*Room, error)
}

// Decision is the result of turn arbitration.
type Decision struct {
	ShouldRespond  bool   `json:"should_respond"`
	SkipEvaluation bool   `json:"skip_evaluation"`
	Reason         string `json:"reason"`
}

// GuardState names the loop guard outcome.
type GuardState string

const (
	GuardAllowed       GuardState = "allowed"
	GuardBlockedSelf   GuardState = "blocked-self-reply"
	GuardBlockedBudget GuardState = "blocked-budget-exceeded"
	GuardDisabled      GuardState = "disabled"
	GuardExempt        GuardState = "exempt"
	GuardFailOpen      GuardState = "fail-open"
)

// GuardDecision is the authoritative loop guard result.
type GuardDecision struct {
	ShouldRespond bool       `json:"should_respond"`
	Reason        string     `json:"reason"`
	State         GuardState `json:"state"`
	ResponseCount int        `json:"response_count"`
	MaxExchanges  int        `json:"max_exchanges"`
}

// Stage names the component that produced the final verdict.
type Stage string

const (
	StageArbitrator Stage = "arbitrator"
	StageLoopGuard  Stage = "loop_guard"
	StageOpen       Stage = "open"
)

// Verdict combines arbitration, loop guard and annotation for one inbound message.
type Verdict struct {
	ShouldRespond  bool           `json:"should_respond"`
	NeedsRelevance bool           `json:"needs_relevance"` // downstream relevance evaluation still applies
	Reason         string         `json:"reason"`
	Stage          Stage          `json:"stage"`
	RoomClass      RoomClass      `json:"room_class"`
	SenderClass    SenderClass    `json:"sender_class"`
	Guard          *GuardDecision `json:"guard,omitempty"`
	Guidance       string         `json:"guidance,omitempty"`
}
