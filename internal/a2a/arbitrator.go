package a2a

import "strings"

// Arbitrator decides standup turn-taking without reading history.
type Arbitrator struct {
	self          Identity
	isFacilitator bool
	address       *AddressMatcher
}

// NewArbitrator creates an arbitrator for self. selfNames are the lowercased display
// name and aliases of self; facilitator is the facilitator's display name.
func NewArbitrator(self Identity, selfNames []string, facilitator string) *Arbitrator {
	f := strings.ToLower(strings.TrimSpace(facilitator))
	isFac := false
	for _, n := range selfNames {
		if f != "" && n == f {
			isFac = true
			break
		}
	}
	return &Arbitrator{
		self:          self,
		isFacilitator: isFac,
		address:       NewAddressMatcher(selfNames),
	}
}

// IsFacilitator reports whether self is the standup facilitator.
func (a *Arbitrator) IsFacilitator() bool { return a.isFacilitator }

// Arbitrate returns the turn decision for msg given its room and sender classes.
func (a *Arbitrator) Arbitrate(msg Message, room RoomClass, sender SenderClass) Decision {
	switch room {
	case RoomStandup:
		if sender == SenderHuman {
			if a.isFacilitator {
				return Decision{ShouldRespond: true, SkipEvaluation: true,
					Reason: "standup: human message, single responder is the facilitator"}
			}
			return Decision{ShouldRespond: false, SkipEvaluation: true,
				Reason: "standup: human message, only facilitator responds"}
		}
		if form, ok := a.address.Match(msg.Content.Text); ok {
			return Decision{ShouldRespond: true, SkipEvaluation: true,
				Reason: "standup: called by name (" + form + ")"}
		}
		if a.isFacilitator {
			return Decision{ShouldRespond: true, SkipEvaluation: true,
				Reason: "standup: facilitator takes the turn after a report"}
		}
		return Decision{ShouldRespond: false, SkipEvaluation: true,
			Reason: "standup: agent message, not called by name"}
	case RoomKnowledge:
		return Decision{ShouldRespond: true, SkipEvaluation: false,
			Reason: "knowledge room: no exchange limit, needs relevance evaluation"}
	default:
		return Decision{ShouldRespond: true, SkipEvaluation: false,
			Reason: "needs full relevance evaluation"}
	}
}
