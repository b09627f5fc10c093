package a2a

import (
	"sort"
	"time"
)

// Window returns the last lookback messages of history in ascending CreatedAt order.
// The input slice is not modified; ties keep their original order.
func Window(history []Message, lookback int) []Message {
	w := append([]Message(nil), history...)
	sort.SliceStable(w, func(i, j int) bool { return w[i].CreatedAt.Before(w[j].CreatedAt) })
	if lookback > 0 && len(w) > lookback {
		w = w[len(w)-lookback:]
	}
	return w
}

// Since drops window entries created before cutoff. Entries without a timestamp are kept.
func Since(window []Message, cutoff time.Time) []Message {
	out := window[:0:0]
	for _, m := range window {
		if m.CreatedAt.IsZero() || !m.CreatedAt.Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// CountExchanges counts adjacent pairs in window where the message at i was written by
// selfID and the message at i-1 came from senderKey.
func CountExchanges(window []Message, selfID, senderKey string) int {
	if selfID == "" || senderKey == "" {
		return 0
	}
	n := 0
	for i := 1; i < len(window); i++ {
		if window[i].authoredBy(selfID) && window[i-1].authoredBy(senderKey) {
			n++
		}
	}
	return n
}
