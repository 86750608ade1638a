package ledger

// Divergence is one position where two traces disagree. A nil step means the
// corresponding trace ended before this position.
type Divergence struct {
	Position int   `json:"position"`
	A        *Step `json:"a,omitempty"`
	B        *Step `json:"b,omitempty"`
}

// Diff structurally compares two transition traces and returns the divergent
// positions. Sequence numbers are ignored: two traces diverge only when the
// transitions themselves (node, attempt, states, reason) differ.
func Diff(a, b []Step) []Divergence {
	var out []Divergence
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var sa, sb *Step
		if i < len(a) {
			s := a[i]
			sa = &s
		}
		if i < len(b) {
			s := b[i]
			sb = &s
		}
		if sa != nil && sb != nil && sameStep(*sa, *sb) {
			continue
		}
		out = append(out, Divergence{Position: i, A: sa, B: sb})
	}
	return out
}

func sameStep(a, b Step) bool {
	return a.NodeID == b.NodeID &&
		a.Attempt == b.Attempt &&
		a.From == b.From &&
		a.To == b.To &&
		a.Reason == b.Reason
}
