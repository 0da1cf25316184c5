package reconcile

import (
	"context"
	"fmt"
)

// Decision is the outcome of the confirmation gate.
type Decision struct {
	// Mutate is false when live state already matches every folder.
	Mutate      bool   `json:"mutate"`
	TotalToOpen int    `json:"total_to_open"`
	Preview     string `json:"preview,omitempty"`
}

// Decide turns the dry-run plans into a single preview. A run that would not
// change anything produces no preview at all.
func Decide(plans []Plan) Decision {
	total := 0
	for _, p := range plans {
		total += p.ToOpen
	}
	if total > 0 {
		return Decision{
			Mutate:      true,
			TotalToOpen: total,
			Preview: fmt.Sprintf("About to open %d bookmark link%s and group them by their folder titles. Continue?",
				total, plural(total)),
		}
	}
	for _, p := range plans {
		if !p.GroupingSatisfied {
			return Decision{Mutate: true, Preview: "Group open tabs by bookmark folder titles?"}
		}
	}
	return Decision{}
}

// Approver blocks until a human accepts or rejects the preview.
type Approver interface {
	Approve(ctx context.Context, preview string) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, preview string) (bool, error)

// Approve calls f.
func (f ApproverFunc) Approve(ctx context.Context, preview string) (bool, error) {
	return f(ctx, preview)
}

// AutoApprove accepts every preview.
var AutoApprove = ApproverFunc(func(context.Context, string) (bool, error) { return true, nil })

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
