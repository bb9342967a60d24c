// Package notifier delivers short operational messages (job summaries,
// failures) to humans. Delivery is best effort: implementations log their own
// failures and never return them, so a broken channel cannot break the caller.
package notifier

import "context"

// Notifier sends a free-text message.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Nop discards every message.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string) {}

// Multi fans a message out to several notifiers in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, message string) {
	for _, n := range m {
		n.Notify(ctx, message)
	}
}

// Combine returns the notifiers as one, skipping nils. With nothing
// configured it returns Nop.
func Combine(notifiers ...Notifier) Notifier {
	var out Multi
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	}
	return out
}
