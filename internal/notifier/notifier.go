package notifier

// Notifier delivers operational messages to an administrative recipient.
// Sends are best-effort: callers log failures and move on.
type Notifier interface {
	Notify(content string) error
}

// Broadcast fans a notification out to every configured channel. The last
// error wins; partial failure never blocks the remaining channels.
type Broadcast []Notifier

func (b Broadcast) Notify(content string) error {
	var lastErr error

	for _, n := range b {
		if err := n.Notify(content); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
