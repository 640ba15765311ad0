// Package mail dispatches the finished report to the operations recipient.
// Delivery is a thin boundary over the host MTA; the auditor owns none of
// the transport.
package mail

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Mailer sends a file as the body of a message.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, bodyPath string) error
}

// MuttMailer shells out to mutt on the host.
type MuttMailer struct{}

func (MuttMailer) Send(ctx context.Context, recipient, subject, bodyPath string) error {
	body, err := os.Open(bodyPath)
	if err != nil {
		return fmt.Errorf("mail: open body %s: %w", bodyPath, err)
	}
	defer body.Close()

	cmd := exec.CommandContext(ctx, "mutt", "-s", subject, recipient)
	cmd.Stdin = body
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mail: mutt to %s: %w (%s)", recipient, err, out)
	}
	return nil
}

// NopMailer discards messages; used when no recipient is configured.
type NopMailer struct{}

func (NopMailer) Send(ctx context.Context, recipient, subject, bodyPath string) error {
	return nil
}
