// Package notify sends operator alerts by SES e-mail and SNS topic.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/proxy"
	"affiliate-signup/internal/reaper"
)

// Event types published to SNS.
const (
	EventSubmissionFailed = "affiliate.submission_failed"
	EventOrphansFound     = "affiliate.orphans_found"
)

// Mailer is satisfied by *aws.SESClient.
type Mailer interface {
	SendText(ctx context.Context, to []string, subject, body string) (string, error)
}

// Publisher is satisfied by *aws.SNSClient.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType, subject, message string) (string, error)
}

type Notifier struct {
	mailer     Mailer
	publisher  Publisher
	recipients []string
	logger     logger.Logger
}

// New returns a notifier; either channel may be nil.
func New(mailer Mailer, publisher Publisher, recipients []string, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Notifier{mailer: mailer, publisher: publisher, recipients: recipients, logger: log}
}

var (
	_ proxy.Alerter   = (*Notifier)(nil)
	_ reaper.Notifier = (*Notifier)(nil)
)

// SubmissionFailed reports a final submission that did not complete.
func (n *Notifier) SubmissionFailed(ctx context.Context, report proxy.FailureReport) error {
	subject := fmt.Sprintf("Affiliate signup failed (%s)", report.Mode)

	var b strings.Builder
	fmt.Fprintf(&b, "An affiliate signup failed.\n\n")
	fmt.Fprintf(&b, "Mode: %s\n", report.Mode)
	writeIf(&b, "E-mail", report.Email)
	writeIf(&b, "Affiliate ID", report.AffiliateID)
	writeIf(&b, "Program", report.Program)
	fmt.Fprintf(&b, "Error code: %s\n", report.Code)
	fmt.Fprintf(&b, "Message: %s\n", report.Message)
	if report.UpstreamStatus > 0 {
		fmt.Fprintf(&b, "Upstream status: %d\n", report.UpstreamStatus)
	}

	return n.send(ctx, EventSubmissionFailed, subject, b.String(), report)
}

// OrphansFound reports the outcome of a reaper sweep with anything to say.
func (n *Notifier) OrphansFound(ctx context.Context, report *reaper.Report) error {
	if report == nil || report.Scanned == 0 {
		return nil
	}
	subject := fmt.Sprintf("Affiliate reaper: %d stale signups", report.Scanned)

	var b strings.Builder
	fmt.Fprintf(&b, "Stale staged affiliates: %d\n", report.Scanned)
	fmt.Fprintf(&b, "Deleted: %d\nFlagged: %d\nSkipped: %d\nConflicts: %d\nFailed: %d\n",
		len(report.Deleted), len(report.Flagged), len(report.Skipped), len(report.Conflicts), len(report.Failed))
	for _, e := range report.Entries {
		fmt.Fprintf(&b, "\n- %s <%s> staged %s", e.AffiliateID, e.Email, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	for _, id := range report.Conflicts {
		fmt.Fprintf(&b, "\nCONFLICT %s: deleted upstream but ledger entry had moved on", id)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(&b, "\nFAILED %s: %s", f.AffiliateID, f.Error)
	}

	return n.send(ctx, EventOrphansFound, subject, b.String(), report)
}

// send tries every configured channel and returns the first failure.
func (n *Notifier) send(ctx context.Context, eventType, subject, body string, event interface{}) error {
	var firstErr error

	if n.mailer != nil && len(n.recipients) > 0 {
		if _, err := n.mailer.SendText(ctx, n.recipients, subject, body); err != nil {
			n.logger.Error("Failed to e-mail alert", map[string]interface{}{"event": eventType, "error": err.Error()})
			firstErr = fmt.Errorf("send alert e-mail: %w", err)
		}
	}

	if n.publisher != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", eventType, err)
		}
		if _, err := n.publisher.PublishEvent(ctx, eventType, subject, string(payload)); err != nil {
			n.logger.Error("Failed to publish alert", map[string]interface{}{"event": eventType, "error": err.Error()})
			if firstErr == nil {
				firstErr = fmt.Errorf("publish alert: %w", err)
			}
		}
	}

	return firstErr
}

func writeIf(b *strings.Builder, label, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}
