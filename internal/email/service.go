package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/trialdata-api/internal/config"
	"github.com/jwalitptl/trialdata-api/internal/model"
)

type Service interface {
	SendRunReport(ctx context.Context, to string, report *model.BatchReport) error
	SendRunFailure(ctx context.Context, to string, run *model.DerivationRun) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPService(cfg config.EmailConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendRunReport(ctx context.Context, to string, report *model.BatchReport) error {
	body := fmt.Sprintf(
		"Derivation run %s for study %s completed.\n\n"+
			"Records derived: %d\nBaselines flagged: %d\nSubjects: %d\nSubjects rejected: %d\n",
		report.RunID, report.StudyID,
		report.RecordCount, report.BaselineCount,
		report.SubjectsTotal, len(report.SubjectsRejected),
	)
	for _, rej := range report.SubjectsRejected {
		body += fmt.Sprintf("  - %s: %s\n", rej.SubjectID, rej.Detail)
	}

	subject := fmt.Sprintf("[trialdata] run completed: %s", report.StudyID)
	return s.send(to, subject, body)
}

func (s *smtpService) SendRunFailure(ctx context.Context, to string, run *model.DerivationRun) error {
	reason := "unknown"
	if run.Error != nil {
		reason = *run.Error
	}
	body := fmt.Sprintf("Derivation run %s for study %s failed: %s\n", run.ID, run.StudyID, reason)
	subject := fmt.Sprintf("[trialdata] run FAILED: %s", run.StudyID)
	return s.send(to, subject, body)
}

func (s *smtpService) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
