package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/trialdata-api/internal/email"
	"github.com/jwalitptl/trialdata-api/internal/model"
	"github.com/jwalitptl/trialdata-api/internal/service/derivation"
	"github.com/jwalitptl/trialdata-api/pkg/logger"
)

type RunProcessorConfig struct {
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// RunProcessor polls for queued derivation runs and executes them one at a
// time. Claiming marks the run running inside the database, so several
// processors can share a queue safely.
type RunProcessor struct {
	service *derivation.Service
	email   email.Service
	config  RunProcessorConfig
	logger  *logger.Logger
}

func NewRunProcessor(
	service *derivation.Service,
	emailSvc email.Service,
	config RunProcessorConfig,
	logger *logger.Logger,
) *RunProcessor {
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &RunProcessor{
		service: service,
		email:   emailSvc,
		config:  config,
		logger:  logger,
	}
}

func (p *RunProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting run processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down run processor")
			return
		case <-ticker.C:
			if err := p.processQueued(ctx); err != nil {
				p.logger.Error(err, "Failed to process queued runs")
			}
		}
	}
}

// processQueued drains the queue: claims and executes runs until none remain.
func (p *RunProcessor) processQueued(ctx context.Context) error {
	for {
		run, err := p.service.ClaimNext(ctx)
		if err != nil {
			return fmt.Errorf("failed to claim run: %w", err)
		}
		if run == nil {
			return nil
		}

		if err := p.processRun(ctx, run); err != nil {
			p.logger.Error(err, "Run execution failed",
				"run_id", run.ID.String(),
				"study_id", run.StudyID)
		}
	}
}

func (p *RunProcessor) processRun(ctx context.Context, run *model.DerivationRun) error {
	err := retry(p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.service.ExecuteRun(ctx, run)
	})

	p.notify(ctx, run, err)
	return err
}

// notify mails the outcome to the address attached to the run, when one was
// given and mailing is configured. Delivery failure never fails the run.
func (p *RunProcessor) notify(ctx context.Context, run *model.DerivationRun, execErr error) {
	if p.email == nil || run.Notify == nil || *run.Notify == "" {
		return
	}

	var err error
	if execErr != nil {
		err = p.email.SendRunFailure(ctx, *run.Notify, run)
	} else {
		var report *model.BatchReport
		if report, err = p.service.GetReport(ctx, run.ID); err == nil {
			err = p.email.SendRunReport(ctx, *run.Notify, report)
		}
	}
	if err != nil {
		p.logger.Error(err, "Failed to send run notification",
			"run_id", run.ID.String(),
			"notify", *run.Notify)
	}
}

func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
