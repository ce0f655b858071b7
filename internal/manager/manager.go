package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/stagingmanager/internal/common"
	"github.com/dmitrijs2005/stagingmanager/internal/logging"
	"github.com/dmitrijs2005/stagingmanager/internal/models"
)

const (
	HandlerCreate  = "create"
	HandlerCleanup = "cleanup"

	OutcomeHandled = "handled"
	OutcomeIgnored = "ignored"
	OutcomeFailed  = "failed"

	AttemptSuccess = "success"
	AttemptFailure = "failure"

	CompletionDone      = "completed"
	CompletionExhausted = "exhausted"
)

type StagingManager struct {
	submissions SubmissionService
	staging     StagingService
	logger      logging.Logger
	metrics     Recorder

	refField            models.RefField
	completeAttempts    int
	completeDelay       time.Duration
	completeWithoutArea bool
}

type Option func(*StagingManager)

// WithRefField selects the credentials field read as the area reference.
func WithRefField(f models.RefField) Option {
	return func(m *StagingManager) { m.refField = f }
}

// WithCompletePolicy sets the total number of completion attempts and the
// pause between them. Non-positive values keep the defaults.
func WithCompletePolicy(attempts int, delay time.Duration) Option {
	return func(m *StagingManager) {
		if attempts > 0 {
			m.completeAttempts = attempts
		}
		if delay > 0 {
			m.completeDelay = delay
		}
	}
}

// WithCompleteWithoutArea completes submissions whose cleanup event embeds
// the uuid even when no staging area was found.
func WithCompleteWithoutArea(v bool) Option {
	return func(m *StagingManager) { m.completeWithoutArea = v }
}

func WithRecorder(r Recorder) Option {
	return func(m *StagingManager) { m.metrics = r }
}

func NewStagingManager(submissions SubmissionService, staging StagingService, logger logging.Logger, opts ...Option) *StagingManager {
	m := &StagingManager{
		submissions:      submissions,
		staging:          staging,
		logger:           logger.With("module", "staging_manager"),
		metrics:          nopRecorder{},
		refField:         models.RefURN,
		completeAttempts: 5,
		completeDelay:    1 * time.Second,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ignore logs why a message was skipped. The message counts as handled.
func (m *StagingManager) ignore(ctx context.Context, handler string, err error) error {
	if errors.Is(err, common.ErrMalformedMessage) {
		m.logger.Warn(ctx, "ignoring malformed message", "handler", handler, "error", err)
	} else {
		m.logger.Debug(ctx, "ignoring message without documentId", "handler", handler)
	}
	m.metrics.Message(handler, OutcomeIgnored)
	return nil
}

// warnInvalidUUID reports a documentUuid that was dropped during parsing.
func (m *StagingManager) warnInvalidUUID(ctx context.Context, log logging.Logger, msg models.SubmissionMessage) {
	if msg.InvalidUUID != "" {
		log.Warn(ctx, "documentUuid is not a valid uuid, resolving it from the submission", "document_uuid", msg.InvalidUUID)
	}
}

func (m *StagingManager) finish(handler string, err error) error {
	if err != nil {
		m.metrics.Message(handler, OutcomeFailed)
		return err
	}
	m.metrics.Message(handler, OutcomeHandled)
	return nil
}

// CreateUploadArea handles an upload area create event.
func (m *StagingManager) CreateUploadArea(ctx context.Context, body []byte) error {
	msg, err := models.ParseSubmissionMessage(body)
	if err != nil {
		return m.ignore(ctx, HandlerCreate, err)
	}
	return m.finish(HandlerCreate, m.createUploadArea(ctx, msg))
}

func (m *StagingManager) createUploadArea(ctx context.Context, msg models.SubmissionMessage) error {
	log := m.logger.With("document_id", msg.DocumentID)
	m.warnInvalidUUID(ctx, log, msg)

	submissionURL, err := m.submissions.SubmissionURL(ctx, msg.DocumentID)
	if err != nil {
		return fmt.Errorf("resolve submission %s: %w", msg.DocumentID, err)
	}

	id := msg.DocumentUUID
	if msg.Schema == models.SchemaDocumentID {
		if id, err = m.submissions.ObjectUUID(ctx, submissionURL); err != nil {
			return fmt.Errorf("resolve uuid of %s: %w", submissionURL, err)
		}
	}
	log = log.With("uuid", id)

	log.Info(ctx, "creating upload area")
	creds, err := m.staging.CreateStagingArea(ctx, id)
	if err != nil {
		return fmt.Errorf("create upload area %s: %w", id, err)
	}

	ref, err := creds.Reference(m.refField)
	if err != nil {
		return fmt.Errorf("upload area %s: %w", id, err)
	}

	log.Info(ctx, "upload area created, patching staging details", "reference", ref)
	if err := m.submissions.UpdateStagingDetails(ctx, submissionURL, id, ref); err != nil {
		return fmt.Errorf("update staging details of %s: %w", submissionURL, err)
	}
	return nil
}

// DeleteUploadArea handles an upload area cleanup event.
func (m *StagingManager) DeleteUploadArea(ctx context.Context, body []byte) error {
	msg, err := models.ParseSubmissionMessage(body)
	if err != nil {
		return m.ignore(ctx, HandlerCleanup, err)
	}
	return m.finish(HandlerCleanup, m.deleteUploadArea(ctx, msg))
}

func (m *StagingManager) deleteUploadArea(ctx context.Context, msg models.SubmissionMessage) error {
	log := m.logger.With("document_id", msg.DocumentID, "schema", msg.Schema.String())
	m.warnInvalidUUID(ctx, log, msg)

	id := msg.DocumentUUID
	if msg.Schema == models.SchemaDocumentID {
		submissionURL, err := m.submissions.SubmissionURL(ctx, msg.DocumentID)
		if errors.Is(err, common.ErrNotFound) {
			log.Info(ctx, "submission no longer exists, nothing to clean up")
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve submission %s: %w", msg.DocumentID, err)
		}

		id, err = m.submissions.ObjectUUID(ctx, submissionURL)
		if errors.Is(err, common.ErrNotFound) {
			log.Info(ctx, "submission no longer exists, nothing to clean up", "url", submissionURL)
			return nil
		}
		if err != nil {
			return fmt.Errorf("resolve uuid of %s: %w", submissionURL, err)
		}
	}
	log = log.With("uuid", id)

	exists, err := m.staging.HasStagingArea(ctx, id)
	if err != nil {
		return fmt.Errorf("check upload area %s: %w", id, err)
	}

	if !exists {
		log.Warn(ctx, "there is no upload area found")
		if msg.Schema == models.SchemaDocumentUUID && m.completeWithoutArea {
			m.completeSubmission(ctx, log, msg.DocumentID, id)
		}
		return nil
	}

	if err := m.staging.DeleteStagingArea(ctx, id); err != nil {
		return fmt.Errorf("delete upload area %s: %w", id, err)
	}
	log.Info(ctx, "upload area deleted")

	m.completeSubmission(ctx, log, msg.DocumentID, id)
	return nil
}

// completeSubmission marks the submission complete unless it has been
// deleted in the meantime.
func (m *StagingManager) completeSubmission(ctx context.Context, log logging.Logger, documentID, id string) {
	_, err := m.submissions.SubmissionByUUID(ctx, id)
	switch {
	case errors.Is(err, common.ErrNotFound):
		log.Info(ctx, "submission no longer exists, not setting it to complete")
		return
	case err != nil:
		// the state update below is retried and reports its own failure
		log.Warn(ctx, "could not check that submission exists", "error", err)
	}

	m.setSubmissionComplete(ctx, log, documentID)
}

// setSubmissionComplete tries the completion transition completeAttempts
// times, completeDelay apart, and stops at the first success. Shutdown does
// not interrupt it. Exhaustion is logged, not returned.
func (m *StagingManager) setSubmissionComplete(ctx context.Context, log logging.Logger, documentID string) {
	ctx = context.WithoutCancel(ctx)

	backoff := retry.WithMaxRetries(uint64(m.completeAttempts-1), retry.NewConstant(m.completeDelay))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := m.submissions.UpdateSubmissionState(ctx, documentID, models.StateComplete); err != nil {
			m.metrics.CompletionAttempt(AttemptFailure)
			log.Warn(ctx, "failed to set state of submission to complete, retrying", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		m.metrics.CompletionAttempt(AttemptSuccess)
		return nil
	})
	if err != nil {
		m.metrics.Completion(CompletionExhausted)
		log.Error(ctx, "giving up setting submission to complete", "attempts", attempt, "error", err)
		return
	}

	m.metrics.Completion(CompletionDone)
	log.Info(ctx, "submission state is set to complete", "attempts", attempt)
}
