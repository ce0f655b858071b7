package manager

import (
	"context"

	"github.com/dmitrijs2005/stagingmanager/internal/models"
)

// SubmissionService is the ingest API as used by the manager.
type SubmissionService interface {
	SubmissionURL(ctx context.Context, documentID string) (string, error)
	ObjectUUID(ctx context.Context, url string) (string, error)
	// SubmissionByUUID returns an error matching common.ErrNotFound when the
	// submission does not exist.
	SubmissionByUUID(ctx context.Context, uuid string) (*models.Submission, error)
	UpdateStagingDetails(ctx context.Context, url, uuid, reference string) error
	UpdateSubmissionState(ctx context.Context, documentID string, state models.SubmissionState) error
}

// StagingService provisions staging areas keyed by submission uuid.
type StagingService interface {
	HasStagingArea(ctx context.Context, uuid string) (bool, error)
	CreateStagingArea(ctx context.Context, uuid string) (models.StagingCredentials, error)
	DeleteStagingArea(ctx context.Context, uuid string) error
}

// Recorder receives handler outcomes; see internal/metrics.
type Recorder interface {
	Message(handler, outcome string)
	// CompletionAttempt is called once per state update call.
	CompletionAttempt(result string)
	// Completion is called once per completion sequence.
	Completion(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Message(string, string)   {}
func (nopRecorder) CompletionAttempt(string) {}
func (nopRecorder) Completion(string)        {}
