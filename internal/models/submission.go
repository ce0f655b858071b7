// Package models holds the DTOs exchanged with the ingest and upload services
// and the parsed form of upload area events.
package models

// SubmissionState is the lifecycle state of a submission envelope.
type SubmissionState string

const (
	StateDraft      SubmissionState = "draft"
	StatePending    SubmissionState = "pending"
	StateValidating SubmissionState = "validating"
	StateValid      SubmissionState = "valid"
	StateInvalid    SubmissionState = "invalid"
	StateSubmitted  SubmissionState = "submitted"
	StateProcessing SubmissionState = "processing"
	StateCleanup    SubmissionState = "cleanup"
	StateComplete   SubmissionState = "complete"
)

// Link is a HAL link.
type Link struct {
	Href string `json:"href"`
}

// UUID is the ingest API's wrapped uuid value.
type UUID struct {
	UUID string `json:"uuid"`
}

// StagingDetails records where a submission's files are uploaded.
type StagingDetails struct {
	StagingAreaUUID     UUID         `json:"stagingAreaUuid"`
	StagingAreaLocation StagingValue `json:"stagingAreaLocation"`
}

type StagingValue struct {
	Value string `json:"value"`
}

// Submission is the subset of a submission envelope the staging manager reads.
type Submission struct {
	UUID            UUID            `json:"uuid"`
	SubmissionState SubmissionState `json:"submissionState"`
	StagingDetails  *StagingDetails `json:"stagingDetails,omitempty"`
	Links           map[string]Link `json:"_links"`
}

// SelfURL returns the canonical URL of the submission, or "" when the
// response carried no self link.
func (s *Submission) SelfURL() string {
	if l, ok := s.Links["self"]; ok {
		return l.Href
	}
	return ""
}
