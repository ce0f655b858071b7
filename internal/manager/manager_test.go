package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/stagingmanager/internal/common"
	"github.com/dmitrijs2005/stagingmanager/internal/logging"
	"github.com/dmitrijs2005/stagingmanager/internal/models"
)

// -------- test fakes --------

type patchCall struct {
	url, uuid, reference string
}

type fakeSubmissions struct {
	urls     map[string]string // documentId -> url
	uuids    map[string]string // url -> uuid
	missing  bool
	probeErr error

	stateFailures int
	stateErr      error

	calls       []string
	patches     []patchCall
	stateCalls  int
	stateDocIDs []string
}

func newFakeSubmissions() *fakeSubmissions {
	return &fakeSubmissions{
		urls:  map[string]string{"abc": "http://x/submissions/abc"},
		uuids: map[string]string{"http://x/submissions/abc": "u1"},
	}
}

func (f *fakeSubmissions) SubmissionURL(ctx context.Context, documentID string) (string, error) {
	f.calls = append(f.calls, "SubmissionURL")
	u, ok := f.urls[documentID]
	if !ok {
		return "", fmt.Errorf("GET %s: %w", documentID, common.ErrNotFound)
	}
	return u, nil
}

func (f *fakeSubmissions) ObjectUUID(ctx context.Context, url string) (string, error) {
	f.calls = append(f.calls, "ObjectUUID")
	id, ok := f.uuids[url]
	if !ok {
		return "", common.ErrNotFound
	}
	return id, nil
}

func (f *fakeSubmissions) SubmissionByUUID(ctx context.Context, uuid string) (*models.Submission, error) {
	f.calls = append(f.calls, "SubmissionByUUID")
	if f.missing {
		return nil, fmt.Errorf("GET findByUuid: %w", common.ErrNotFound)
	}
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &models.Submission{UUID: models.UUID{UUID: uuid}}, nil
}

func (f *fakeSubmissions) UpdateStagingDetails(ctx context.Context, url, uuid, reference string) error {
	f.calls = append(f.calls, "UpdateStagingDetails")
	f.patches = append(f.patches, patchCall{url, uuid, reference})
	return nil
}

func (f *fakeSubmissions) UpdateSubmissionState(ctx context.Context, documentID string, state models.SubmissionState) error {
	f.calls = append(f.calls, "UpdateSubmissionState")
	f.stateCalls++
	f.stateDocIDs = append(f.stateDocIDs, documentID+":"+string(state))
	if f.stateErr != nil {
		return f.stateErr
	}
	if f.stateFailures > 0 {
		f.stateFailures--
		return common.ErrUnavailable
	}
	return nil
}

type fakeStaging struct {
	areas     map[string]bool
	creds     models.StagingCredentials
	createErr error
	hasErr    error

	creates []string
	deletes []string
	checks  int
}

func newFakeStaging(areas ...string) *fakeStaging {
	f := &fakeStaging{areas: map[string]bool{}}
	for _, a := range areas {
		f.areas[a] = true
	}
	return f
}

func (f *fakeStaging) HasStagingArea(ctx context.Context, uuid string) (bool, error) {
	f.checks++
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.areas[uuid], nil
}

func (f *fakeStaging) CreateStagingArea(ctx context.Context, uuid string) (models.StagingCredentials, error) {
	f.creates = append(f.creates, uuid)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.areas[uuid] = true
	if f.creds != nil {
		return f.creds, nil
	}
	return models.StagingCredentials{"urn": "s3://bucket/" + uuid}, nil
}

func (f *fakeStaging) DeleteStagingArea(ctx context.Context, uuid string) error {
	f.deletes = append(f.deletes, uuid)
	delete(f.areas, uuid)
	return nil
}

type fakeRecorder struct {
	messages    map[string]int
	attempts    map[string]int
	completions map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{messages: map[string]int{}, attempts: map[string]int{}, completions: map[string]int{}}
}

func (r *fakeRecorder) Message(handler, outcome string) { r.messages[handler+"/"+outcome]++ }
func (r *fakeRecorder) CompletionAttempt(result string) { r.attempts[result]++ }
func (r *fakeRecorder) Completion(outcome string)       { r.completions[outcome]++ }

// -------- helpers --------

func newManager(t *testing.T, subs *fakeSubmissions, st *fakeStaging, opts ...Option) *StagingManager {
	t.Helper()
	opts = append([]Option{WithCompletePolicy(5, time.Millisecond)}, opts...)
	return NewStagingManager(subs, st, logging.Nop{}, opts...)
}

const embeddedUUID = "5b9a3f0e-6a3c-4a8e-9e43-0c1b6f1d2a77"

// -------- create --------

func TestCreateUploadArea_Scenario(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging()
	rec := newFakeRecorder()
	m := newManager(t, subs, st, WithRecorder(rec))

	err := m.CreateUploadArea(context.Background(), []byte(`{"documentId": "abc"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"u1"}, st.creates)
	assert.Equal(t, []patchCall{{"http://x/submissions/abc", "u1", "s3://bucket/u1"}}, subs.patches)
	assert.Equal(t, []string{"SubmissionURL", "ObjectUUID", "UpdateStagingDetails"}, subs.calls)
	assert.Equal(t, 1, rec.messages["create/handled"])
}

func TestCreateUploadArea_UsesConfiguredRefField(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging()
	st.creds = models.StagingCredentials{"uri": "s3://bucket/u1/", "urn": "dcp:upl:aws:dev:u1"}

	m := newManager(t, subs, st, WithRefField(models.RefURI))
	require.NoError(t, m.CreateUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))

	require.Len(t, subs.patches, 1)
	assert.Equal(t, "s3://bucket/u1/", subs.patches[0].reference)
}

func TestCreateUploadArea_MissingRefFieldFails(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging()
	st.creds = models.StagingCredentials{"uri": "s3://bucket/u1/"}

	m := newManager(t, subs, st) // urn
	err := m.CreateUploadArea(context.Background(), []byte(`{"documentId": "abc"}`))

	assert.True(t, errors.Is(err, common.ErrMissingReference), "got %v", err)
	assert.Empty(t, subs.patches)
}

func TestCreateUploadArea_EmbeddedUUIDSkipsLookup(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging()
	m := newManager(t, subs, st)

	body := `{"documentId": "abc", "documentUuid": "` + embeddedUUID + `"}`
	require.NoError(t, m.CreateUploadArea(context.Background(), []byte(body)))

	assert.Equal(t, []string{embeddedUUID}, st.creates)
	assert.Equal(t, []string{"SubmissionURL", "UpdateStagingDetails"}, subs.calls)
}

func TestCreateUploadArea_ErrorsPropagate(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		subs := newFakeSubmissions()
		st := newFakeStaging()
		rec := newFakeRecorder()
		m := newManager(t, subs, st, WithRecorder(rec))

		err := m.CreateUploadArea(context.Background(), []byte(`{"documentId": "unknown"}`))
		assert.True(t, errors.Is(err, common.ErrNotFound), "got %v", err)
		assert.Empty(t, st.creates)
		assert.Equal(t, 1, rec.messages["create/failed"])
	})

	t.Run("creation", func(t *testing.T) {
		subs := newFakeSubmissions()
		st := newFakeStaging()
		st.createErr = common.ErrUnavailable
		m := newManager(t, subs, st)

		err := m.CreateUploadArea(context.Background(), []byte(`{"documentId": "abc"}`))
		assert.True(t, errors.Is(err, common.ErrUnavailable), "got %v", err)
		assert.Len(t, st.creates, 1, "no local retry on create")
		assert.Empty(t, subs.patches)
	})
}

// -------- ignored messages --------

func TestHandlers_IgnoreNotApplicable(t *testing.T) {
	bodies := []string{`{}`, `{"documentUuid": "` + embeddedUUID + `"}`, `{"documentId": ""}`, `not json`, ``}

	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			subs := newFakeSubmissions()
			st := newFakeStaging("u1")
			rec := newFakeRecorder()
			m := newManager(t, subs, st, WithRecorder(rec))
			ctx := context.Background()

			assert.NoError(t, m.CreateUploadArea(ctx, []byte(body)))
			assert.NoError(t, m.DeleteUploadArea(ctx, []byte(body)))

			assert.Empty(t, subs.calls)
			assert.Empty(t, st.creates)
			assert.Empty(t, st.deletes)
			assert.Zero(t, st.checks)
			assert.Equal(t, 1, rec.messages["create/ignored"])
			assert.Equal(t, 1, rec.messages["cleanup/ignored"])
		})
	}
}

// -------- delete --------

func TestDeleteUploadArea_NoArea(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging()
	m := newManager(t, subs, st)

	require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))

	assert.Empty(t, st.deletes)
	assert.Equal(t, 1, st.checks)
	assert.Zero(t, subs.stateCalls, "no completion without an area under the document id schema")
}

func TestDeleteUploadArea_ExistingArea(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging("u1")
	rec := newFakeRecorder()
	m := newManager(t, subs, st, WithRecorder(rec))

	require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))

	assert.Equal(t, []string{"u1"}, st.deletes)
	assert.Equal(t, []string{"abc:complete"}, subs.stateDocIDs)
	assert.Equal(t,
		[]string{"SubmissionURL", "ObjectUUID", "SubmissionByUUID", "UpdateSubmissionState"},
		subs.calls)
	assert.Equal(t, 1, rec.messages["cleanup/handled"])
	assert.Equal(t, 1, rec.attempts[AttemptSuccess])
	assert.Equal(t, 1, rec.completions[CompletionDone])
}

func TestDeleteUploadArea_Twice(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging("u1")
	m := newManager(t, subs, st)
	ctx := context.Background()
	body := []byte(`{"documentId": "abc"}`)

	require.NoError(t, m.DeleteUploadArea(ctx, body))
	require.NoError(t, m.DeleteUploadArea(ctx, body))

	assert.Equal(t, []string{"u1"}, st.deletes)
	assert.Equal(t, 1, subs.stateCalls)
}

func TestDeleteUploadArea_EmbeddedUUID(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging(embeddedUUID)
	m := newManager(t, subs, st)

	body := `{"documentId": "abc", "documentUuid": "` + embeddedUUID + `"}`
	require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(body)))

	assert.Equal(t, []string{embeddedUUID}, st.deletes)
	assert.Equal(t, []string{"SubmissionByUUID", "UpdateSubmissionState"}, subs.calls)
}

func TestDeleteUploadArea_EmbeddedUUIDWithoutArea(t *testing.T) {
	body := []byte(`{"documentId": "abc", "documentUuid": "` + embeddedUUID + `"}`)

	t.Run("default leaves submission alone", func(t *testing.T) {
		subs := newFakeSubmissions()
		m := newManager(t, subs, newFakeStaging())

		require.NoError(t, m.DeleteUploadArea(context.Background(), body))
		assert.Zero(t, subs.stateCalls)
	})

	t.Run("complete without area", func(t *testing.T) {
		subs := newFakeSubmissions()
		st := newFakeStaging()
		m := newManager(t, subs, st, WithCompleteWithoutArea(true))

		require.NoError(t, m.DeleteUploadArea(context.Background(), body))
		assert.Empty(t, st.deletes)
		assert.Equal(t, 1, subs.stateCalls)
	})

	t.Run("option does not apply to document id schema", func(t *testing.T) {
		subs := newFakeSubmissions()
		m := newManager(t, subs, newFakeStaging(), WithCompleteWithoutArea(true))

		require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))
		assert.Zero(t, subs.stateCalls)
	})
}

func TestDeleteUploadArea_SubmissionGone(t *testing.T) {
	subs := newFakeSubmissions()
	subs.missing = true
	st := newFakeStaging("u1")
	m := newManager(t, subs, st)

	require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))

	assert.Equal(t, []string{"u1"}, st.deletes)
	assert.Zero(t, subs.stateCalls)
}

func TestDeleteUploadArea_UnknownDocumentID(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging("u1")
	rec := newFakeRecorder()
	m := newManager(t, subs, st, WithRecorder(rec))

	require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "gone"}`)))

	assert.Equal(t, []string{"SubmissionURL"}, subs.calls)
	assert.Zero(t, st.checks)
	assert.Empty(t, st.deletes)
	assert.Equal(t, 1, rec.messages["cleanup/handled"])
	assert.Zero(t, rec.messages["cleanup/failed"])
}

func TestDeleteUploadArea_UUIDLookupNotFound(t *testing.T) {
	subs := newFakeSubmissions()
	delete(subs.uuids, "http://x/submissions/abc")
	st := newFakeStaging("u1")
	rec := newFakeRecorder()
	m := newManager(t, subs, st, WithRecorder(rec))

	require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))

	assert.Equal(t, []string{"SubmissionURL", "ObjectUUID"}, subs.calls)
	assert.Zero(t, st.checks)
	assert.Equal(t, 1, rec.messages["cleanup/handled"])
}

func TestDeleteUploadArea_LookupUnavailablePropagates(t *testing.T) {
	subs := &unavailableURLs{fakeSubmissions: newFakeSubmissions()}
	st := newFakeStaging("u1")
	m := NewStagingManager(subs, st, logging.Nop{}, WithCompletePolicy(5, time.Millisecond))

	err := m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`))
	assert.ErrorIs(t, err, common.ErrUnavailable)
	assert.Zero(t, st.checks)
}

type unavailableURLs struct {
	*fakeSubmissions
}

func (u *unavailableURLs) SubmissionURL(ctx context.Context, documentID string) (string, error) {
	return "", fmt.Errorf("GET %s: %w", documentID, common.ErrUnavailable)
}

func TestDeleteUploadArea_ProbeErrorStillCompletes(t *testing.T) {
	subs := newFakeSubmissions()
	subs.probeErr = common.ErrUnavailable
	m := newManager(t, subs, newFakeStaging("u1"))

	require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))
	assert.Equal(t, 1, subs.stateCalls)
}

func TestDeleteUploadArea_CheckErrorPropagates(t *testing.T) {
	subs := newFakeSubmissions()
	st := newFakeStaging("u1")
	st.hasErr = common.ErrUnavailable
	m := newManager(t, subs, st)

	err := m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`))
	assert.True(t, errors.Is(err, common.ErrUnavailable))
	assert.Empty(t, st.deletes)
	assert.Zero(t, subs.stateCalls)
}

// -------- completion retry --------

func TestSetSubmissionComplete_RetriesUntilSuccess(t *testing.T) {
	for n := 0; n < 5; n++ {
		t.Run(fmt.Sprintf("%d failures", n), func(t *testing.T) {
			subs := newFakeSubmissions()
			subs.stateFailures = n
			rec := newFakeRecorder()
			m := newManager(t, subs, newFakeStaging("u1"), WithRecorder(rec))

			require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))

			assert.Equal(t, n+1, subs.stateCalls)
			assert.Equal(t, n, rec.attempts[AttemptFailure])
			assert.Equal(t, 1, rec.attempts[AttemptSuccess])
			assert.Equal(t, 1, rec.completions[CompletionDone])
			assert.Zero(t, rec.completions[CompletionExhausted])
		})
	}
}

func TestSetSubmissionComplete_GivesUpAfterFiveAttempts(t *testing.T) {
	subs := newFakeSubmissions()
	subs.stateErr = common.ErrUnavailable
	rec := newFakeRecorder()
	m := newManager(t, subs, newFakeStaging("u1"), WithRecorder(rec))

	err := m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`))

	assert.NoError(t, err)
	assert.Equal(t, 5, subs.stateCalls)
	assert.Equal(t, 5, rec.attempts[AttemptFailure])
	assert.Zero(t, rec.attempts[AttemptSuccess])
	assert.Equal(t, 1, rec.completions[CompletionExhausted])
	assert.Zero(t, rec.completions[CompletionDone])
	assert.Equal(t, 1, rec.messages["cleanup/handled"])
}

func TestSetSubmissionComplete_WaitsBetweenAttempts(t *testing.T) {
	subs := newFakeSubmissions()
	subs.stateFailures = 2
	m := newManager(t, subs, newFakeStaging("u1"), WithCompletePolicy(5, 20*time.Millisecond))

	start := time.Now()
	require.NoError(t, m.DeleteUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 3, subs.stateCalls)
}

func TestSetSubmissionComplete_NotCancelledByShutdown(t *testing.T) {
	subs := newFakeSubmissions()
	subs.stateErr = common.ErrUnavailable
	m := newManager(t, subs, newFakeStaging("u1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.DeleteUploadArea(ctx, []byte(`{"documentId": "abc"}`)))
	assert.Equal(t, 5, subs.stateCalls)
}

func TestNewStagingManager_Defaults(t *testing.T) {
	m := NewStagingManager(newFakeSubmissions(), newFakeStaging(), logging.Nop{}, WithCompletePolicy(0, -1))

	assert.Equal(t, 5, m.completeAttempts)
	assert.Equal(t, time.Second, m.completeDelay)
	assert.Equal(t, models.RefURN, m.refField)
	assert.False(t, m.completeWithoutArea)
}

func TestHandlers_WarnOnInvalidUUID(t *testing.T) {
	var buf strings.Builder
	subs := newFakeSubmissions()
	st := newFakeStaging()
	m := NewStagingManager(subs, st, logging.New(&buf, "info"), WithCompletePolicy(1, time.Millisecond))

	body := []byte(`{"documentId": "abc", "documentUuid": "not-a-uuid"}`)
	require.NoError(t, m.CreateUploadArea(context.Background(), body))
	require.NoError(t, m.DeleteUploadArea(context.Background(), body))

	// falls back to the remote lookup
	assert.Equal(t, []string{"u1"}, st.creates)
	assert.Equal(t, []string{"u1"}, st.deletes)

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, `"document_uuid":"not-a-uuid"`))
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestHandlers_LogContext(t *testing.T) {
	var buf strings.Builder
	m := NewStagingManager(newFakeSubmissions(), newFakeStaging(), logging.New(&buf, "info"),
		WithCompletePolicy(1, time.Millisecond))

	require.NoError(t, m.CreateUploadArea(context.Background(), []byte(`{"documentId": "abc"}`)))

	out := buf.String()
	assert.Contains(t, out, `"module":"staging_manager"`)
	assert.Contains(t, out, `"document_id":"abc"`)
	assert.Contains(t, out, `"uuid":"u1"`)
}
