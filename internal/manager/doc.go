// Package manager coordinates upload areas between the ingest API and the
// staging backend.
//
// StagingManager exposes one handler per event queue:
//
//   - CreateUploadArea: resolve the submission, create its staging area and
//     record the area reference on the submission;
//   - DeleteUploadArea: delete the submission's staging area, if there is one,
//     then mark the submission complete.
//
// Handlers keep no state between calls. Any remote failure while creating
// an area is returned to the caller so the transport can redeliver. The completion
// transition is retried locally a fixed number of times instead, and a final
// failure is only logged.
package manager
