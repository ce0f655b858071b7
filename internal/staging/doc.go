// Package staging provisions and removes staging (upload) areas.
//
// Two backends share one method set (HasStagingArea, CreateStagingArea,
// DeleteStagingArea):
//   - UploadClient, the REST API of the upload service;
//   - S3Areas, where an area is the "{uuid}/" prefix of a single bucket.
//
// Both are idempotent: creating an existing area returns its credentials,
// deleting a missing area succeeds.
package staging
