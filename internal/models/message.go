package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/stagingmanager/internal/common"
)

// Schema identifies the shape of an upload area event.
type Schema int

const (
	// SchemaDocumentID carries only the submission document id; the uuid has to
	// be resolved through the ingest API.
	SchemaDocumentID Schema = iota + 1
	// SchemaDocumentUUID also embeds the submission uuid.
	SchemaDocumentUUID
)

func (s Schema) String() string {
	switch s {
	case SchemaDocumentID:
		return "document-id"
	case SchemaDocumentUUID:
		return "document-uuid"
	default:
		return "unknown"
	}
}

// SubmissionMessage is an upload area event after parsing.
type SubmissionMessage struct {
	Schema       Schema
	DocumentID   string
	DocumentUUID string
	// InvalidUUID holds a documentUuid that was present but did not parse.
	InvalidUUID string
}

type rawSubmissionMessage struct {
	DocumentID   *string `json:"documentId"`
	DocumentUUID string  `json:"documentUuid"`
}

// ParseSubmissionMessage decodes an event body.
//
// It returns common.ErrMalformedMessage when the body is not a JSON object and
// common.ErrNotApplicable when documentId is missing or empty. A documentUuid
// that is not a valid UUID is dropped and the message is parsed as
// SchemaDocumentID, so the uuid gets resolved remotely instead; the rejected
// value is kept in InvalidUUID.
func ParseSubmissionMessage(body []byte) (SubmissionMessage, error) {
	var raw rawSubmissionMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return SubmissionMessage{}, fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}

	if raw.DocumentID == nil || strings.TrimSpace(*raw.DocumentID) == "" {
		return SubmissionMessage{}, common.ErrNotApplicable
	}

	msg := SubmissionMessage{Schema: SchemaDocumentID, DocumentID: *raw.DocumentID}

	if raw.DocumentUUID != "" {
		if id, err := uuid.Parse(raw.DocumentUUID); err == nil {
			msg.Schema = SchemaDocumentUUID
			msg.DocumentUUID = id.String()
		} else {
			msg.InvalidUUID = raw.DocumentUUID
		}
	}

	return msg, nil
}
