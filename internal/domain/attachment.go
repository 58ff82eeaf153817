package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Attachment describes an uploaded file by its object storage key.
// FileURL holds the storage key, not a browsable URL; the storage
// collaborator resolves it to a signed download URL on demand.
type Attachment struct {
	ID       *string `json:"id"`
	FileName string  `json:"fileName"`
	FileURL  string  `json:"fileUrl"`
	FileType string  `json:"fileType"`
	FileSize int64   `json:"fileSize"`
}

// Attachments round-trips as a jsonb column.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	return string(b), err
}

func (a *Attachments) Scan(src any) error {
	if src == nil {
		*a = Attachments{}
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("attachments: cannot scan %T", src)
	}
	return json.Unmarshal(b, a)
}

func ValidateAttachment(a Attachment, ev *ErrValidation) {
	ev.Evaluate(a.FileName != "", "fileName", "must be provided")
	ev.Evaluate(a.FileURL != "", "fileUrl", "must hold the storage key")
	ev.Evaluate(a.FileSize >= 0, "fileSize", "must not be negative")
}
