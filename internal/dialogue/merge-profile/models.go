package mergeprofile

import "medchat-engine/internal/models"

type Input struct {
	Prior    models.UserProfile
	Message  string
	History  []models.Message
	Language models.Language
}

// Rejection records an extracted value that failed validation. The field
// stays missing.
type Rejection struct {
	Field  models.Field `json:"field"`
	Value  string       `json:"value"`
	Reason string       `json:"reason"`
}

// Extraction is what an Extractor found in one message. Partial only holds
// fields that were actually present in the text.
type Extraction struct {
	Partial    models.UserProfile
	Rejected   []Rejection
	Correction bool
}

type Output struct {
	Profile    models.UserProfile
	Partial    models.UserProfile
	Changed    []models.Field
	Rejected   []Rejection
	Correction bool
}

const (
	reasonNotInCatalog = "not_in_catalog"
	reasonAmbiguous    = "ambiguous"
	reasonChecksum     = "checksum"
	reasonOutOfRange   = "out_of_range"
	reasonInvalid      = "invalid"
)
