// internal/models/profile.go
package models

import (
	"fmt"
	"strconv"
	"strings"
)

type Field string

const (
	FieldFullName   Field = "fullName"
	FieldIDNumber   Field = "idNumber"
	FieldGender     Field = "gender"
	FieldAge        Field = "age"
	FieldProvider   Field = "provider"
	FieldTier       Field = "tier"
	FieldCardNumber Field = "cardNumber"
)

// ProfileFields is the canonical field order used for known/missing field lists.
var ProfileFields = []Field{
	FieldFullName,
	FieldIDNumber,
	FieldGender,
	FieldAge,
	FieldProvider,
	FieldTier,
	FieldCardNumber,
}

const (
	GenderMale   = "male"
	GenderFemale = "female"

	MinAge = 0
	MaxAge = 120
)

func IsKnownField(f Field) bool {
	for _, known := range ProfileFields {
		if known == f {
			return true
		}
	}
	return false
}

// IsIdentityField reports whether a field is id-like. Once validated, such
// fields only change on an explicit correction.
func IsIdentityField(f Field) bool {
	return f == FieldIDNumber || f == FieldCardNumber
}

type UserProfile struct {
	FullName   string `json:"fullName,omitempty"`
	IDNumber   string `json:"idNumber,omitempty"`
	Gender     string `json:"gender,omitempty"`
	Age        *int   `json:"age,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Tier       string `json:"tier,omitempty"`
	CardNumber string `json:"cardNumber,omitempty"`
}

func (p UserProfile) Clone() UserProfile {
	out := p
	if p.Age != nil {
		age := *p.Age
		out.Age = &age
	}
	return out
}

// Value returns the string form of a field, or "" when unset.
func (p UserProfile) Value(f Field) string {
	switch f {
	case FieldFullName:
		return p.FullName
	case FieldIDNumber:
		return p.IDNumber
	case FieldGender:
		return p.Gender
	case FieldAge:
		if p.Age == nil {
			return ""
		}
		return strconv.Itoa(*p.Age)
	case FieldProvider:
		return p.Provider
	case FieldTier:
		return p.Tier
	case FieldCardNumber:
		return p.CardNumber
	}
	return ""
}

func (p UserProfile) Has(f Field) bool {
	return strings.TrimSpace(p.Value(f)) != ""
}

// Set assigns a field from its string form. Empty values are ignored so a
// profile can never lose a field through Set.
func (p *UserProfile) Set(f Field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	switch f {
	case FieldFullName:
		p.FullName = value
	case FieldIDNumber:
		p.IDNumber = value
	case FieldGender:
		p.Gender = value
	case FieldAge:
		age, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("age %q: %w", value, err)
		}
		p.Age = &age
	case FieldProvider:
		p.Provider = value
	case FieldTier:
		p.Tier = value
	case FieldCardNumber:
		p.CardNumber = value
	default:
		return fmt.Errorf("unknown profile field %q", f)
	}
	return nil
}

func (p UserProfile) KnownFields() []Field {
	known := make([]Field, 0, len(ProfileFields))
	for _, f := range ProfileFields {
		if p.Has(f) {
			known = append(known, f)
		}
	}
	return known
}

func (p UserProfile) IsEmpty() bool {
	return len(p.KnownFields()) == 0
}

// Fields returns the set fields as a map, used for logging field names and
// for the model-backed extractor request.
func (p UserProfile) Fields() map[Field]string {
	out := make(map[Field]string)
	for _, f := range ProfileFields {
		if v := p.Value(f); v != "" {
			out[f] = v
		}
	}
	return out
}

// ValidIsraeliID checks the 9-digit national id check digit.
func ValidIsraeliID(id string) bool {
	id = strings.ReplaceAll(strings.TrimSpace(id), "-", "")
	if len(id) != 9 {
		return false
	}
	sum := 0
	for i, r := range id {
		if r < '0' || r > '9' {
			return false
		}
		d := int(r - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

func ValidCardNumber(card string) bool {
	card = strings.TrimSpace(card)
	if len(card) != 9 {
		return false
	}
	for _, r := range card {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func NormalizeGender(v string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "male", "m", "man", "זכר", "גבר":
		return GenderMale, true
	case "female", "f", "woman", "נקבה", "אישה", "אשה":
		return GenderFemale, true
	}
	return "", false
}

func ValidAge(age int) bool {
	return age >= MinAge && age <= MaxAge
}
