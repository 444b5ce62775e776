package models

import (
	"encoding/json"
	"fmt"
)

// Mode selects the proxy operation. The legacy one-shot request carries no mode.
type Mode string

const (
	ModeLegacy       Mode = ""
	ModeCreateOnly   Mode = "create_affiliate_only"
	ModeUpdateFields Mode = "update_custom_fields"
	ModeFinalize     Mode = "finalize_affiliate"
)

// ParseMode rejects anything but the four known modes.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(raw); m {
	case ModeLegacy, ModeCreateOnly, ModeUpdateFields, ModeFinalize:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", raw)
	}
}

// MetricLabel names the mode for logs and metrics.
func (m Mode) MetricLabel() string {
	if m == ModeLegacy {
		return "legacy"
	}
	return string(m)
}

// Placeholder values sent before the company page is filled in.
const (
	PlaceholderUpper  = "N/A"
	PlaceholderLower  = "n/a"
	PlaceholderRegion = "GB"
)

// Payload is exactly one of the four request variants.
type Payload interface {
	Mode() Mode
	isPayload()
}

// CreateOnlyPayload stages an affiliate record after the personal-info page.
type CreateOnlyPayload struct {
	ModeField      Mode   `json:"mode"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	City           string `json:"city,omitempty"`
	Country        string `json:"country,omitempty"`
	Company        string `json:"company,omitempty"`
	CompanyType    string `json:"company_type,omitempty"`
	CommissionType string `json:"commission_type,omitempty"`
	WantsDemoCall  bool   `json:"wantsDemoCall"`
	ParentID       string `json:"parent_id,omitempty"`
}

func (CreateOnlyPayload) Mode() Mode { return ModeCreateOnly }
func (CreateOnlyPayload) isPayload() {}

// UpdateFieldsPayload sets custom fields on a staged affiliate.
type UpdateFieldsPayload struct {
	ModeField      Mode   `json:"mode"`
	AffiliateID    string `json:"affiliate_id"`
	CommissionType string `json:"commission_type"`
}

func (UpdateFieldsPayload) Mode() Mode { return ModeUpdateFields }
func (UpdateFieldsPayload) isPayload() {}

type CountryRef struct {
	Code string `json:"code"`
}

type Address struct {
	Address    string     `json:"address"`
	PostalCode string     `json:"postal_code"`
	City       string     `json:"city"`
	Country    CountryRef `json:"country"`
}

type Company struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Metadata struct {
	Website string `json:"website,omitempty"`
}

// FinalizePayload completes a staged affiliate and enrolls it in a program.
type FinalizePayload struct {
	ModeField      Mode      `json:"mode"`
	AffiliateID    string    `json:"affiliate_id"`
	Program        string    `json:"program"`
	Address        Address   `json:"address"`
	Company        Company   `json:"company"`
	ParentID       string    `json:"parent_id,omitempty"`
	CommissionType string    `json:"commission_type,omitempty"`
	CompanyType    string    `json:"company_type,omitempty"`
	WantsDemoCall  bool      `json:"wantsDemoCall"`
	Metadata       *Metadata `json:"metadata,omitempty"`
}

func (FinalizePayload) Mode() Mode { return ModeFinalize }
func (FinalizePayload) isPayload() {}

// LegacyPayload creates and enrolls an affiliate in one request.
type LegacyPayload struct {
	Program            string    `json:"program"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	Email              string    `json:"email"`
	Password           string    `json:"password"`
	City               string    `json:"city"`
	Country            string    `json:"country"`
	Company            string    `json:"company"`
	CompanyDescription string    `json:"company_description,omitempty"`
	Metadata           *Metadata `json:"metadata,omitempty"`
	CompanyType        string    `json:"company_type,omitempty"`
	CommissionType     string    `json:"commission_type,omitempty"`
	WantsDemoCall      bool      `json:"wantsDemoCall"`
	ParentID           string    `json:"parent_id,omitempty"`
}

func (LegacyPayload) Mode() Mode { return ModeLegacy }
func (LegacyPayload) isPayload() {}

// NewMetadata returns nil when there is nothing to send.
func NewMetadata(website string) *Metadata {
	if website == "" {
		return nil
	}
	return &Metadata{Website: website}
}

type (
	createOnlyAlias   CreateOnlyPayload
	updateFieldsAlias UpdateFieldsPayload
	finalizeAlias     FinalizePayload
)

// MarshalJSON always writes the variant's own mode.
func (p CreateOnlyPayload) MarshalJSON() ([]byte, error) {
	p.ModeField = ModeCreateOnly
	return json.Marshal(createOnlyAlias(p))
}

func (p UpdateFieldsPayload) MarshalJSON() ([]byte, error) {
	p.ModeField = ModeUpdateFields
	return json.Marshal(updateFieldsAlias(p))
}

func (p FinalizePayload) MarshalJSON() ([]byte, error) {
	p.ModeField = ModeFinalize
	return json.Marshal(finalizeAlias(p))
}
