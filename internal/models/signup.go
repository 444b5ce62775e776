package models

import (
	"strings"
)

// Program is the currency code of an affiliate program.
type Program string

const (
	ProgramUSD Program = "USD"
	ProgramEUR Program = "EUR"
	ProgramGBP Program = "GBP"
	ProgramAUD Program = "AUD"
)

// Valid reports whether p is one of the offered programs.
func (p Program) Valid() bool {
	switch p {
	case ProgramUSD, ProgramEUR, ProgramGBP, ProgramAUD:
		return true
	}
	return false
}

// CompanyType is the partner category chosen on the first page.
type CompanyType string

const (
	CompanyTypeSupply          CompanyType = "supply"
	CompanyTypeVacationRental  CompanyType = "vacation-rental"
	CompanyTypePMS             CompanyType = "pms"
	CompanyTypeVenue           CompanyType = "venue"
	CompanyTypeBlog            CompanyType = "blog"
	CompanyTypeTourOperator    CompanyType = "tour-operator"
	CompanyTypeTransportations CompanyType = "transportations"
	CompanyTypeOther           CompanyType = "other"
)

var companyTypeLabels = map[CompanyType]string{
	CompanyTypeSupply:          "I want to store bags (Supply)",
	CompanyTypeVacationRental:  "Vacation Rental / STR / Airbnb Host",
	CompanyTypePMS:             "PMS",
	CompanyTypeVenue:           "Venue",
	CompanyTypeBlog:            "Blog",
	CompanyTypeTourOperator:    "Tour Operator",
	CompanyTypeTransportations: "Transportations",
	CompanyTypeOther:           "Other",
}

func (c CompanyType) Valid() bool {
	_, ok := companyTypeLabels[c]
	return ok
}

// Label is the human-readable name shown on the review page. Unknown types echo the raw value.
func (c CompanyType) Label() string {
	if l, ok := companyTypeLabels[c]; ok {
		return l
	}
	return string(c)
}

// RequiresCompanyDetails reports whether page 4 must be completed for c.
func (c CompanyType) RequiresCompanyDetails() bool {
	return c.Valid() && c != CompanyTypeSupply
}

// FormState is everything the signup wizard has collected for one session.
type FormState struct {
	CurrentPage int
	Program     Program
	CompanyType CompanyType

	FirstName string
	LastName  string
	Email     string
	Password  string

	City               string
	Country            string
	CompanyName        string
	CompanyWebsite     string
	NumberOfProperties string
	CompanyDescription string
	CommissionType     string

	AcceptTerms   bool
	WantsDemoCall bool

	// ParentID is the referring affiliate, opaque to this system.
	ParentID string
}

// NewFormState returns a state positioned on the first page.
func NewFormState() *FormState {
	return &FormState{CurrentPage: FirstPage}
}

const (
	FirstPage = 1
	LastPage  = 5
)

// CleanParentID drops blank values and the literal "null".
func CleanParentID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "null" {
		return ""
	}
	return v
}
