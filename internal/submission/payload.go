package submission

import (
	"strings"

	"affiliate-signup/internal/models"
	"affiliate-signup/internal/normalize"
)

// BuildCreateOnly fills the fields not collected yet with placeholders; they
// are overwritten when the affiliate is finalized.
func BuildCreateOnly(form *models.FormState) models.CreateOnlyPayload {
	return models.CreateOnlyPayload{
		FirstName:      form.FirstName,
		LastName:       form.LastName,
		Email:          form.Email,
		Password:       form.Password,
		City:           models.PlaceholderUpper,
		Country:        models.PlaceholderRegion,
		Company:        models.PlaceholderUpper,
		CompanyType:    string(form.CompanyType),
		CommissionType: form.CommissionType,
		WantsDemoCall:  form.WantsDemoCall,
		ParentID:       models.CleanParentID(form.ParentID),
	}
}

func BuildFinalize(affiliateID, programID string, form *models.FormState) models.FinalizePayload {
	return models.FinalizePayload{
		AffiliateID: affiliateID,
		Program:     programID,
		Address: models.Address{
			Address:    models.PlaceholderLower,
			PostalCode: models.PlaceholderLower,
			City:       orDefault(form.City, models.PlaceholderLower),
			Country:    models.CountryRef{Code: normalize.Country(form.Country)},
		},
		Company: models.Company{
			Name:        orDefault(form.CompanyName, models.PlaceholderLower),
			Description: form.CompanyDescription,
		},
		ParentID:       models.CleanParentID(form.ParentID),
		CommissionType: form.CommissionType,
		CompanyType:    string(form.CompanyType),
		WantsDemoCall:  form.WantsDemoCall,
		Metadata:       models.NewMetadata(strings.TrimSpace(form.CompanyWebsite)),
	}
}

// BuildLegacy sends the raw country; the proxy normalizes it.
func BuildLegacy(programID string, form *models.FormState) models.LegacyPayload {
	return models.LegacyPayload{
		Program:            programID,
		FirstName:          form.FirstName,
		LastName:           form.LastName,
		Email:              form.Email,
		Password:           form.Password,
		City:               form.City,
		Country:            form.Country,
		Company:            form.CompanyName,
		CompanyDescription: form.CompanyDescription,
		Metadata:           models.NewMetadata(strings.TrimSpace(form.CompanyWebsite)),
		CompanyType:        string(form.CompanyType),
		CommissionType:     form.CommissionType,
		WantsDemoCall:      form.WantsDemoCall,
		ParentID:           models.CleanParentID(form.ParentID),
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
