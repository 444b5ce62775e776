package proxy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"affiliate-signup/internal/common/errors"
	"affiliate-signup/internal/common/validation"
	"affiliate-signup/internal/models"
)

// DecodeRequest parses a create-affiliate body into exactly one payload variant.
// Null and empty-string values are dropped before any check runs.
func DecodeRequest(body []byte) (models.Payload, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.NewInvalidJSONError(err)
	}
	if raw == nil {
		return nil, errors.NewInvalidJSONError(fmt.Errorf("body is not a JSON object"))
	}
	prune(raw)

	modeValue, present := raw["mode"]
	modeStr, isString := modeValue.(string)
	if present && !isString {
		return nil, errors.NewUnknownModeError(fmt.Sprint(modeValue))
	}
	mode, err := models.ParseMode(modeStr)
	if err != nil {
		return nil, errors.NewUnknownModeError(modeStr)
	}

	result := validation.ValidateInput(raw, GetInputSchema(mode))
	if !result.Valid {
		fields := lo.Uniq(lo.Map(result.Errors, func(e validation.ValidationError, _ int) string {
			return e.Field
		}))
		e := errors.NewClientValidationError("Invalid request fields: " + strings.Join(fields, ", "))
		e.Details = strings.Join(result.GetErrorMessages(), "; ")
		return nil, e
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	var payload models.Payload
	switch mode {
	case models.ModeCreateOnly:
		var p models.CreateOnlyPayload
		err = json.Unmarshal(normalized, &p)
		payload = p
	case models.ModeUpdateFields:
		var p models.UpdateFieldsPayload
		err = json.Unmarshal(normalized, &p)
		payload = p
	case models.ModeFinalize:
		var p models.FinalizePayload
		err = json.Unmarshal(normalized, &p)
		payload = p
	case models.ModeLegacy:
		var p models.LegacyPayload
		err = json.Unmarshal(normalized, &p)
		payload = p
	}
	if err != nil {
		return nil, errors.NewInvalidJSONError(err)
	}
	return payload, nil
}

// prune removes nil and "" values, recursing into objects.
func prune(m map[string]interface{}) {
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			delete(m, k)
		case string:
			if val == "" {
				delete(m, k)
			}
		case map[string]interface{}:
			prune(val)
		}
	}
}

// missingFields returns the names whose values are blank after trimming, in order.
func missingFields(fields []string, values map[string]string) []string {
	return lo.Filter(fields, func(name string, _ int) bool {
		return strings.TrimSpace(values[name]) == ""
	})
}

func requireFields(fields []string, values map[string]string) error {
	if missing := missingFields(fields, values); len(missing) > 0 {
		return errors.NewMissingFieldsError(missing)
	}
	return nil
}

var legacyRequired = []string{"first_name", "last_name", "email", "password", "city", "country", "company"}

func validateLegacy(p models.LegacyPayload) error {
	return requireFields(legacyRequired, map[string]string{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"email":      p.Email,
		"password":   p.Password,
		"city":       p.City,
		"country":    p.Country,
		"company":    p.Company,
	})
}

var createOnlyRequired = []string{"first_name", "last_name", "email", "password"}

func validateCreateOnly(p models.CreateOnlyPayload) error {
	return requireFields(createOnlyRequired, map[string]string{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"email":      p.Email,
		"password":   p.Password,
	})
}

func validateUpdateFields(p models.UpdateFieldsPayload) error {
	return requireFields([]string{"affiliate_id", "commission_type"}, map[string]string{
		"affiliate_id":    p.AffiliateID,
		"commission_type": p.CommissionType,
	})
}

func validateFinalize(p models.FinalizePayload) error {
	return requireFields([]string{"affiliate_id"}, map[string]string{
		"affiliate_id": p.AffiliateID,
	})
}

// GetInputSchema returns the type schema for one request variant.
func GetInputSchema(mode models.Mode) validation.JSONSchema {
	str := validation.StringProp
	boolean := validation.Property{Type: "boolean", Description: "Whether a demo call was requested"}
	metadata := validation.Property{
		Type:       "object",
		Properties: map[string]validation.Property{"website": str("Company website")},
	}

	props := map[string]validation.Property{
		"mode":          str("Request variant"),
		"wantsDemoCall": boolean,
		"parent_id":     str("Referring affiliate id"),
	}

	switch mode {
	case models.ModeCreateOnly:
		for _, f := range []string{"first_name", "last_name", "email", "password", "city", "country", "company", "company_type", "commission_type"} {
			props[f] = str(f)
		}
	case models.ModeUpdateFields:
		props["affiliate_id"] = str("Staged affiliate id")
		props["commission_type"] = str("Commission model")
	case models.ModeFinalize:
		props["affiliate_id"] = str("Staged affiliate id")
		props["program"] = str("Program code or id")
		props["commission_type"] = str("Commission model")
		props["company_type"] = str("Partner category")
		props["metadata"] = metadata
		props["address"] = validation.Property{
			Type: "object",
			Properties: map[string]validation.Property{
				"address":     str("Street"),
				"postal_code": str("Postal code"),
				"city":        str("City"),
				"country": {
					Type:       "object",
					Properties: map[string]validation.Property{"code": str("ISO country code")},
				},
			},
		}
		props["company"] = validation.Property{
			Type: "object",
			Properties: map[string]validation.Property{
				"name":        str("Company name"),
				"description": str("Company description"),
			},
		}
	case models.ModeLegacy:
		for _, f := range []string{"program", "first_name", "last_name", "email", "password", "city", "country", "company", "company_description", "company_type", "commission_type"} {
			props[f] = str(f)
		}
		props["metadata"] = metadata
	}

	return validation.JSONSchema{
		Type:                 "object",
		Properties:           props,
		AdditionalProperties: true,
	}
}
