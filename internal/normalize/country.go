// Package normalize maps free-text form values onto the codes the affiliate API expects.
package normalize

import "strings"

// DefaultCountry is used for empty and unrecognized input.
const DefaultCountry = "GB"

// countryCodes covers every name offered by the signup form's country list.
var countryCodes = map[string]string{
	"united states":        "US",
	"usa":                  "US",
	"us":                   "US",
	"united kingdom":       "GB",
	"uk":                   "GB",
	"canada":               "CA",
	"australia":            "AU",
	"germany":              "DE",
	"france":               "FR",
	"spain":                "ES",
	"italy":                "IT",
	"netherlands":          "NL",
	"belgium":              "BE",
	"switzerland":          "CH",
	"austria":              "AT",
	"sweden":               "SE",
	"norway":               "NO",
	"denmark":              "DK",
	"finland":              "FI",
	"poland":               "PL",
	"portugal":             "PT",
	"greece":               "GR",
	"ireland":              "IE",
	"czech republic":       "CZ",
	"hungary":              "HU",
	"romania":              "RO",
	"bulgaria":             "BG",
	"croatia":              "HR",
	"slovakia":             "SK",
	"slovenia":             "SI",
	"estonia":              "EE",
	"latvia":               "LV",
	"lithuania":            "LT",
	"luxembourg":           "LU",
	"malta":                "MT",
	"cyprus":               "CY",
	"japan":                "JP",
	"south korea":          "KR",
	"china":                "CN",
	"india":                "IN",
	"singapore":            "SG",
	"hong kong":            "HK",
	"taiwan":               "TW",
	"thailand":             "TH",
	"malaysia":             "MY",
	"indonesia":            "ID",
	"philippines":          "PH",
	"vietnam":              "VN",
	"new zealand":          "NZ",
	"south africa":         "ZA",
	"brazil":               "BR",
	"mexico":               "MX",
	"argentina":            "AR",
	"chile":                "CL",
	"colombia":             "CO",
	"peru":                 "PE",
	"uruguay":              "UY",
	"paraguay":             "PY",
	"ecuador":              "EC",
	"venezuela":            "VE",
	"costa rica":           "CR",
	"panama":               "PA",
	"guatemala":            "GT",
	"honduras":             "HN",
	"el salvador":          "SV",
	"nicaragua":            "NI",
	"dominican republic":   "DO",
	"jamaica":              "JM",
	"trinidad and tobago":  "TT",
	"barbados":             "BB",
	"bahamas":              "BS",
	"belize":               "BZ",
	"guyana":               "GY",
	"suriname":             "SR",
	"bolivia":              "BO",
	"russia":               "RU",
	"ukraine":              "UA",
	"turkey":               "TR",
	"israel":               "IL",
	"united arab emirates": "AE",
	"saudi arabia":         "SA",
	"qatar":                "QA",
	"kuwait":               "KW",
	"oman":                 "OM",
	"bahrain":              "BH",
	"jordan":               "JO",
	"lebanon":              "LB",
	"egypt":                "EG",
	"morocco":              "MA",
	"tunisia":              "TN",
	"algeria":              "DZ",
	"kenya":                "KE",
	"nigeria":              "NG",
	"ghana":                "GH",
	"senegal":              "SN",
	"ivory coast":          "CI",
	"tanzania":             "TZ",
	"uganda":               "UG",
	"ethiopia":             "ET",
	"rwanda":               "RW",
	"mauritius":            "MU",
}

// Country returns a two-letter code for input.
//
// Names and aliases are matched case-insensitively after trimming. Unmatched
// two-character input is upper-cased and returned without checking it is a
// real ISO code; anything else becomes DefaultCountry.
func Country(input string) string {
	key := strings.ToLower(strings.TrimSpace(input))
	if key == "" {
		return DefaultCountry
	}
	if code, ok := countryCodes[key]; ok {
		return code
	}
	if len(key) == 2 {
		return strings.ToUpper(key)
	}
	return DefaultCountry
}
