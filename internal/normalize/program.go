package normalize

var programIDs = map[string]string{
	"USD": "stasher-affiliates-usd",
	"EUR": "stasher-affiliate-program-sp",
	"GBP": "stasher-affiliate-program",
	"AUD": "jg-affiliate-program",
}

// LookupProgram maps a currency code to its affiliate program id.
func LookupProgram(code string) (string, bool) {
	id, ok := programIDs[code]
	return id, ok
}

// Program maps a currency code to its program id. Unknown codes, including ids
// that were already mapped by the caller, are returned unchanged.
func Program(code string) string {
	if id, ok := programIDs[code]; ok {
		return id
	}
	return code
}
