package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		raw     string
		want    Mode
		wantErr bool
	}{
		{raw: "", want: ModeLegacy},
		{raw: "create_affiliate_only", want: ModeCreateOnly},
		{raw: "update_custom_fields", want: ModeUpdateFields},
		{raw: "finalize_affiliate", want: ModeFinalize},
		{raw: "delete_affiliate", wantErr: true},
		{raw: "FINALIZE_AFFILIATE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseMode(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "legacy", ModeLegacy.MetricLabel())
	assert.Equal(t, "finalize_affiliate", ModeFinalize.MetricLabel())
}

func TestPayloadsWriteTheirOwnMode(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    string
	}{
		{name: "create", payload: CreateOnlyPayload{Email: "a@b.co"}, want: "create_affiliate_only"},
		{name: "update", payload: UpdateFieldsPayload{ModeField: "bogus"}, want: "update_custom_fields"},
		{name: "finalize", payload: FinalizePayload{}, want: "finalize_affiliate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.payload)
			require.NoError(t, err)
			var m map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &m))
			assert.Equal(t, tt.want, m["mode"])
			assert.Equal(t, Mode(tt.want), tt.payload.Mode())
		})
	}
}

func TestLegacyPayloadHasNoMode(t *testing.T) {
	raw, err := json.Marshal(LegacyPayload{Program: "stasher-affiliate-program"})
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	_, hasMode := m["mode"]
	assert.False(t, hasMode)
	assert.Equal(t, false, m["wantsDemoCall"])
	_, hasParent := m["parent_id"]
	assert.False(t, hasParent)
	_, hasMeta := m["metadata"]
	assert.False(t, hasMeta)
}

func TestCompanyType(t *testing.T) {
	assert.Equal(t, "Vacation Rental / STR / Airbnb Host", CompanyTypeVacationRental.Label())
	assert.Equal(t, "I want to store bags (Supply)", CompanyTypeSupply.Label())
	assert.Equal(t, "mystery", CompanyType("mystery").Label())
	assert.False(t, CompanyTypeSupply.RequiresCompanyDetails())
	assert.True(t, CompanyTypeBlog.RequiresCompanyDetails())
	assert.False(t, CompanyType("").RequiresCompanyDetails())
}

func TestProgramValid(t *testing.T) {
	assert.True(t, ProgramEUR.Valid())
	assert.False(t, Program("XYZ").Valid())
}

func TestCleanParentID(t *testing.T) {
	assert.Equal(t, "", CleanParentID("null"))
	assert.Equal(t, "", CleanParentID("   "))
	assert.Equal(t, "aff_parent", CleanParentID(" aff_parent "))
}

func TestNewFormState(t *testing.T) {
	fs := NewFormState()
	assert.Equal(t, FirstPage, fs.CurrentPage)
	assert.Nil(t, NewMetadata(""))
	assert.Equal(t, "https://x.io", NewMetadata("https://x.io").Website)
}
