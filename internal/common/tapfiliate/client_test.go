package tapfiliate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderr "affiliate-signup/internal/common/errors"
	commonhttp "affiliate-signup/internal/common/http"
	"affiliate-signup/internal/common/logger"
	"affiliate-signup/internal/models"
)

type recorded struct {
	method string
	path   string
	query  string
	apiKey string
	body   map[string]interface{}
	raw    string
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	calls := &[]recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			apiKey: r.Header.Get("X-Api-Key"),
			raw:    string(raw),
		}
		_ = json.Unmarshal(raw, &rec.body)
		*calls = append(*calls, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:    srv.URL + "/1.6",
		APIKey:     "test-key",
		HTTPClient: srv.Client(),
		Logger:     logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return c, calls
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)
	assert.True(t, stderr.HasCode(err, stderr.ErrCodeConfiguration))
}

func TestCreateAffiliate(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":"aff_123","firstname":"Jane"}`)
	})

	aff, err := c.CreateAffiliate(context.Background(), &CreateAffiliateRequest{
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
		Password:  "hunter2hunter2",
		Address: &models.Address{
			Address: "n/a", PostalCode: "n/a", City: "London",
			Country: models.CountryRef{Code: "GB"},
		},
		Company: &models.Company{Name: "Acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "aff_123", aff.ID())

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/1.6/affiliates/", call.path)
	assert.Equal(t, "test-key", call.apiKey)
	assert.Equal(t, "Jane", call.body["firstname"])
	assert.Equal(t, "jane@example.com", call.body["email"])
	_, hasDescription := call.body["company_description"]
	assert.False(t, hasDescription)
	address := call.body["address"].(map[string]interface{})
	assert.Equal(t, "GB", address["country"].(map[string]interface{})["code"])
}

func TestCreateAffiliate_NullID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"id":null}`)
	})

	_, err := c.CreateAffiliate(context.Background(), &CreateAffiliateRequest{Email: "a@b.co"})
	require.Error(t, err)

	std := stderr.Normalize(err)
	assert.Equal(t, stderr.ErrCodeUpstreamProtocol, std.Code)
	assert.Equal(t, "Invalid response from Tapfiliate API", std.Message)
	assert.Equal(t, http.StatusInternalServerError, std.StatusCode())
}

func TestCreateAffiliate_NumericID(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":4711}`)
	})

	aff, err := c.CreateAffiliate(context.Background(), &CreateAffiliateRequest{Email: "a@b.co"})
	require.NoError(t, err)
	assert.Equal(t, "4711", aff.ID())
}

func TestCreateAffiliate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		status      int
		body        string
		wantCode    stderr.ErrorCode
		wantMessage string
		wantHTTP    int
	}{
		{
			name:        "html page",
			contentType: "text/html; charset=utf-8",
			status:      http.StatusBadGateway,
			body:        "<html><body>502 Bad Gateway</body></html>",
			wantCode:    stderr.ErrCodeUpstreamHTML,
			wantMessage: stderr.MsgGeneric,
			wantHTTP:    http.StatusInternalServerError,
		},
		{
			name:        "errors array",
			contentType: "application/json",
			status:      http.StatusUnprocessableEntity,
			body:        `{"errors":[{"message":"Email already exists"},{"message":"Password too short"}]}`,
			wantCode:    stderr.ErrCodeUpstreamBusiness,
			wantMessage: "Email already exists, Password too short",
			wantHTTP:    http.StatusUnprocessableEntity,
		},
		{
			name:        "errors array of strings",
			contentType: "application/json",
			status:      http.StatusBadRequest,
			body:        `{"errors":["bad email"]}`,
			wantCode:    stderr.ErrCodeUpstreamBusiness,
			wantMessage: "bad email",
			wantHTTP:    http.StatusBadRequest,
		},
		{
			name:        "message field",
			contentType: "application/json",
			status:      http.StatusForbidden,
			body:        `{"message":"Invalid API key"}`,
			wantCode:    stderr.ErrCodeUpstreamBusiness,
			wantMessage: "Invalid API key",
			wantHTTP:    http.StatusForbidden,
		},
		{
			name:        "json without text",
			contentType: "application/json",
			status:      http.StatusBadRequest,
			body:        `{"code":42}`,
			wantCode:    stderr.ErrCodeUpstreamBusiness,
			wantMessage: MsgCreateFailed,
			wantHTTP:    http.StatusBadRequest,
		},
		{
			name:        "plain text",
			contentType: "text/plain",
			status:      http.StatusServiceUnavailable,
			body:        "upstream unavailable",
			wantCode:    stderr.ErrCodeUpstreamBusiness,
			wantMessage: stderr.MsgGeneric,
			wantHTTP:    http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.CreateAffiliate(context.Background(), &CreateAffiliateRequest{Email: "a@b.co"})
			require.Error(t, err)

			std := stderr.Normalize(err)
			assert.Equal(t, tt.wantCode, std.Code)
			assert.Equal(t, tt.wantMessage, std.Message)
			assert.Equal(t, tt.wantHTTP, std.StatusCode())
			assert.Equal(t, tt.status, std.UpstreamStatus)
			assert.NotContains(t, std.Message, "<html>")
		})
	}
}

func TestAddToProgram(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"stasher-affiliate-program-sp","approved":null}`)
	})

	program, err := c.AddToProgram(context.Background(), "stasher-affiliate-program-sp", "aff_123")
	require.NoError(t, err)
	assert.Equal(t, "stasher-affiliate-program-sp", program["id"])

	call := (*calls)[0]
	assert.Equal(t, "/1.6/programs/stasher-affiliate-program-sp/affiliates/", call.path)
	assert.Equal(t, "send_welcome_email=false", call.query)
	assert.Contains(t, call.raw, `"approved":null`)
	assert.Equal(t, "aff_123", call.body["affiliate"].(map[string]interface{})["id"])
}

func TestAddToProgram_Failure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{}`)
	})

	_, err := c.AddToProgram(context.Background(), "XYZ", "aff_123")
	require.Error(t, err)
	std := stderr.Normalize(err)
	assert.Equal(t, MsgEnrollFailed, std.Message)
	assert.Equal(t, http.StatusNotFound, std.StatusCode())
}

func TestAddToProgram_NonObjectBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	program, err := c.AddToProgram(context.Background(), "jg-affiliate-program", "aff_1")
	require.NoError(t, err)
	assert.Equal(t, "jg-affiliate-program", program["program_id"])
}

func TestSetMetaDataAndParent(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})

	require.NoError(t, c.SetMetaData(context.Background(), "aff_1", "website", "https://stasher.com"))
	require.NoError(t, c.SetParent(context.Background(), "aff_1", "aff_parent"))

	require.Len(t, *calls, 2)
	assert.Equal(t, http.MethodPut, (*calls)[0].method)
	assert.Equal(t, "/1.6/affiliates/aff_1/meta-data/website/", (*calls)[0].path)
	assert.Equal(t, "https://stasher.com", (*calls)[0].body["value"])

	assert.Equal(t, "/1.6/affiliates/aff_1/parent/", (*calls)[1].path)
	assert.Equal(t, "aff_parent", (*calls)[1].body["affiliate"].(map[string]interface{})["id"])
}

func TestGetAndDeleteAffiliate(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, `{"id":"aff_1","email":"a@b.co"}`)
		case strings.Contains(r.URL.Path, "gone"):
			writeJSON(w, http.StatusNotFound, `{"message":"not found"}`)
		case strings.Contains(r.URL.Path, "locked"):
			writeJSON(w, http.StatusConflict, `{"message":"has conversions"}`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	aff, err := c.GetAffiliate(context.Background(), "aff_1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", aff["email"])

	assert.NoError(t, c.DeleteAffiliate(context.Background(), "aff_1"))
	assert.NoError(t, c.DeleteAffiliate(context.Background(), "gone"))

	err = c.DeleteAffiliate(context.Background(), "locked")
	require.Error(t, err)
	assert.Equal(t, "has conversions", stderr.Normalize(err).Message)
	assert.Len(t, *calls, 4)
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := NewClient(Options{BaseURL: base, APIKey: "k"})
	require.NoError(t, err)

	_, err = c.CreateAffiliate(context.Background(), &CreateAffiliateRequest{})
	require.Error(t, err)
	std := stderr.Normalize(err)
	assert.Equal(t, stderr.ErrCodeNetwork, std.Code)
	assert.Equal(t, "Internal server error", std.Message)
}

func TestClassify_TrimsLongBodies(t *testing.T) {
	resp := &commonhttp.Response{
		StatusCode: http.StatusInternalServerError,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(strings.Repeat("x", 1500)),
	}
	e := Classify(resp, MsgCreateFailed)
	assert.Len(t, e.Details, 1003)
	assert.Equal(t, stderr.MsgGeneric, e.Message)
}
