package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/9triver/opcgw/internal/config"
	"github.com/9triver/opcgw/internal/domain/gateway/diagnostics"
	regtypes "github.com/9triver/opcgw/internal/domain/registry/types"
	"github.com/awcullen/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ListAllApplicationsFollowsContinuation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/applications", r.URL.Path)
		page := regtypes.ApplicationInfoListModel{}
		switch r.URL.Query().Get("continuationToken") {
		case "":
			page.Items = []regtypes.ApplicationInfoModel{{ApplicationID: "a1"}}
			page.ContinuationToken = "next page"
		case "next page":
			page.Items = []regtypes.ApplicationInfoModel{{ApplicationID: "a2"}}
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	c := NewClient(config.BackendConfig{URL: srv.URL})
	apps, err := c.ListAllApplications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "a1", apps[0].ApplicationID)
	assert.Equal(t, "a2", apps[1].ApplicationID)
}

func TestClient_QueryAllApplicationsSendsQuery(t *testing.T) {
	var got regtypes.ApplicationRegistrationQueryModel
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/applications/query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(regtypes.ApplicationInfoListModel{
			Items: []regtypes.ApplicationInfoModel{{ApplicationID: "a1", ApplicationURI: got.ApplicationURI}},
		})
	}))
	defer srv.Close()

	c := NewClient(config.BackendConfig{URL: srv.URL})
	apps, err := c.QueryAllApplications(context.Background(), &regtypes.ApplicationRegistrationQueryModel{ApplicationURI: "urn:plc"})
	require.NoError(t, err)
	assert.Equal(t, "urn:plc", got.ApplicationURI)
	require.Len(t, apps, 1)
	assert.Equal(t, "urn:plc", apps[0].ApplicationURI)
}

func TestClient_GetApplication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/applications/app-1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"application": {"applicationId": "app-1", "applicationUri": "urn:plc"},
			"endpoints": [{"id": "ep-1", "securityLevel": 2, "endpoint": {"url": "opc.tcp://plc:4840"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.BackendConfig{URL: srv.URL})
	reg, err := c.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, "urn:plc", reg.Application.ApplicationURI)
	require.Len(t, reg.Endpoints, 1)
	assert.Equal(t, int32(2), *reg.Endpoints[0].SecurityLevel)

	_, err = c.GetApplication(context.Background(), "missing")
	assert.Equal(t, ua.BadNotFound, diagnostics.StatusOf(err))
}
