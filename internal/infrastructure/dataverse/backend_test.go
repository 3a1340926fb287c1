package dataverse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/dataverse-metadata-mcp/internal/domain"
)

const apiPrefix = "/api/data/v9.2/"

// fakeDataverse serves the identity platform and Web API endpoints a
// session talks to.
type fakeDataverse struct {
	srv *httptest.Server

	rejectToken     atomic.Bool
	versionFailures int32

	tokenRequests   int32
	versionRequests int32
	deviceClientID  atomic.Value
	lastTokenScope  atomic.Value
	deviceScope     atomic.Value
	entityFilter    atomic.Value
}

func newFakeDataverse(t *testing.T) *fakeDataverse {
	f := &fakeDataverse{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDataverse) backend() *Backend {
	return NewBackend(
		WithAuthorityHost(f.srv.URL),
		WithRetryWait(time.Millisecond, 5*time.Millisecond),
	)
}

func (f *fakeDataverse) params(auth domain.AuthSpec) domain.ConnectionParams {
	return domain.ConnectionParams{
		EnvironmentName: "dev",
		OrganizationURL: f.srv.URL + "/",
		Auth:            auth,
		Timeout:         5 * time.Second,
		MaxRetries:      2,
	}
}

func servicePrincipal() domain.ServicePrincipalAuth {
	return domain.ServicePrincipalAuth{TenantID: "tenant-1", ClientID: "app", ClientSecret: "secret"}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (f *fakeDataverse) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/devicecode"):
		_ = r.ParseForm()
		f.deviceClientID.Store(r.PostForm.Get("client_id"))
		f.deviceScope.Store(r.PostForm.Get("scope"))
		writeJSON(w, http.StatusOK, `{"device_code":"dc","user_code":"ABCD","verification_uri":"https://example.com/devicelogin","expires_in":900,"interval":1}`)
		return
	case strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token"):
		atomic.AddInt32(&f.tokenRequests, 1)
		_ = r.ParseForm()
		f.lastTokenScope.Store(r.PostForm.Get("scope"))
		if f.rejectToken.Load() {
			writeJSON(w, http.StatusUnauthorized, `{"error":"invalid_client","error_description":"bad secret"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
		return
	}

	if r.Header.Get("Authorization") != "Bearer tok" {
		writeJSON(w, http.StatusUnauthorized, `{"error":{"code":"0x80072560","message":"not signed in"}}`)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, apiPrefix)
	if strings.Contains(path, "'missing'") {
		writeJSON(w, http.StatusNotFound, `{"error":{"code":"0x80060888","message":"Could not find entity"}}`)
		return
	}

	switch path {
	case "RetrieveVersion()":
		if atomic.AddInt32(&f.versionRequests, 1) <= atomic.LoadInt32(&f.versionFailures) {
			writeJSON(w, http.StatusServiceUnavailable, `{"error":{"message":"busy"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"Version":"9.2.24034.211"}`)
	case "WhoAmI":
		writeJSON(w, http.StatusOK, `{"UserId":"u-1","OrganizationId":"org-1"}`)
	case "organizations(org-1)":
		writeJSON(w, http.StatusOK, `{"friendlyname":"Contoso"}`)
	case "EntityDefinitions":
		f.entityFilter.Store(r.URL.Query().Get("$filter"))
		writeJSON(w, http.StatusOK, entitiesFixture)
	case "EntityDefinitions(LogicalName='account')":
		if r.URL.Query().Get("$expand") != "" {
			writeJSON(w, http.StatusOK, relationshipsFixture)
			return
		}
		writeJSON(w, http.StatusOK, accountFixture)
	case "EntityDefinitions(LogicalName='account')/Attributes":
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, http.StatusOK, attributesPage2Fixture)
			return
		}
		writeJSON(w, http.StatusOK, fmt.Sprintf(attributesPage1Fixture, f.srv.URL))
	case "EntityDefinitions(LogicalName='account')/Attributes/Microsoft.Dynamics.CRM.PicklistAttributeMetadata":
		writeJSON(w, http.StatusOK, picklistFixture)
	default:
		writeJSON(w, http.StatusNotFound, `{"error":{"message":"no route"}}`)
	}
}

const accountFixture = `{
	"LogicalName": "account",
	"SchemaName": "Account",
	"DisplayName": {"UserLocalizedLabel": {"Label": "Account"}},
	"DisplayCollectionName": {"UserLocalizedLabel": {"Label": "Accounts"}},
	"Description": {"UserLocalizedLabel": null},
	"EntitySetName": "accounts",
	"PrimaryIdAttribute": "accountid",
	"PrimaryNameAttribute": "name",
	"IsCustomEntity": false,
	"IsManaged": true,
	"ObjectTypeCode": 1,
	"IsActivity": false,
	"IsIntersect": false,
	"CanBeInManyToMany": {"Value": true},
	"CanBeRelatedEntityInRelationship": {"Value": true},
	"CanBePrimaryEntityInRelationship": {"Value": false}
}`

const entitiesFixture = `{"value": [
	{"LogicalName": "new_project", "DisplayName": {"UserLocalizedLabel": {"Label": "Project"}}, "IsCustomEntity": true},
	{"LogicalName": "account", "DisplayName": {"UserLocalizedLabel": {"Label": "Account"}}},
	{"LogicalName": "contact", "DisplayName": {"UserLocalizedLabel": {"Label": "Contact"}}}
]}`

const attributesPage1Fixture = `{"value": [
	{"@odata.type": "#Microsoft.Dynamics.CRM.StringAttributeMetadata", "LogicalName": "name", "AttributeType": "String",
	 "DisplayName": {"UserLocalizedLabel": {"Label": "Name"}}, "MaxLength": 160, "Format": "Text",
	 "RequiredLevel": {"Value": "ApplicationRequired"}, "IsValidForRead": true, "IsValidForUpdate": true, "IsPrimaryName": true},
	{"@odata.type": "#Microsoft.Dynamics.CRM.IntegerAttributeMetadata", "LogicalName": "numberofemployees", "AttributeType": "Integer",
	 "DisplayName": {"UserLocalizedLabel": {"Label": "Employees"}}, "MinValue": 0, "MaxValue": 1000000000, "Format": "None",
	 "RequiredLevel": {"Value": "None"}}
], "@odata.nextLink": "%s/api/data/v9.2/EntityDefinitions(LogicalName='account')/Attributes?page=2"}`

const attributesPage2Fixture = `{"value": [
	{"@odata.type": "#Microsoft.Dynamics.CRM.LookupAttributeMetadata", "LogicalName": "primarycontactid", "AttributeType": "Lookup",
	 "DisplayName": {"UserLocalizedLabel": {"Label": "Primary Contact"}}, "Targets": ["contact"]},
	{"@odata.type": "#Microsoft.Dynamics.CRM.PicklistAttributeMetadata", "LogicalName": "new_tier", "AttributeType": "Picklist",
	 "DisplayName": {"UserLocalizedLabel": {"Label": "Tier"}}, "IsCustomAttribute": true},
	{"@odata.type": "#Microsoft.Dynamics.CRM.MoneyAttributeMetadata", "LogicalName": "revenue", "AttributeType": "Money",
	 "DisplayName": {"UserLocalizedLabel": {"Label": "Annual Revenue"}}, "MinValue": -922337203685477, "MaxValue": 922337203685477,
	 "Precision": 2, "PrecisionSource": 2},
	{"@odata.type": "#Microsoft.Dynamics.CRM.BooleanAttributeMetadata", "LogicalName": "donotemail", "AttributeType": "Boolean",
	 "DisplayName": {"UserLocalizedLabel": {"Label": "Do not allow Emails"}}}
]}`

const picklistFixture = `{"value": [
	{"LogicalName": "new_tier", "OptionSet": {"Name": "new_tier", "IsGlobal": false, "Options": [
		{"Value": 1, "Label": {"UserLocalizedLabel": {"Label": "Gold"}}, "Color": "#FFD700"},
		{"Value": 2, "Label": {"UserLocalizedLabel": {"Label": "Silver"}}, "Description": {"UserLocalizedLabel": {"Label": "Second tier"}}}
	]}}
]}`

const relationshipsFixture = `{
	"LogicalName": "account",
	"OneToManyRelationships": [
		{"SchemaName": "account_primary_contact", "ReferencedEntity": "account", "ReferencingEntity": "contact",
		 "ReferencingAttribute": "parentcustomerid", "ReferencedEntityNavigationPropertyName": "contact_customer_accounts",
		 "ReferencingEntityNavigationPropertyName": "parentcustomerid_account",
		 "CascadeConfiguration": {"Assign": "Cascade", "Delete": "Cascade", "Reparent": "Cascade", "Share": "Cascade", "Unshare": "Cascade", "RollupView": "NoCascade"}}
	],
	"ManyToOneRelationships": [
		{"SchemaName": "account_owner", "ReferencedEntity": "systemuser", "ReferencingEntity": "account",
		 "ReferencingAttribute": "ownerid", "IsManaged": true}
	],
	"ManyToManyRelationships": [
		{"SchemaName": "accountleads_association", "Entity1LogicalName": "account", "Entity2LogicalName": "lead",
		 "IntersectEntityName": "accountleads", "Entity1NavigationPropertyName": "accountleads_association",
		 "Entity2NavigationPropertyName": "accountleads_association", "IsCustomRelationship": false}
	]
}`

func connectReady(t *testing.T, f *fakeDataverse) domain.Session {
	t.Helper()
	session, err := f.backend().Connect(context.Background(), f.params(servicePrincipal()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	require.Eventually(t, session.IsReady, 5*time.Second, 10*time.Millisecond)
	return session
}

func TestConnectServicePrincipal(t *testing.T) {
	f := newFakeDataverse(t)
	session := connectReady(t, f)

	assert.NotEmpty(t, session.ID())
	assert.Equal(t, "Contoso", session.OrganizationName())
	assert.Equal(t, "9.2.24034.211", session.Version())
	assert.Empty(t, session.LastError())
	assert.Equal(t, f.srv.URL+"/.default", f.lastTokenScope.Load())
}

func TestConnectRejectedCredentials(t *testing.T) {
	f := newFakeDataverse(t)
	f.rejectToken.Store(true)

	session, err := f.backend().Connect(context.Background(), f.params(servicePrincipal()))
	require.NoError(t, err)
	defer session.Close()

	require.Eventually(t, func() bool { return session.LastError() != "" }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, session.IsReady())
	assert.Contains(t, session.LastError(), "invalid_client")

	_, err = session.ListEntities(context.Background(), false)
	assert.ErrorIs(t, err, domain.ErrNoConnection)
}

func TestConnectRejectsUnusableParams(t *testing.T) {
	b := NewBackend()

	_, err := b.Connect(context.Background(), domain.ConnectionParams{Auth: servicePrincipal()})
	var authErr *domain.InvalidAuthConfigError
	require.ErrorAs(t, err, &authErr)

	_, err = b.Connect(context.Background(), domain.ConnectionParams{
		OrganizationURL: "https://org.example.com",
		Auth:            domain.UnsupportedAuth{Type: "Certificate"},
	})
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Unsupported authentication type: Certificate", authErr.Error())
}

func TestConnectRetriesServerErrors(t *testing.T) {
	f := newFakeDataverse(t)
	atomic.StoreInt32(&f.versionFailures, 2)

	connectReady(t, f)
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.versionRequests))
}

func TestConnectInteractiveDeviceCode(t *testing.T) {
	if testing.Short() {
		t.Skip("device code polling waits a full interval")
	}
	f := newFakeDataverse(t)

	session, err := f.backend().Connect(context.Background(), f.params(domain.InteractiveAuth{RedirectURI: "http://localhost"}))
	require.NoError(t, err)
	defer session.Close()

	require.Eventually(t, session.IsReady, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, DefaultPublicClientID, f.deviceClientID.Load())
	assert.Contains(t, f.deviceScope.Load(), "offline_access")
}

func TestSessionClose(t *testing.T) {
	f := newFakeDataverse(t)
	session := connectReady(t, f)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.False(t, session.IsReady())

	_, err := session.GetEntity(context.Background(), "account")
	assert.ErrorIs(t, err, domain.ErrNoConnection)
}

func TestListEntities(t *testing.T) {
	f := newFakeDataverse(t)
	session := connectReady(t, f)

	entities, err := session.ListEntities(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, []string{"Account", "Contact", "Project"},
		[]string{entities[0].DisplayName, entities[1].DisplayName, entities[2].DisplayName})
	assert.Equal(t, "", f.entityFilter.Load())

	_, err = session.ListEntities(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "IsCustomEntity eq true", f.entityFilter.Load())
}

func TestGetEntity(t *testing.T) {
	f := newFakeDataverse(t)
	session := connectReady(t, f)

	entity, err := session.GetEntity(context.Background(), "account")
	require.NoError(t, err)
	assert.Equal(t, "Account", entity.DisplayName)
	assert.Equal(t, "Accounts", entity.DisplayCollectionName)
	assert.Empty(t, entity.Description)
	assert.Equal(t, "accountid", entity.PrimaryIDAttribute)
	require.NotNil(t, entity.ObjectTypeCode)
	assert.Equal(t, 1, *entity.ObjectTypeCode)
	assert.True(t, entity.IsManaged)
	assert.Equal(t, domain.EntityCapabilities{
		CanCreate:                        true,
		CanRead:                          true,
		CanUpdate:                        true,
		CanDelete:                        true,
		CanBeInBusinessProcess:           true,
		CanBeRelatedEntityInRelationship: true,
	}, entity.Capabilities)

	_, err = session.GetEntity(context.Background(), "missing")
	assert.True(t, domain.IsEntityNotFound(err))
}

func TestListAttributes(t *testing.T) {
	f := newFakeDataverse(t)
	session := connectReady(t, f)

	attributes, err := session.ListAttributes(context.Background(), "account", false)
	require.NoError(t, err)
	require.Len(t, attributes, 6)

	byName := map[string]domain.AttributeMetadata{}
	for _, a := range attributes {
		byName[a.LogicalName] = a
	}
	assert.Equal(t, "Annual Revenue", attributes[0].DisplayName)

	name := byName["name"]
	assert.True(t, name.IsRequired)
	assert.True(t, name.IsPrimaryName)
	assert.True(t, name.CanRead)
	assert.Equal(t, 160, *name.MaxLength())
	assert.Equal(t, domain.StringDetail{MaxLength: name.MaxLength(), Format: "Text"}, name.Detail)

	employees := byName["numberofemployees"].Detail.(domain.IntegerDetail)
	assert.Equal(t, int64(0), *employees.MinValue)
	assert.Equal(t, int64(1000000000), *employees.MaxValue)
	assert.False(t, byName["numberofemployees"].IsRequired)

	revenue := byName["revenue"].Detail.(domain.MoneyDetail)
	assert.Equal(t, 2, *revenue.Precision)
	assert.Equal(t, 2, *revenue.PrecisionSource)

	assert.Equal(t, "contact", byName["primarycontactid"].LookupTargetEntity())
	assert.Equal(t, domain.OtherDetail{}, byName["donotemail"].Detail)

	tier := byName["new_tier"].Detail.(domain.PicklistDetail)
	assert.Equal(t, "new_tier", tier.OptionSetName)
	assert.Equal(t, []domain.OptionMetadata{
		{Value: 1, Label: "Gold", Color: "#FFD700"},
		{Value: 2, Label: "Silver", Description: "Second tier"},
	}, tier.Options)

	custom, err := session.ListAttributes(context.Background(), "account", true)
	require.NoError(t, err)
	require.Len(t, custom, 1)
	assert.Equal(t, "new_tier", custom[0].LogicalName)

	_, err = session.ListAttributes(context.Background(), "missing", false)
	assert.True(t, domain.IsEntityNotFound(err))
}

func TestListRelationships(t *testing.T) {
	f := newFakeDataverse(t)
	session := connectReady(t, f)

	relationships, err := session.ListRelationships(context.Background(), "account")
	require.NoError(t, err)
	require.Len(t, relationships, 3)

	assert.Equal(t, "account_owner", relationships[0].SchemaName)
	assert.Equal(t, domain.RelationshipManyToOne, relationships[0].RelationshipType)
	assert.Equal(t, "systemuser", relationships[0].PrimaryEntity)
	assert.Equal(t, "ownerid", relationships[0].LookupAttributeName)
	assert.Nil(t, relationships[0].CascadeConfiguration)

	oneToMany := relationships[1]
	assert.Equal(t, "account_primary_contact", oneToMany.SchemaName)
	assert.Equal(t, domain.RelationshipOneToMany, oneToMany.RelationshipType)
	assert.Equal(t, "contact", oneToMany.RelatedEntity)
	require.NotNil(t, oneToMany.CascadeConfiguration)
	assert.Equal(t, "NoCascade", oneToMany.CascadeConfiguration.Rollup)

	manyToMany := relationships[2]
	assert.Equal(t, domain.RelationshipManyToMany, manyToMany.RelationshipType)
	assert.Equal(t, "lead", manyToMany.RelatedEntity)
	assert.Equal(t, "accountleads", manyToMany.IntersectEntityName)

	_, err = session.ListRelationships(context.Background(), "missing")
	assert.True(t, domain.IsEntityNotFound(err))
}

func TestAPIErrorMessage(t *testing.T) {
	err := decodeAPIError(&http.Response{
		StatusCode: http.StatusForbidden,
		Body:       http.NoBody,
	})
	assert.EqualError(t, err, "Dataverse request failed with status 403")

	raw, _ := json.Marshal(map[string]interface{}{"error": map[string]string{"code": "x", "message": "denied"}})
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusForbidden)
	_, _ = rec.Write(raw)
	err = decodeAPIError(rec.Result())
	assert.EqualError(t, err, "Dataverse request failed with status 403: denied")
}
