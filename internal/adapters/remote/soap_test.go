package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/adapters/logger"
	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func soapResponse(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">` +
		`<soap:Body>` + inner + `</soap:Body></soap:Envelope>`
}

func newTestTransport(t *testing.T, handler http.HandlerFunc) *SOAPTransport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tr, err := NewSOAPTransport(Config{
		Endpoint:  srv.URL + "/ws/b2b.1cws?wsdl",
		Namespace: "urn:b2b",
		User:      "user",
		Password:  "secret",
	}, logger.NewNopLogger())
	require.NoError(t, err)
	return tr
}

func TestSOAPTransport_RequestData(t *testing.T) {
	var gotBody, gotAction, gotPath string
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotAction = r.Header.Get("SOAPAction")
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		if !ok || user != "user" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, soapResponse(`<m:requestDataResponse xmlns:m="urn:b2b"><m:return> REQ-42 </m:return></m:requestDataResponse>`))
	})

	id, err := tr.RequestData(context.Background(), models.RemoteRequest{Service: models.ServiceBalance, Params: "uuid-1"})
	require.NoError(t, err)
	assert.Equal(t, "REQ-42", id)
	assert.Equal(t, "/ws/b2b.1cws", gotPath)
	assert.Equal(t, `"urn:b2b#requestData"`, gotAction)
	assert.Contains(t, gotBody, "<ns:Service>BALANCE</ns:Service>")
	assert.Contains(t, gotBody, "<ns:additionalParameters>uuid-1</ns:additionalParameters>")
	assert.Contains(t, gotBody, "<ns:all>false</ns:all>")
}

func TestSOAPTransport_IsReady(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, soapResponse(`<m:isReadyResponse xmlns:m="urn:b2b"><m:return>true</m:return></m:isReadyResponse>`))
	})

	ready, err := tr.IsReady(context.Background(), "REQ-42")
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestSOAPTransport_GetDataByIDBuildsTree(t *testing.T) {
	payload := strings.Repeat("x", 150)
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, soapResponse(`<m:getDataByIDResponse xmlns:m="urn:b2b"><m:return><m:data>`+payload+`</m:data></m:return></m:getDataByIDResponse>`))
	})

	resp, err := tr.GetDataByID(context.Background(), "REQ-42")
	require.NoError(t, err)
	require.NotNil(t, resp.Body)
	assert.Equal(t, "getDataByIDResponse", resp.Body.Name)
	assert.Equal(t, payload, resp.Body.Child("return").Child("data").Text)
	assert.Contains(t, resp.Raw, payload)
}

func TestSOAPTransport_Fault(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, soapResponse(`<soap:Fault><faultcode>soap:Server</faultcode><faultstring>bad service</faultstring></soap:Fault>`))
	})

	_, err := tr.RequestData(context.Background(), models.RemoteRequest{Service: models.ServiceNomenclature, All: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad service")
}

func TestSOAPTransport_UnparsableBodyKeepsRaw(t *testing.T) {
	tr := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<broken><return>")
	})

	resp, err := tr.GetDataByID(context.Background(), "REQ-42")
	require.NoError(t, err)
	assert.Nil(t, resp.Body)
	assert.Equal(t, "<broken><return>", resp.Raw)
}

func TestIsLargeRequestID(t *testing.T) {
	assert.True(t, IsLargeRequestID("6f1c2a52-91c1-4f5e-9a55-0d4c3b2a1e00"))
	assert.False(t, IsLargeRequestID("REQ-42"))
	assert.False(t, IsLargeRequestID(strings.Repeat("a", 40)))
}
