package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDocsUsesDocumentInfo(t *testing.T) {
	page, err := renderDocs([]byte(`{"info":{"title":"Tutor <API>","version":"2.1.0"}}`), "/v1/openapi.json")
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "<title>Tutor &lt;API&gt; 2.1.0</title>")
	assert.Contains(t, html, `spec-url="/v1/openapi.json"`)

	_, err = renderDocs([]byte("not json"), "/v1/openapi.json")
	assert.Error(t, err)
}

func TestEmbeddedOpenAPIDocumentsConversationRoute(t *testing.T) {
	var doc struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(openAPISpec, &doc))
	assert.Contains(t, doc.Paths, "/v1/conversations/messages")

	app := &App{Logger: zerolog.Nop()}
	rec := httptest.NewRecorder()
	app.OpenAPIDocs(rec, httptest.NewRequest(http.MethodGet, "/v1/docs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tutor API 1.0.0")
}
