package crm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "acct-1", body["account_id"])
		assert.Equal(t, "hello", body["content"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg-77"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token-1", slog.Default())

	id, err := client.Send(context.Background(), "acct-1", "contact-1", "text", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "msg-77", id)
}

func TestClient_Contact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/contacts/contact-1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"contact-1","team_id":"team-1","fields":{"name":"Ana"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", slog.Default())

	contact, err := client.Contact(context.Background(), "contact-1")
	require.NoError(t, err)
	assert.Equal(t, "team-1", contact.TeamID)

	name, ok := contact.Field("name")
	require.True(t, ok)
	assert.Equal(t, "Ana", name)
}

func TestClient_TagAndFieldMutations(t *testing.T) {
	var calls []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.RequestURI())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", slog.Default())
	ctx := context.Background()

	require.NoError(t, client.AddTag(ctx, "contact-1", "vip", "team-1"))
	require.NoError(t, client.RemoveTag(ctx, "contact-1", "vip", "team-1"))
	require.NoError(t, client.UpdateField(ctx, "contact-1", "status", "active"))
	require.NoError(t, client.UpdateCustomField(ctx, "contact-1", "plan", "premium"))

	assert.Equal(t, []string{
		"POST /internal/contacts/contact-1/tags",
		"DELETE /internal/contacts/contact-1/tags/vip?team_id=team-1",
		"PATCH /internal/contacts/contact-1/fields",
		"PATCH /internal/contacts/contact-1/fields",
	}, calls)
}

func TestClient_ErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "contact missing", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", slog.Default())

	_, err := client.Contact(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
