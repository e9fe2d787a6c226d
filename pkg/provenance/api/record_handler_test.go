package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medchain/provenance/pkg/provenance"
	"github.com/medchain/provenance/pkg/provenance/api"
	ledgermemory "github.com/medchain/provenance/pkg/provenance/ledger/memory"
	repomemory "github.com/medchain/provenance/pkg/provenance/repo/memory"
	memorystore "github.com/medchain/provenance/pkg/provenance/store/memory"
)

type testServer struct {
	*httptest.Server
	auth *jwtAuthHolder
}

// jwtAuthHolder keeps the verifier around so tests can mint bearer
// tokens for arbitrary identities.
type jwtAuthHolder struct {
	tokenFor func(t *testing.T, identity provenance.Identity) string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	engine, err := provenance.New(
		provenance.WithLedger(ledgermemory.New()),
		provenance.WithIndex(repomemory.New()),
		provenance.WithContentStore(memorystore.New()),
	)
	require.NoError(t, err)

	tokenAuth := api.NewTokenAuth([]byte("test-secret"))
	srv := httptest.NewServer(api.NewRouter(engine, tokenAuth))
	t.Cleanup(srv.Close)

	return &testServer{
		Server: srv,
		auth: &jwtAuthHolder{
			tokenFor: func(t *testing.T, identity provenance.Identity) string {
				t.Helper()
				token, err := api.IssueToken(tokenAuth, identity)
				require.NoError(t, err)
				return token
			},
		},
	}
}

func (s *testServer) do(t *testing.T, method, path string, identity provenance.Identity, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+s.auth.tokenFor(t, identity))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodGet, "/records", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadAndDownloadContent(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/content", strings.NewReader("scan bytes"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+srv.auth.tokenFor(t, "0xaaa"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	uploaded := decode[struct {
		ContentID string `json:"content_id"`
	}](t, resp)
	require.NotEmpty(t, uploaded.ContentID)

	t.Run("download round-trip", func(t *testing.T) {
		resp := srv.do(t, http.MethodGet, "/content/"+uploaded.ContentID, "0xaaa", nil)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "scan bytes", string(data))
	})

	t.Run("unknown content id", func(t *testing.T) {
		resp := srv.do(t, http.MethodGet, "/content/bafkreimissing", "0xaaa", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRegisterAndListRecords(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/records", "0xAAA", map[string]string{
		"content_ref": "QmABC",
		"description": "blood panel",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry := decode[provenance.MedicalRecordEntry](t, resp)
	assert.Nil(t, entry.TokenID)
	assert.Equal(t, "blood panel", entry.Description)

	t.Run("missing content_ref", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/records", "0xAAA", map[string]string{"description": "x"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("owner sees the record", func(t *testing.T) {
		resp := srv.do(t, http.MethodGet, "/records", "0xaaa", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		records := decode[[]provenance.MedicalRecordEntry](t, resp)
		require.Len(t, records, 1)
		assert.Equal(t, entry.ID, records[0].ID)
	})
}

func TestMintGrantRevokeFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/records/mint", "0xaaa", map[string]string{"content_ref": "QmABC"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decode[provenance.MintResult](t, resp)
	assert.False(t, result.Unindexed)
	tokenID := result.Token.TokenID

	grantPath := fmt.Sprintf("/tokens/%d/grants", tokenID)

	t.Run("grant by owner", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, grantPath, "0xaaa", map[string]string{"grantee": "0xDDD"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})

	t.Run("grantee sees the shared record", func(t *testing.T) {
		resp := srv.do(t, http.MethodGet, "/records/shared", "0xddd", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		records := decode[[]provenance.MedicalRecordEntry](t, resp)
		require.Len(t, records, 1)
		assert.Equal(t, provenance.ContentID("QmABC"), records[0].ContentRef)
	})

	t.Run("grant by non-owner is forbidden", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, grantPath, "0xbbb", map[string]string{"grantee": "0xeee"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("revoke hides the record", func(t *testing.T) {
		resp := srv.do(t, http.MethodDelete, grantPath+"/0xDDD", "0xaaa", nil)
		resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = srv.do(t, http.MethodGet, "/records/shared", "0xddd", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		records := decode[[]provenance.MedicalRecordEntry](t, resp)
		assert.Empty(t, records)
	})

	t.Run("grant on unknown token", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/tokens/99/grants", "0xaaa", map[string]string{"grantee": "0xddd"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("invalid token id", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/tokens/abc/grants", "0xaaa", map[string]string{"grantee": "0xddd"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestReconcileEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, http.MethodPost, "/records/mint", "0xaaa", map[string]string{"content_ref": "QmABC"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	result := decode[provenance.MintResult](t, resp)

	path := fmt.Sprintf("/tokens/%d/reconcile", result.Token.TokenID)
	resp = srv.do(t, http.MethodPost, path, "0xaaa", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entry := decode[provenance.MedicalRecordEntry](t, resp)
	require.NotNil(t, entry.TokenID)
	assert.Equal(t, result.Token.TokenID, *entry.TokenID)

	t.Run("unknown token", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/tokens/99/reconcile", "0xaaa", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
