package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/upb/workdesk/internal/access"
	"go.uber.org/zap"
)

func newTestSession(t *testing.T, role access.Role) *access.Session {
	t.Helper()
	sess, err := access.NewSession(uuid.New(), access.Identity{
		UserID:  uuid.New(),
		Subject: uuid.New().String(),
		Email:   "alex@example.com",
		Name:    "Alex",
	}, role)
	require.NoError(t, err)
	return sess
}

func newTestResolver(t *testing.T) *access.Resolver {
	t.Helper()
	r, err := access.NewResolver(access.DefaultTable(), access.UnknownRoleDeny, zap.NewNop())
	require.NoError(t, err)
	return r
}

// newRequest builds a request carrying sess, with body JSON-encoded when
// it is not nil
func newRequest(t *testing.T, method, target string, body interface{}, sess *access.Session) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		if raw, ok := body.(string); ok {
			reader = bytes.NewBufferString(raw)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, target, reader)
	if sess != nil {
		req = req.WithContext(access.NewContext(req.Context(), sess))
	}
	return req
}

// decodeData unmarshals the data field of a success envelope into v
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}
