package handler

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type testResponse struct {
	t *testing.T
	*httptest.ResponseRecorder
}

func (r *testResponse) json() map[string]any {
	r.t.Helper()
	var out map[string]any
	require.NoError(r.t, json.Unmarshal(r.Body.Bytes(), &out), "body: %s", r.Body.String())
	return out
}
