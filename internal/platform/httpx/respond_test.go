package httpx

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONWritesBodyAndContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, 200, map[string]string{"status": "ok"})

	require.Equal(t, 200, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProblemUsesProblemContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, 404, "Not Found", "no such user")

	require.Equal(t, 404, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	require.Equal(t, "Not Found", pd.Title)
	require.Equal(t, 404, pd.Status)
	require.Equal(t, "no such user", pd.Detail)
}
