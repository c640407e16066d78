package testkit

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertStatusCode checks the response code and prints the body on a
// mismatch.
func AssertStatusCode(t *testing.T, step *Step, rec *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, step.ExpectedCode, rec.Code,
		"[%s %s] HTTP status code mismatch\nbody: %s", step.RequestMethod, step.RequestURL, rec.Body.String())
}

// AssertJSONBody compares two JSON documents after decoding both, so key
// order and whitespace never matter.
func AssertJSONBody(t *testing.T, expected, actual []byte) {
	t.Helper()
	if len(expected) == 0 {
		return
	}

	var expVal, actVal any
	require.NoError(t, json.Unmarshal(expected, &expVal), "expected response file is not valid JSON")
	if !assert.NoError(t, json.Unmarshal(actual, &actVal), "actual response is not valid JSON\nbody: %s", actual) {
		return
	}
	assert.Equal(t, expVal, actVal, "response body mismatch")
}

// AssertMocksAllCalled fails when an isMock=true mock step never fired.
func AssertMocksAllCalled(t *testing.T, env *Env, step *Step, mt *MockTransport) {
	t.Helper()
	for _, m := range mt.NotCalled() {
		assert.Failf(t, "mock never called", "httprequest mock (matchUrl=%q) was never called", m.MatchURL)
	}
	for _, method := range funcMocksNotCalled(env, step) {
		assert.Failf(t, "mock never called", "%s mock was never called", method)
	}
}
