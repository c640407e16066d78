package testkit_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickethub/tickethub/pkg/mail"
	"github.com/tickethub/tickethub/pkg/testkit"
)

// ─── Minimal app ──────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newApp is a Factory for a three-route app: /echo returns its body,
// /notify mails a fixed code and /upstream relays an outgoing call.
func newApp(t *testing.T, env *testkit.Env) http.Handler {
	mailer := mail.NewWithTransport(mail.SMTP{From: "kit@example.com"}, env.Mail)
	env.Set("greeting", "hello")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /echo", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "message": "bad json"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": 200, "message": "ok", "data": in})
	})
	mux.HandleFunc("POST /notify", func(w http.ResponseWriter, r *http.Request) {
		err := mailer.To("guest@example.com").Subject("Code").Text("your code=123456").Send(r.Context())
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"status": 502, "message": "mail failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": 200, "message": "sent"})
	})
	mux.HandleFunc("GET /upstream", func(w http.ResponseWriter, r *http.Request) {
		resp, err := env.HTTPClient.Get("https://upstream.example.com/ping")
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{"status": 502, "message": err.Error()})
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		writeJSON(w, resp.StatusCode, map[string]any{"status": resp.StatusCode, "data": string(b)})
	})
	return mux
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ─── Scenarios ────────────────────────────────────────────────────────────────

func TestRunScenario_CapturesFromMailAndSubstitutes(t *testing.T) {
	s := &testkit.Scenario{
		Name: "mail capture",
		Steps: []testkit.Step{
			{
				Name: "notify", RequestMethod: http.MethodPost, RequestURL: "/notify",
				ExpectedCode: http.StatusOK, ExpectedMessage: "sent",
				Capture:         map[string]testkit.Capture{"code": {From: "mail", Pattern: `code=(\d+)`}},
				NetUtilMockStep: []testkit.MockStep{{Method: testkit.MethodSendMail, IsMock: true}},
			},
			{
				Name: "echo", RequestMethod: http.MethodPost, RequestURL: "/echo",
				RequestBody:  json.RawMessage(`{"code":"{{code}}","word":"{{ greeting }}"}`),
				ExpectedCode: http.StatusOK,
				Expect:       map[string]any{"data.code": "123456", "data.word": "{{greeting}}"},
				Capture:      map[string]testkit.Capture{"echoed": {From: "body", Path: "data.code"}},
			},
		},
	}
	testkit.RunScenario(t, newApp, s)
}

func TestRunScenario_MailFailure(t *testing.T) {
	s := &testkit.Scenario{
		Name: "mail down",
		Steps: []testkit.Step{{
			Name: "notify", RequestMethod: http.MethodPost, RequestURL: "/notify",
			ExpectedCode: http.StatusBadGateway, ExpectedMessage: "mail failed",
			NetUtilMockStep: []testkit.MockStep{{
				Method: testkit.MethodSendMail, ReturnData: testkit.MockReturnData{Error: "smtp down"},
			}},
		}},
	}
	testkit.RunScenario(t, newApp, s)
}

func TestRunScenario_HTTPMock(t *testing.T) {
	body := base64.StdEncoding.EncodeToString([]byte("pong"))
	s := &testkit.Scenario{
		Name:           "upstream",
		IsMockRequired: true,
		Steps: []testkit.Step{{
			Name: "relay", RequestMethod: http.MethodGet, RequestURL: "/upstream",
			ExpectedCode: http.StatusAccepted,
			Expect:       map[string]any{"data": "pong"},
			NetUtilMockStep: []testkit.MockStep{{
				Method: testkit.MethodHTTPRequest, IsMock: true, MatchURL: "https://upstream.example.com/",
				ReturnData: testkit.MockReturnData{StatusCode: http.StatusAccepted, Body: body},
			}},
		}},
	}
	testkit.RunScenario(t, newApp, s)
}

func TestMockTransport(t *testing.T) {
	steps := []testkit.MockStep{
		{Method: testkit.MethodHTTPRequest, IsMock: true, MatchURL: "https://a.example.com/"},
		{Method: testkit.MethodHTTPRequest, IsMock: true, MatchURL: "https://b.example.com/"},
	}

	mt := testkit.NewMockTransport(steps, false)
	client := &http.Client{Transport: mt}
	resp, err := client.Get("https://a.example.com/x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get("https://c.example.com/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	missing := mt.NotCalled()
	require.Len(t, missing, 1)
	assert.Equal(t, "https://b.example.com/", missing[0].MatchURL)

	strict := &http.Client{Transport: testkit.NewMockTransport(steps, true)}
	_, err = strict.Get("https://c.example.com/")
	assert.Error(t, err)
}

func TestMailMock(t *testing.T) {
	m := testkit.NewMailMock()
	mailer := mail.NewWithTransport(mail.SMTP{From: "kit@example.com"}, m)

	require.NoError(t, mailer.To("a@example.com").Subject("Hi").Text("one").Send(t.Context()))
	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, []string{"a@example.com"}, last.To)
	assert.Contains(t, string(last.Raw), "one")
	assert.Equal(t, 1, m.WasCalled())

	m.Reset()
	_, ok = m.Last()
	assert.False(t, ok)
	assert.Zero(t, m.WasCalled())
}

// ─── Loading from files ───────────────────────────────────────────────────────

func TestRunDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "echo.json", `{
		"name": "echo from files",
		"steps": [{
			"requestMethod": "post",
			"requestUrl": "/echo",
			"requestFileName": "echo_req.json",
			"expectedStatusCode": 200,
			"responseFileName": "echo_res.json"
		}]
	}`)
	writeFile(t, dir, "echo_req.json", `{"word":"{{greeting}}"}`)
	writeFile(t, dir, "echo_res.json", `{"status":200,"message":"ok","data":{"word":"hello"}}`)

	scenarios, errs := testkit.LoadAllFromDir(dir)
	require.Empty(t, errs)
	require.Len(t, scenarios, 1, "request and response bodies are not scenarios")
	assert.Equal(t, http.MethodPost, scenarios[0].Steps[0].RequestMethod)

	testkit.RunDir(t, newApp, dir)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "echo"), 0o755))
	writeFile(t, dir, "test_scenarios.json",
		`[{"serviceName":"Echo","filePath":"echo","scenariosFileName":"scenarios.json"},
		  {"serviceName":"Later","filePath":"missing","scenariosFileName":"x.json","skip":true}]`)
	writeFile(t, filepath.Join(dir, "echo"), "scenarios.json", `[
		{"name":"ok","steps":[{"requestMethod":"POST","requestUrl":"/echo","requestBody":{"a":1},"expectedCode":200,"expect":{"data.a":1}}]},
		{"name":"bad json","steps":[{"requestMethod":"POST","requestUrl":"/echo","requestBody":"nope","expectedCode":400}]}
	]`)

	testkit.RunSuite(t, filepath.Join(dir, "test_scenarios.json"), newApp)
}

func TestLoadScenario_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no name", `{"steps":[{"requestUrl":"/","expectedCode":200}]}`, "name is required"},
		{"no steps", `{"name":"x"}`, "at least one step"},
		{"no url", `{"name":"x","steps":[{"expectedCode":200}]}`, "requestUrl is required"},
		{"no code", `{"name":"x","steps":[{"requestUrl":"/"}]}`, "expectedCode is required"},
		{"two bodies", `{"name":"x","steps":[{"requestUrl":"/","expectedCode":200,"requestFileName":"a.json","requestBody":{}}]}`, "not both"},
		{"bad source", `{"name":"x","steps":[{"requestUrl":"/","expectedCode":200,"capture":{"v":{"from":"header"}}}]}`, "unknown source"},
		{"bad pattern", `{"name":"x","steps":[{"requestUrl":"/","expectedCode":200,"capture":{"v":{"from":"mail","pattern":"("}}}]}`, "capture \"v\""},
		{"mock without method", `{"name":"x","steps":[{"requestUrl":"/","expectedCode":200,"netUtilMockStep":[{"isMock":true}]}]}`, "method is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "s.json", tt.content)
			_, err := testkit.LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDumpScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "s.json",
		`{"name":"dump","steps":[{"requestUrl":"/echo","expectedCode":200,"capture":{"v":{"from":"body","path":"data"}}}]}`)
	s, err := testkit.LoadScenario(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	testkit.DumpScenario(&buf, s)
	assert.Contains(t, buf.String(), "GET /echo → 200")
	assert.Contains(t, buf.String(), "capture v from body")
}
