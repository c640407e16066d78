package testkit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// ─── Environment ──────────────────────────────────────────────────────────────

// Env is the per-scenario state a Factory wires into the handler it builds.
type Env struct {
	// Mail is the "sendmail" mocker. Build the app's mailer with
	// mail.NewWithTransport(cfg, env.Mail).
	Mail *MailMock

	// HTTPClient gets a fresh MockTransport before every step.
	HTTPClient *http.Client

	vars    map[string]string
	mockers map[string]FuncMocker
}

func newEnv() *Env {
	m := NewMailMock()
	return &Env{
		Mail:       m,
		HTTPClient: &http.Client{},
		vars:       map[string]string{},
		mockers:    map[string]FuncMocker{MethodSendMail: m},
	}
}

// Set makes value available to steps as "{{name}}".
func (e *Env) Set(name, value string) { e.vars[name] = value }

// Var returns a value set by the factory or captured by a step.
func (e *Env) Var(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

// RegisterMocker adds a mocker for a custom netUtilMockStep method.
func (e *Env) RegisterMocker(method string, m FuncMocker) { e.mockers[method] = m }

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// expand replaces every {{name}} in s. An unknown name is an error.
func (e *Env) expand(s string) (string, error) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, ok := e.vars[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("testkit: undefined variables %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// Factory builds a fresh handler for one scenario. It seeds whatever the
// scenario needs and publishes ids and tokens through env.Set.
type Factory func(t *testing.T, env *Env) http.Handler

// ─── Public API ───────────────────────────────────────────────────────────────

// Run loads one scenario file and runs it as a subtest.
func Run(t *testing.T, factory Factory, scenarioPath string) {
	t.Helper()

	s, err := LoadScenario(scenarioPath)
	if err != nil {
		t.Fatalf("testkit: load scenario %q: %v", scenarioPath, err)
	}
	t.Run(s.Name, func(t *testing.T) {
		RunScenario(t, factory, s)
	})
}

// RunDir runs every scenario file in dir as a subtest. Files that fail to
// load are reported as errors.
func RunDir(t *testing.T, factory Factory, dir string) {
	t.Helper()

	paths, err := scenarioFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			t.Errorf("testkit: load %q: %v", path, err)
			continue
		}
		t.Run(s.Name, func(t *testing.T) {
			RunScenario(t, factory, s)
		})
	}
}

// RunScenario builds a handler with factory and fires the steps of s in
// order. A failed step stops the scenario.
func RunScenario(t *testing.T, factory Factory, s *Scenario) {
	t.Helper()

	env := newEnv()
	handler := factory(t, env)
	for i := range s.Steps {
		step := &s.Steps[i]
		if !t.Run(step.Name, func(t *testing.T) { runStep(t, handler, env, s, step) }) {
			return
		}
	}
}

// ─── Internal execution ───────────────────────────────────────────────────────

func runStep(t *testing.T, handler http.Handler, env *Env, s *Scenario, step *Step) {
	t.Helper()

	// ── 1. Build the request ──────────────────────────────────────────────

	raw := []byte(step.RequestBody)
	if p := s.resolve(step.RequestFileName); p != "" {
		data, err := os.ReadFile(p)
		require.NoError(t, err, "read request file")
		raw = data
	}
	body, err := env.expand(string(raw))
	require.NoError(t, err, "request body")
	target, err := env.expand(step.RequestURL)
	require.NoError(t, err, "request url")

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(step.RequestMethod, target, reqBody)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range step.Headers {
		v, err := env.expand(v)
		require.NoError(t, err, "header %s", k)
		req.Header.Set(k, v)
	}

	// ── 2. Install mocks ──────────────────────────────────────────────────

	mt := NewMockTransport(step.NetUtilMockStep, s.IsMockRequired)
	env.HTTPClient.Transport = mt
	require.NoError(t, activateFuncMocks(env, s, step))

	// ── 3. Fire ───────────────────────────────────────────────────────────

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// ── 4. Assert ─────────────────────────────────────────────────────────

	AssertStatusCode(t, step, rec)

	var decoded any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}

	if step.ExpectedMessage != "" {
		want, err := env.expand(step.ExpectedMessage)
		require.NoError(t, err, "expectedMessage")
		got, _ := lookupPath(decoded, "message")
		require.Equal(t, want, got, "response message")
	}
	for path, want := range step.Expect {
		if str, ok := want.(string); ok {
			want, err = env.expand(str)
			require.NoError(t, err, "expect %s", path)
		}
		got, ok := lookupPath(decoded, path)
		require.True(t, ok, "response has no %s\nbody: %s", path, rec.Body.String())
		require.Equal(t, want, got, "response %s", path)
	}
	if p := s.resolve(step.ResponseFileName); p != "" {
		expected, err := os.ReadFile(p)
		require.NoError(t, err, "read response file")
		exp, err := env.expand(string(expected))
		require.NoError(t, err, "response file")
		AssertJSONBody(t, []byte(exp), rec.Body.Bytes())
	}

	AssertMocksAllCalled(t, env, step, mt)

	// ── 5. Capture ────────────────────────────────────────────────────────

	for name, c := range step.Capture {
		v, err := capture(env, c, decoded)
		require.NoError(t, err, "capture %s", name)
		env.Set(name, v)
	}
}

func capture(env *Env, c Capture, body any) (string, error) {
	switch c.From {
	case "body":
		v, ok := lookupPath(body, c.Path)
		if !ok {
			return "", fmt.Errorf("response has no %s", c.Path)
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case "mail":
		d, ok := env.Mail.Last()
		if !ok {
			return "", fmt.Errorf("no mail was delivered")
		}
		m := regexp.MustCompile(c.Pattern).FindSubmatch(d.Raw)
		if len(m) < 2 {
			return "", fmt.Errorf("pattern %q matched nothing in mail to %s", c.Pattern, strings.Join(d.To, ", "))
		}
		return string(bytes.TrimSpace(m[1])), nil
	}
	return "", fmt.Errorf("unknown capture source %q", c.From)
}

// lookupPath walks a decoded JSON value by dotted path. Numeric segments
// index arrays.
func lookupPath(v any, path string) (any, bool) {
	for _, seg := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, true
}

// DumpScenario prints a summary of s, for use while writing scenarios.
func DumpScenario(w io.Writer, s *Scenario) {
	fmt.Fprintf(w, "Scenario: %s (%s)\n", s.Name, filepath.Base(s.dir))
	for i, st := range s.Steps {
		fmt.Fprintf(w, "  %d. %s %s → %d\n", i+1, st.RequestMethod, st.RequestURL, st.ExpectedCode)
		for name, c := range st.Capture {
			fmt.Fprintf(w, "     capture %s from %s\n", name, c.From)
		}
		for _, m := range st.NetUtilMockStep {
			fmt.Fprintf(w, "     mock %s isMock=%v matchUrl=%q\n", m.Method, m.IsMock, m.MatchURL)
		}
	}
}
