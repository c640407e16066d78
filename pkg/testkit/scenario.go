// Package testkit drives REST API tests from JSON scenario files.
//
// A scenario is an ordered list of requests fired at one fresh handler.
// Each step states the request, the status and message it expects, the
// values it captures for later steps, and the side effects it mocks:
//
//	testdata/
//	  password_reset.json        ← scenario
//	  password_reset_req.json    ← request body referenced by a step
//
// Values captured from a response body or an intercepted mail are
// substituted into later steps wherever "{{name}}" appears.
//
//	func TestScenarios(t *testing.T) {
//	    testkit.RunDir(t, newHandler, "testdata")
//	}
package testkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ─── Schema ───────────────────────────────────────────────────────────────────

// Scenario is one flow loaded from a JSON file.
type Scenario struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// IsMockRequired fails the scenario when an outgoing call has no mock.
	IsMockRequired bool `json:"isMockRequired"`

	Steps []Step `json:"steps"`

	dir string
}

// Step is one request in a scenario.
type Step struct {
	Name string `json:"name"`

	RequestMethod   string            `json:"requestMethod"`
	RequestURL      string            `json:"requestUrl"`
	RequestFileName string            `json:"requestFileName"` // relative to the scenario file
	RequestBody     json.RawMessage   `json:"requestBody"`     // inline alternative to requestFileName
	Headers         map[string]string `json:"headers"`

	ExpectedCode       int    `json:"expectedCode"`
	ExpectedStatusCode int    `json:"expectedStatusCode"` // alias for expectedCode
	ExpectedMessage    string `json:"expectedMessage"`
	ResponseFileName   string `json:"responseFileName"`

	// Expect asserts single fields of the response body by dotted path,
	// e.g. {"data.status": "CONFIRMED"}.
	Expect map[string]any `json:"expect"`

	Capture map[string]Capture `json:"capture"`

	NetUtilMockStep []MockStep `json:"netUtilMockStep"`
}

// Capture names where a value for later steps comes from.
//
//	{"from": "body", "path": "data.token"}
//	{"from": "mail", "pattern": "token=([0-9a-f]+)"}
//
// A mail capture reads the last message delivered during the step and
// keeps the first submatch of pattern.
type Capture struct {
	From    string `json:"from"`
	Path    string `json:"path"`
	Pattern string `json:"pattern"`
}

// MockStep describes one intercepted side effect.
//
//	"httprequest" — outgoing calls through Env.HTTPClient
//	"sendmail"    — pkg/mail deliveries through Env.Mail
type MockStep struct {
	Method string `json:"method"`

	// IsMock asserts the side effect happened during the step.
	IsMock bool `json:"isMock"`

	// MatchURL prefix-matches outgoing HTTP requests. Empty matches any.
	MatchURL string `json:"matchUrl"`

	ReturnData MockReturnData `json:"returnData"`
}

// MockReturnData is what a mock answers with.
type MockReturnData struct {
	// StatusCode is used by "httprequest" mocks. Defaults to 200.
	StatusCode int `json:"statusCode"`

	// Body is base64-encoded. For "httprequest" it is the response body.
	Body string `json:"body"`

	// Error makes the mock fail with this message.
	Error string `json:"error"`
}

const (
	MethodHTTPRequest = "httprequest"
	MethodSendMail    = "sendmail"
)

// ─── Loading ──────────────────────────────────────────────────────────────────

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("testkit: resolve path %q: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("testkit: read %q: %w", abs, err)
	}

	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("testkit: parse %q: %w", abs, err)
	}
	s.dir = filepath.Dir(abs)
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("testkit: invalid scenario %q: %w", abs, err)
	}
	return &s, nil
}

// LoadScenarioArray reads a file holding a JSON array of scenarios.
func LoadScenarioArray(path string) ([]*Scenario, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("testkit: resolve scenario array path %q: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("testkit: read scenario array %q: %w", abs, err)
	}

	var scenarios []*Scenario
	if err := json.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("testkit: parse scenario array %q: %w", abs, err)
	}
	for i, s := range scenarios {
		s.dir = filepath.Dir(abs)
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("testkit: invalid scenario %d in %q: %w", i, abs, err)
		}
	}
	return scenarios, nil
}

// LoadAllFromDir loads every *.json file in dir that holds a scenario
// object. Files that fail to load are returned as errors.
func LoadAllFromDir(dir string) ([]*Scenario, []error) {
	paths, err := scenarioFiles(dir)
	if err != nil {
		return nil, []error{err}
	}

	var (
		scenarios []*Scenario
		errs      []error
	)
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, errs
}

// scenarioFiles lists dir/*.json, leaving out request and response bodies
// (files ending in _req.json or _res.json).
func scenarioFiles(dir string) ([]string, error) {
	all, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("testkit: glob %q: %w", dir, err)
	}
	var paths []string
	for _, p := range all {
		if strings.HasSuffix(p, "_req.json") || strings.HasSuffix(p, "_res.json") {
			continue
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("testkit: no scenario files found in %q", dir)
	}
	return paths, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.Name == "" {
			st.Name = fmt.Sprintf("step %d", i+1)
		}
		if st.RequestURL == "" {
			return fmt.Errorf("%s: requestUrl is required", st.Name)
		}
		if st.RequestMethod == "" {
			st.RequestMethod = http.MethodGet
		}
		st.RequestMethod = strings.ToUpper(st.RequestMethod)
		if st.ExpectedCode == 0 {
			st.ExpectedCode = st.ExpectedStatusCode
		}
		if st.ExpectedCode == 0 {
			return fmt.Errorf("%s: expectedCode is required", st.Name)
		}
		if st.RequestFileName != "" && len(st.RequestBody) > 0 {
			return fmt.Errorf("%s: set requestFileName or requestBody, not both", st.Name)
		}
		for name, c := range st.Capture {
			switch c.From {
			case "body":
				if c.Path == "" {
					return fmt.Errorf("%s: capture %q needs a path", st.Name, name)
				}
			case "mail":
				if c.Pattern == "" {
					return fmt.Errorf("%s: capture %q needs a pattern", st.Name, name)
				}
				if _, err := regexp.Compile(c.Pattern); err != nil {
					return fmt.Errorf("%s: capture %q: %w", st.Name, name, err)
				}
			default:
				return fmt.Errorf("%s: capture %q has unknown source %q", st.Name, name, c.From)
			}
		}
		for j, m := range st.NetUtilMockStep {
			if m.Method == "" {
				return fmt.Errorf("%s: netUtilMockStep[%d].method is required", st.Name, j)
			}
		}
	}
	return nil
}

func (s *Scenario) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}
