package testkit

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
)

// ─── FuncMocker interface ─────────────────────────────────────────────────────

// FuncMocker wraps a testify mock so scenario steps can fail and verify
// non-HTTP side effects such as mail.
//
// Register extra mockers on the Env a Factory receives:
//
//	env.RegisterMocker("sms", testkit.NewFuncMocker("sms"))
type FuncMocker interface {
	// Intercept is called when the side effect fires. rawBody is whatever
	// the side effect would have sent.
	Intercept(rawBody []byte) error

	// Reset clears call history and configured failures.
	Reset()

	// WasCalled returns how many times Intercept ran since the last Reset.
	WasCalled() int

	// Mock exposes the testify mock for custom On/Return chains.
	Mock() *mock.Mock
}

// ─── GenericFuncMocker ────────────────────────────────────────────────────────

// GenericFuncMocker is a testify-backed FuncMocker. It accepts every call
// until told to fail.
type GenericFuncMocker struct {
	m      mock.Mock
	method string
	mu     sync.Mutex
	calls  int
}

// NewFuncMocker creates a GenericFuncMocker for the named method.
func NewFuncMocker(method string) *GenericFuncMocker {
	gm := &GenericFuncMocker{method: method}
	gm.m.On("Intercept", mock.Anything).Return(nil)
	return gm
}

func (gm *GenericFuncMocker) Intercept(rawBody []byte) error {
	gm.mu.Lock()
	gm.calls++
	gm.mu.Unlock()

	args := gm.m.Called(rawBody)
	if args.Get(0) == nil {
		return nil
	}
	return args.Error(0)
}

func (gm *GenericFuncMocker) Reset() {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	gm.calls = 0
	gm.m.ExpectedCalls = nil
	gm.m.Calls = nil
	gm.m.On("Intercept", mock.Anything).Return(nil)
}

func (gm *GenericFuncMocker) WasCalled() int {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return gm.calls
}

func (gm *GenericFuncMocker) Mock() *mock.Mock { return &gm.m }

// FailWith makes every following Intercept return err until Reset.
func (gm *GenericFuncMocker) FailWith(err error) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	gm.m.ExpectedCalls = nil
	gm.m.On("Intercept", mock.Anything).Return(err)
}

// ─── Mail ─────────────────────────────────────────────────────────────────────

// Delivery is one message handed to the mail transport.
type Delivery struct {
	From string
	To   []string
	Raw  []byte
}

// MailMock is a mail.Transport that records deliveries instead of sending
// them. It is the "sendmail" mocker.
type MailMock struct {
	*GenericFuncMocker

	mu   sync.Mutex
	sent []Delivery
}

func NewMailMock() *MailMock {
	return &MailMock{GenericFuncMocker: NewFuncMocker(MethodSendMail)}
}

// Deliver implements mail.Transport. A failed delivery is not recorded.
func (mm *MailMock) Deliver(_ context.Context, from string, to []string, raw []byte) error {
	if err := mm.Intercept(raw); err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.sent = append(mm.sent, Delivery{From: from, To: append([]string(nil), to...), Raw: raw})
	return nil
}

// Sent returns the deliveries since the last Reset.
func (mm *MailMock) Sent() []Delivery {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return append([]Delivery(nil), mm.sent...)
}

// Last returns the most recent delivery.
func (mm *MailMock) Last() (Delivery, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if len(mm.sent) == 0 {
		return Delivery{}, false
	}
	return mm.sent[len(mm.sent)-1], true
}

func (mm *MailMock) Reset() {
	mm.GenericFuncMocker.Reset()
	mm.mu.Lock()
	mm.sent = nil
	mm.mu.Unlock()
}

// ─── Scenario activation ──────────────────────────────────────────────────────

type failer interface{ FailWith(error) }

// activateFuncMocks resets every mocker, then applies the failures the
// step's non-HTTP mock steps ask for.
func activateFuncMocks(env *Env, s *Scenario, step *Step) error {
	for _, m := range env.mockers {
		m.Reset()
	}
	for _, ms := range step.NetUtilMockStep {
		if ms.Method == MethodHTTPRequest {
			continue
		}
		m := env.mockers[ms.Method]
		if m == nil {
			if s.IsMockRequired {
				return errors.New("testkit: no mocker registered for " + ms.Method)
			}
			continue
		}
		if ms.ReturnData.Error == "" {
			continue
		}
		f, ok := m.(failer)
		if !ok {
			return errors.New("testkit: mocker " + ms.Method + " cannot be made to fail")
		}
		f.FailWith(errors.New(ms.ReturnData.Error))
	}
	return nil
}

// funcMocksNotCalled lists the isMock=true non-HTTP steps that never fired.
func funcMocksNotCalled(env *Env, step *Step) []string {
	var missing []string
	seen := map[string]bool{}
	for _, ms := range step.NetUtilMockStep {
		if ms.Method == MethodHTTPRequest || !ms.IsMock || seen[ms.Method] {
			continue
		}
		seen[ms.Method] = true
		if m := env.mockers[ms.Method]; m != nil && m.WasCalled() == 0 {
			missing = append(missing, ms.Method)
		}
	}
	return missing
}
