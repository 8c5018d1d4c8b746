package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/internal/handler"
	"github.com/JoelVR17/Trustless-Work-Test/internal/httpserver"
	"github.com/JoelVR17/Trustless-Work-Test/internal/repository"
	"github.com/JoelVR17/Trustless-Work-Test/internal/token"
	"github.com/JoelVR17/Trustless-Work-Test/internal/util"
	"github.com/JoelVR17/Trustless-Work-Test/pkg/trace"
)

const secret = "test-secret"

type testServer struct {
	t      *testing.T
	router *httpserver.Router
	ledger *token.MemoryLedger
}

type fakeReplayer struct {
	replayed []int64
}

func (f *fakeReplayer) ReplayEvent(_ context.Context, id int64) error {
	f.replayed = append(f.replayed, id)
	return nil
}

func (f *fakeReplayer) ReplayFailedEvents(context.Context, int) (int, error) {
	return 0, nil
}

func newTestServer(t *testing.T, ready error) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := token.NewMemoryLedger()
	engine := escrow.NewEngine(repository.NewMemoryProjectStore(), token.NewEscrow(ledger, "escrow"), zap.NewNop())
	log := zap.NewNop()

	router := httpserver.NewRouter(httpserver.Deps{
		Projects:  handler.NewProjectHandler(engine, log),
		Ledger:    handler.NewLedgerHandler(ledger, log),
		Admin:     handler.NewAdminHandler(&fakeReplayer{}, log),
		JWTSecret: secret,
		Logger:    log,
		Readiness: map[string]httpserver.ReadinessCheck{
			"store": func(context.Context) error { return ready },
		},
	})
	return &testServer{t: t, router: router, ledger: ledger}
}

func (s *testServer) token(address, role string) string {
	s.t.Helper()
	tok, err := util.GenerateJWT(address, role, secret, time.Hour)
	if err != nil {
		s.t.Fatalf("jwt: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, tok string, body any) (int, map[string]any, http.Header) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out, w.Header()
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	if code, _, hdr := s.do("GET", "/healthz", "", nil); code != http.StatusOK || hdr.Get(trace.HeaderName) == "" {
		t.Fatalf("healthz = %d, trace header %q", code, hdr.Get(trace.HeaderName))
	}
	if code, _, _ := s.do("GET", "/readyz", "", nil); code != http.StatusOK {
		t.Fatalf("readyz = %d", code)
	}
	if code, _, _ := s.do("GET", "/metrics", "", nil); code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}

	notReady := newTestServer(t, errors.New("down"))
	if code, body, _ := notReady.do("GET", "/readyz", "", nil); code != http.StatusServiceUnavailable || body["status"] != "store_not_ready" {
		t.Fatalf("readyz when down = %d %v", code, body)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil)

	if code, _, _ := s.do("GET", "/projects/1", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
	if code, _, _ := s.do("GET", "/projects/1", "garbage", nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", code)
	}
}

func TestPermissions(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.token("client", "")
	admin := s.token("ops", "admin")

	mint := map[string]any{"to": "client", "amount": 10}
	if code, body, _ := s.do("POST", "/ledger/mint", user, mint); code != http.StatusForbidden || body["code"] != "unauthorized" {
		t.Fatalf("user mint = %d %v", code, body)
	}
	if code, _, _ := s.do("POST", "/ledger/mint", admin, mint); code != http.StatusOK {
		t.Fatalf("admin mint = %d", code)
	}
	if code, _, _ := s.do("POST", "/admin/outbox/replay?id=3", user, nil); code != http.StatusForbidden {
		t.Fatalf("user replay = %d", code)
	}
	if code, _, _ := s.do("POST", "/admin/outbox/replay?id=3", admin, nil); code != http.StatusOK {
		t.Fatalf("admin replay = %d", code)
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.token("ops", "admin")
	client := s.token("client", "")
	freelancer := s.token("freelancer", "")

	if code, _, _ := s.do("POST", "/ledger/mint", admin, map[string]any{"to": "client", "amount": 1000}); code != http.StatusOK {
		t.Fatalf("mint = %d", code)
	}

	// funding without an allowance fails with 402
	code, body, _ := s.do("POST", "/projects", client, map[string]any{"freelancer": "freelancer", "prices": []uint64{100, 100}})
	if code != http.StatusCreated || body["project_id"].(float64) != 1 {
		t.Fatalf("create = %d %v", code, body)
	}
	if code, body, _ := s.do("POST", "/projects/1/objectives/0/fund", client, nil); code != http.StatusPaymentRequired || body["code"] != "insufficient_allowance" {
		t.Fatalf("fund without allowance = %d %v", code, body)
	}

	approve := map[string]any{"spender": "escrow", "amount": 1000, "expires_in_seconds": 3600}
	if code, _, _ := s.do("POST", "/ledger/approve", client, approve); code != http.StatusOK {
		t.Fatalf("approve = %d", code)
	}

	steps := []struct {
		name   string
		method string
		path   string
		tok    string
		status int
		code   string
	}{
		{"fund 0", "POST", "/projects/1/objectives/0/fund", client, http.StatusOK, ""},
		{"fund 0 again", "POST", "/projects/1/objectives/0/fund", client, http.StatusConflict, "already_funded"},
		{"freelancer funds", "POST", "/projects/1/objectives/1/fund", freelancer, http.StatusForbidden, "unauthorized"},
		{"complete unfunded", "POST", "/projects/1/objectives/1/complete", freelancer, http.StatusConflict, "objective_not_funded"},
		{"client completes", "POST", "/projects/1/objectives/0/complete", client, http.StatusForbidden, "unauthorized"},
		{"complete 0", "POST", "/projects/1/objectives/0/complete", freelancer, http.StatusOK, ""},
		{"project incomplete", "POST", "/projects/1/complete", client, http.StatusConflict, "incomplete_objectives"},
		{"fund 1", "POST", "/projects/1/objectives/1/fund", client, http.StatusOK, ""},
		{"complete 1", "POST", "/projects/1/objectives/1/complete", freelancer, http.StatusOK, ""},
		{"complete project", "POST", "/projects/1/complete", client, http.StatusOK, ""},
		{"cancel completed", "POST", "/projects/1/cancel", client, http.StatusConflict, "invalid_state"},
		{"bad id", "POST", "/projects/abc/cancel", client, http.StatusBadRequest, "invalid_input"},
		{"missing project", "GET", "/projects/99", client, http.StatusNotFound, "not_found"},
	}
	for _, st := range steps {
		code, body, _ := s.do(st.method, st.path, st.tok, nil)
		if code != st.status {
			t.Fatalf("%s: status = %d, want %d (%v)", st.name, code, st.status, body)
		}
		if st.code != "" && body["code"] != st.code {
			t.Fatalf("%s: code = %v, want %s", st.name, body["code"], st.code)
		}
	}

	code, body, _ = s.do("GET", "/projects/1", client, nil)
	if code != http.StatusOK || body["completed"] != true || body["earned_amount"].(float64) != 200 {
		t.Fatalf("project = %d %v", code, body)
	}

	code, body, _ = s.do("GET", "/ledger/balances/freelancer", client, nil)
	if code != http.StatusOK || body["balance"].(float64) != 200 {
		t.Fatalf("freelancer balance = %d %v", code, body)
	}

	code, body, _ = s.do("GET", "/projects?freelancer=freelancer", client, nil)
	if code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("list = %d %v", code, body)
	}
	if code, _, _ := s.do("GET", "/projects", client, nil); code != http.StatusBadRequest {
		t.Fatalf("list without filter = %d", code)
	}
}

func TestCancelAndRefundOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	client := s.token("client", "")
	ctx := context.Background()
	if err := s.ledger.Mint(ctx, "client", 1000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := s.ledger.Approve(ctx, "client", "escrow", 1000, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if code, _, _ := s.do("POST", "/projects", client, map[string]any{"freelancer": "freelancer", "prices": []uint64{100, 100}}); code != http.StatusCreated {
		t.Fatalf("create = %d", code)
	}
	if code, _, _ := s.do("POST", "/projects/1/objectives", client, map[string]any{"prices": []uint64{100}}); code != http.StatusOK {
		t.Fatalf("add objectives = %d", code)
	}
	for _, path := range []string{"/projects/1/objectives/0/fund", "/projects/1/objectives/2/fund", "/projects/1/cancel"} {
		if code, body, _ := s.do("POST", path, client, nil); code != http.StatusOK {
			t.Fatalf("%s = %d %v", path, code, body)
		}
	}

	code, body, _ := s.do("POST", "/projects/1/refund", client, nil)
	if code != http.StatusOK || body["refunded"].(float64) != 100 {
		t.Fatalf("refund = %d %v", code, body)
	}
	code, body, _ = s.do("POST", "/projects/1/refund", client, nil)
	if code != http.StatusOK || body["refunded"].(float64) != 0 {
		t.Fatalf("second refund = %d %v", code, body)
	}
	if bal, _ := s.ledger.Balance(ctx, "client"); bal != 1000 {
		t.Fatalf("client balance = %d, want 1000", bal)
	}
}
