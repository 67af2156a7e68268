package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/canteen/internal/canteen/directory"
	"github.com/BrandonDHaskell/canteen/internal/canteen/service"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store/memory"
	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
	"github.com/BrandonDHaskell/canteen/internal/httpapi"
	"github.com/BrandonDHaskell/canteen/internal/metrics"
)

var wib = time.FixedZone("WIB", 7*60*60)

type testEnv struct {
	ts     *httptest.Server
	ledger *memory.Ledger
	dir    *memory.Directory
}

// newTestServer wires the full dependency graph over in-memory stores and
// returns an httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, opts ...memory.LedgerOption) *testEnv {
	t.Helper()

	dir := memory.NewDirectory()
	dir.PutEmployee(store.Employee{EmployeeID: "E1", CardNumber: "111", Name: "Andi"})
	dir.PutEmployee(store.Employee{EmployeeID: "E2", CardNumber: "222", Name: "Budi"})
	dir.PutEmployee(store.Employee{EmployeeID: "E3", CardNumber: "333", Name: "Citra"})
	dir.PutTenant(store.Tenant{TenantID: 1, Name: "Warung", DailyCapacity: 1, CapacityEnforced: true, TicketPrefix: "WR"})
	dir.PutTenant(store.Tenant{TenantID: 2, Name: "Dapur", DailyCapacity: 5, CapacityEnforced: true})

	ledger := memory.NewLedger(dir, opts...)
	norm := service.NewNormalizer(wib, func() time.Time {
		return time.Date(2026, 2, 15, 12, 0, 0, 0, wib)
	})
	cache := directory.New(dir, directory.Config{}, zap.NewNop())
	m := metrics.New()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     zap.NewNop(),
		Addr:       ":0",
		Admissions: service.NewAdmissionService(cache, ledger, norm, zap.NewNop(), service.WithObserver(m)),
		Queries:    service.NewQueryService(ledger, norm),
		Directory:  cache,
		Metrics:    m.Handler(),
		RetryAfter: 2 * time.Second,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, ledger: ledger, dir: dir}
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ── Admissions ───────────────────────────────────────────────────────────────

func TestAdmission_AcceptedIs201(t *testing.T) {
	env := newTestServer(t)

	resp := postJSON(t, env.ts.URL+"/v1/admissions", `{"card_number":"111","tenant_id":1,"client_request_id":"abc"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decode[types.AdmissionResponse](t, resp)
	assert.Equal(t, types.StatusAccepted, body.Status)
	assert.Equal(t, types.ReasonOK, body.Reason)
	assert.Equal(t, "abc", body.ClientRequestID)
	assert.Equal(t, "WR-260215-001", body.Ticket)
	require.NotNil(t, body.QueueNumber)
	assert.Equal(t, 1, *body.QueueNumber)
	require.NotNil(t, body.TransactionSummary)
	assert.Equal(t, "Andi", body.TransactionSummary.EmployeeName)
}

func TestAdmission_RejectedIs200(t *testing.T) {
	env := newTestServer(t)
	postJSON(t, env.ts.URL+"/v1/admissions", `{"card_number":"111","tenant_id":1}`)

	resp := postJSON(t, env.ts.URL+"/v1/admissions", `{"card_number":"222","tenant_id":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[types.AdmissionResponse](t, resp)
	assert.Equal(t, types.StatusRejected, body.Status)
	assert.Equal(t, types.ReasonQuotaExceeded, body.Reason)
	assert.Nil(t, body.QueueNumber)
	assert.Empty(t, body.CommitTimestamp)
}

func TestAdmission_InvalidInputIs400(t *testing.T) {
	env := newTestServer(t)

	cases := map[string]string{
		`{"card_number":"111","tenant_id":1,"event_timestamp":"not-a-date"}`: "invalid_timestamp",
		`{"tenant_id":1}`:                            "invalid_card_number",
		`{"card_number":"111"}`:                      "invalid_tenant",
		`{"card_number":"111","tenant_id":1,"x":1}`:  "bad_json",
		`{"card_number":`:                            "bad_json",
		`{"card_number":"111","tenant_id":1,"source":"fax"}`: "invalid_request",
	}
	for in, code := range cases {
		resp := postJSON(t, env.ts.URL+"/v1/admissions", in)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, in)
		assert.Equal(t, code, decode[errorBody](t, resp).Error, in)
	}
	assert.Empty(t, env.ledger.Events())
}

func TestAdmission_BusyIs409WithRetryAfter(t *testing.T) {
	env := newTestServer(t, memory.WithAcquireTimeout(20*time.Millisecond))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- env.ledger.WithWriteLock(context.Background(), func(context.Context, store.LedgerTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer func() {
		close(release)
		require.NoError(t, <-done)
	}()

	resp := postJSON(t, env.ts.URL+"/v1/admissions", `{"card_number":"111","tenant_id":1}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
	body := decode[types.AdmissionResponse](t, resp)
	assert.Equal(t, types.ReasonDBBusy, body.Reason)
	assert.Equal(t, types.StatusRejected, body.Status)
}

func TestAdmission_Protobuf(t *testing.T) {
	env := newTestServer(t)

	in, err := structpb.NewStruct(map[string]any{
		"card_number": "111",
		"tenant_id":   2,
		"source":      "tap",
	})
	require.NoError(t, err)
	data, err := proto.Marshal(in)
	require.NoError(t, err)

	resp, err := http.Post(env.ts.URL+"/v1/admissions", "application/x-protobuf", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := &structpb.Struct{}
	require.NoError(t, proto.Unmarshal(raw, out))

	f := out.GetFields()
	assert.Equal(t, "accepted", f["status"].GetStringValue())
	assert.Equal(t, "ok", f["reason"].GetStringValue())
	assert.Equal(t, 5.0, f["queue_number"].GetNumberValue())
	assert.Equal(t, "260215-001", f["ticket"].GetStringValue())
	assert.Equal(t, "Andi", f["transaction_summary"].GetStructValue().GetFields()["employee_name"].GetStringValue())
}

func TestAdmission_ProtobufUnknownFieldIs400(t *testing.T) {
	env := newTestServer(t)

	in, _ := structpb.NewStruct(map[string]any{"card_number": "111", "tenant_id": 1, "pin": "1234"})
	data, _ := proto.Marshal(in)

	resp, err := http.Post(env.ts.URL+"/v1/admissions", "application/x-protobuf", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ── Queries ──────────────────────────────────────────────────────────────────

func TestQuotaState(t *testing.T) {
	env := newTestServer(t)
	postJSON(t, env.ts.URL+"/v1/admissions", `{"card_number":"111","tenant_id":1}`)

	resp := get(t, env.ts.URL+"/v1/tenants/1/quota-state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decode[types.QuotaState](t, resp)
	assert.Equal(t, int64(1), st.TenantID)
	assert.Equal(t, 1, st.Capacity)
	assert.False(t, st.CanOrderForTarget)
	assert.Equal(t, 5, st.MaxRemainingAny)
	assert.False(t, st.IsFreeMode)

	assert.Equal(t, http.StatusNotFound, get(t, env.ts.URL+"/v1/tenants/9/quota-state").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, env.ts.URL+"/v1/tenants/abc/quota-state").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, env.ts.URL+"/v1/tenants/1/quota-state?day=yesterday").StatusCode)
}

func TestLedgerQueries(t *testing.T) {
	env := newTestServer(t)
	postJSON(t, env.ts.URL+"/v1/admissions", `{"card_number":"111","tenant_id":2}`)
	postJSON(t, env.ts.URL+"/v1/admissions", `{"card_number":"222","tenant_id":2}`)

	dc := decode[types.DuplicateCheck](t, get(t, env.ts.URL+"/v1/cards/111/events/2026-02-15"))
	assert.True(t, dc.Exists)
	dc = decode[types.DuplicateCheck](t, get(t, env.ts.URL+"/v1/cards/333/events/2026-02-15"))
	assert.False(t, dc.Exists)

	n := decode[types.DailyCount](t, get(t, env.ts.URL+"/v1/tenants/2/occupancy/2026-02-15"))
	assert.Equal(t, 2, n.Count)

	ov := decode[types.OccupancyOverview](t, get(t, env.ts.URL+"/v1/occupancy?day=2026-02-15"))
	require.Len(t, ov.Tenants, 2)
	assert.Equal(t, 2, ov.Tenants[1].Ordered)
	assert.False(t, ov.IsFreeMode)

	assert.Equal(t, http.StatusBadRequest, get(t, env.ts.URL+"/v1/cards/111/events/15-02-2026").StatusCode)
}

// ── Operational ──────────────────────────────────────────────────────────────

func TestDirectoryRefresh(t *testing.T) {
	env := newTestServer(t)

	resp := postJSON(t, env.ts.URL+"/v1/directory/refresh", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.NotEmpty(t, body["loaded_at"])
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestServer(t)
	postJSON(t, env.ts.URL+"/v1/admissions", `{"card_number":"111","tenant_id":2}`)

	assert.Equal(t, http.StatusOK, get(t, env.ts.URL+"/healthz").StatusCode)

	resp := get(t, env.ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `canteen_admissions_total{reason="ok",status="accepted"} 1`)
}
