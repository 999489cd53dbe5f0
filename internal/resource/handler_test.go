package resource

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zkapauthz/internal/store"
	"github.com/roach88/zkapauthz/internal/testutil"
	"github.com/roach88/zkapauthz/internal/voucher"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingController remembers every voucher it is asked to redeem.
type recordingController struct {
	mu       sync.Mutex
	redeemed []string
	err      error
}

func (c *recordingController) Redeem(number string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redeemed = append(c.redeemed, number)
	return c.err
}

func (c *recordingController) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.redeemed...)
}

type testServer struct {
	router     http.Handler
	store      *store.Store
	controller *recordingController
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.OpenAndInitialize(context.Background(), filepath.Join(t.TempDir(), "test.db"), store.SchemaVersion, store.MemoryConnector)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := &recordingController{}
	return &testServer{
		router:     NewRouter(New(s, c, quietLogger), quietLogger),
		store:      s,
		controller: c,
	}
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func submission(number string) string {
	body, _ := json.Marshal(map[string]string{"voucher": number})
	return string(body)
}

func goldenFixtures(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestSubmit_HappyPath(t *testing.T) {
	ts := newTestServer(t)
	number := testutil.VoucherNumber(1)

	rec := ts.do(http.MethodPut, "/voucher", submission(number))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	assert.Equal(t, []string{number}, ts.controller.calls())

	rec = ts.do(http.MethodGet, "/voucher", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Vouchers []voucher.Voucher `json:"vouchers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, []voucher.Voucher{voucher.New(number)}, listing.Vouchers)
}

func TestSubmit_Repeated(t *testing.T) {
	ts := newTestServer(t)
	number := testutil.VoucherNumber(1)

	for i := 0; i < 3; i++ {
		rec := ts.do(http.MethodPut, "/voucher", submission(number))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	vouchers, err := ts.store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, vouchers, 1)
	assert.Len(t, ts.controller.calls(), 3, "every accepted submission triggers redemption")
}

func TestSubmit_Rejected(t *testing.T) {
	valid := testutil.VoucherNumber(1)
	tests := []struct {
		name string
		body string
	}{
		{"short voucher", `{"voucher": "short"}`},
		{"not json", `voucher=` + valid},
		{"empty body", ``},
		{"json array", `["` + valid + `"]`},
		{"json null", `null`},
		{"wrong field", `{"coupon": "` + valid + `"}`},
		{"extra field", `{"voucher": "` + valid + `", "extra": 1}`},
		{"empty object", `{}`},
		{"numeric voucher", `{"voucher": 12345}`},
		{"invalid alphabet", `{"voucher": "` + strings.Repeat("+", 43) + `="}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(http.MethodPut, "/voucher", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "Bad Request")

			vouchers, err := ts.store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, vouchers, "rejected submissions must not reach the ledger")
			assert.Empty(t, ts.controller.calls())
		})
	}
}

func TestSubmit_ControllerFailureStillAccepted(t *testing.T) {
	ts := newTestServer(t)
	ts.controller.err = io.ErrClosedPipe
	number := testutil.VoucherNumber(1)

	rec := ts.do(http.MethodPut, "/voucher", submission(number))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := ts.store.Get(context.Background(), number)
	assert.NoError(t, err)
}

func TestList_Golden(t *testing.T) {
	ts := newTestServer(t)
	g := goldenFixtures(t)

	rec := ts.do(http.MethodGet, "/voucher", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	g.Assert(t, "collection_empty", rec.Body.Bytes())

	seq := testutil.NewVoucherSequence()
	first, second := seq.Next(), seq.Next()
	// Submission order does not affect the listing.
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/voucher", submission(second)).Code)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/voucher", submission(first)).Code)

	rec = ts.do(http.MethodGet, "/voucher", "")
	require.Equal(t, http.StatusOK, rec.Code)
	g.Assert(t, "collection_two", rec.Body.Bytes())
}

func TestGet_Known(t *testing.T) {
	ts := newTestServer(t)
	number := testutil.VoucherNumber(1)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/voucher", submission(number)).Code)

	rec := ts.do(http.MethodGet, "/voucher/"+number, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	goldenFixtures(t).Assert(t, "voucher_view", rec.Body.Bytes())

	v, err := voucher.Unmarshal(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, number, v.Number)
}

func TestGet_ShowsRedemptionState(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	number := testutil.VoucherNumber(1)
	require.NoError(t, ts.store.Add(ctx, number))
	require.NoError(t, ts.store.InsertPassesForVoucher(ctx, number, []voucher.Pass{{Text: "p"}}))

	rec := ts.do(http.MethodGet, "/voucher/"+number, "")
	require.Equal(t, http.StatusOK, rec.Code)

	v, err := voucher.Unmarshal(rec.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, v.Redeemed)
}

func TestGet_PercentEncoded(t *testing.T) {
	ts := newTestServer(t)
	number := testutil.VoucherNumber(1)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/voucher", submission(number)).Code)

	escaped := strings.ReplaceAll(number, "=", "%3D")
	rec := ts.do(http.MethodGet, "/voucher/"+escaped, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGet_Unknown(t *testing.T) {
	ts := newTestServer(t)
	seq := testutil.NewVoucherSequence()
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/voucher", submission(seq.Next())).Code)

	rec := ts.do(http.MethodGet, "/voucher/"+seq.Next(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGet_InvalidSyntax(t *testing.T) {
	ts := newTestServer(t)

	for _, segment := range []string{"short", strings.Repeat("A", 43), strings.Repeat("A", 45), strings.Repeat("%21", 44)} {
		rec := ts.do(http.MethodGet, "/voucher/"+segment, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "segment %q", segment)
	}
}

func TestGet_DecodesOnlyOnce(t *testing.T) {
	ts := newTestServer(t)
	number := testutil.VoucherNumber(1)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPut, "/voucher", submission(number)).Code)

	// "%253D" decodes to the literal text "%3D", leaving a 46-character
	// segment that is not a voucher.
	doubled := strings.TrimSuffix(number, "=") + "%253D"
	rec := ts.do(http.MethodGet, "/voucher/"+doubled, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/voucher/"+strings.TrimSuffix(number, "=")+"%2541", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The same text escaped once is the voucher itself.
	rec = ts.do(http.MethodGet, "/voucher/"+strings.TrimSuffix(number, "=")+"%3D", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodDelete, "/voucher", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/voucher", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/voucher", nil)
	req.Header.Set(RequestIDHeader, "client-chosen")
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, "client-chosen", rec.Header().Get(RequestIDHeader))
}

func TestMarshalCollection_Nil(t *testing.T) {
	body, err := MarshalCollection(nil)
	require.NoError(t, err)
	assert.Equal(t, `{"vouchers":[]}`, string(body))
}
