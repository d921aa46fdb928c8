package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "paylink/internal/jwt_token"

	"paylink/internal/escrow/service"
	contractstore "paylink/internal/escrow/store/contract"
	milestonestore "paylink/internal/escrow/store/milestone"
	observationstore "paylink/internal/escrow/store/observation"
	"paylink/internal/settlement"
	"paylink/internal/settlement/claims"
	"paylink/internal/settlement/ledger"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/platform/audit/publisher"
	auditmemory "paylink/pkg/platform/audit/store/memory"
	"paylink/pkg/testutil"
)

type testEnv struct {
	router chi.Router
	jwt    *jwttoken.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditPub := publisher.NewPublisher(auditmemory.NewInMemoryStore())
	exec := settlement.NewExecutor(ledger.NewMemory(), claims.NewInMemory())
	svc := service.New(
		contractstore.NewInMemory(),
		milestonestore.NewInMemory(),
		observationstore.NewInMemory(),
		exec,
		"vault",
		service.WithLogger(logger),
		service.WithAuditPublisher(auditPub),
	)
	jwtService := jwttoken.NewJWTService("test-signing-key", "paylink", "paylink")

	r := chi.NewRouter()
	New(svc, auditPub, logger, nil, jwtService).Register(r)
	return &testEnv{router: r, jwt: jwtService}
}

func (e *testEnv) authorize(t *testing.T, req *http.Request, wallet string) *http.Request {
	t.Helper()
	token, err := e.jwt.GenerateAccessToken(wallet, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func createBody(kind string) createEscrowRequest {
	return createEscrowRequest{
		Kind:         kind,
		SellerWallet: "0xseller",
		Token:        "USDC",
		BuyerAmount:  "100",
		SellerAmount: "20",
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
}

func (e *testEnv) createEscrow(t *testing.T, body createEscrowRequest) escrowResponse {
	t.Helper()
	req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost, "/escrows", body), "0xbuyer")
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[escrowResponse](t, rr)
}

func TestCreateEscrow(t *testing.T) {
	e := newTestEnv(t)

	created := e.createEscrow(t, createBody("mutual_confirmation"))
	assert.NotEmpty(t, created.Contract.ID)
	assert.Equal(t, "created", created.Contract.Status)
	assert.Equal(t, "0xbuyer", created.Contract.BuyerWallet, "buyer comes from the token, not the body")
	assert.True(t, created.Contract.BuyerAmount.Equal(decimal.NewFromInt(100)))
}

func TestCreateEscrow_Milestones(t *testing.T) {
	e := newTestEnv(t)

	body := createBody("milestone")
	body.SellerAmount = ""
	body.Milestones = []milestonePlan{
		{Order: 1, Percentage: "60"},
		{Order: 2, Percentage: "40"},
	}
	created := e.createEscrow(t, body)
	require.Len(t, created.Milestones, 2)
	assert.Equal(t, "pending", created.Milestones[0].Status)
}

func TestCreateEscrow_Rejections(t *testing.T) {
	e := newTestEnv(t)

	t.Run("no token", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/escrows", createBody("mutual_confirmation"))
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/escrows", createBody("mutual_confirmation"))
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := e.authorize(t, testutil.NewRequestWithBody(t, http.MethodPost, "/escrows", "{not json"), "0xbuyer")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	t.Run("non-decimal amount", func(t *testing.T) {
		body := createBody("mutual_confirmation")
		body.BuyerAmount = "a lot"
		req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost, "/escrows", body), "0xbuyer")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("non-json content type", func(t *testing.T) {
		req := e.authorize(t, testutil.NewRequestWithBody(t, http.MethodPost, "/escrows", "{}"), "0xbuyer")
		req.Header.Set("Content-Type", "text/plain")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatus(t, rr, http.StatusUnsupportedMediaType)
	})
}

func TestMutualFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	created := e.createEscrow(t, createBody("mutual_confirmation"))
	base := "/escrows/" + created.Contract.ID

	deposit := func(wallet, amount, txRef string) *contractResponse {
		req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost, base+"/deposits",
			depositRequest{Amount: amount, Token: "USDC", TxRef: txRef}), wallet)
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusOK(t, rr)
		return testutil.UnmarshalResponse[contractResponse](t, rr)
	}

	assert.Equal(t, "buyer_deposited", deposit("0xbuyer", "100", "tx-b").Status)
	assert.Equal(t, "active", deposit("0xseller", "20", "tx-s").Status)

	confirm := func(wallet string) *contractResponse {
		req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost, base+"/confirm", nil), wallet)
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusOK(t, rr)
		return testutil.UnmarshalResponse[contractResponse](t, rr)
	}

	first := confirm("0xbuyer")
	require.NotNil(t, first.Confirmations)
	assert.True(t, first.Confirmations.Buyer)
	assert.Equal(t, "active", first.Status)

	assert.Equal(t, "completed", confirm("0xseller").Status)
}

func TestGetEscrow(t *testing.T) {
	e := newTestEnv(t)
	created := e.createEscrow(t, createBody("mutual_confirmation"))

	t.Run("party reads", func(t *testing.T) {
		req := e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/escrows/"+created.Contract.ID), "0xseller")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusOK(t, rr)
		got := testutil.UnmarshalResponse[escrowResponse](t, rr)
		assert.Equal(t, created.Contract.ID, got.Contract.ID)
	})

	t.Run("outsider is rejected", func(t *testing.T) {
		req := e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/escrows/"+created.Contract.ID), "0xstranger")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})

	t.Run("malformed id", func(t *testing.T) {
		req := e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/escrows/not-a-uuid"), "0xbuyer")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}

func TestListEscrows(t *testing.T) {
	e := newTestEnv(t)
	e.createEscrow(t, createBody("mutual_confirmation"))
	e.createEscrow(t, createBody("mutual_confirmation"))

	req := e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/escrows"), "0xbuyer")
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatusOK(t, rr)

	type listResponse struct {
		Escrows []contractResponse `json:"escrows"`
	}
	assert.Len(t, testutil.UnmarshalResponse[listResponse](t, rr).Escrows, 2)
}

func TestListActions(t *testing.T) {
	e := newTestEnv(t)
	created := e.createEscrow(t, createBody("mutual_confirmation"))

	req := e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/escrows/"+created.Contract.ID+"/actions"), "0xbuyer")
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatusOK(t, rr)

	type actionsList struct {
		Actions []actionResponse `json:"actions"`
	}
	actions := testutil.UnmarshalResponse[actionsList](t, rr).Actions
	require.NotEmpty(t, actions)
	assert.Equal(t, "escrow_created", actions[0].Action)

	// The trail is party-gated like the escrow itself.
	req = e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/escrows/"+created.Contract.ID+"/actions"), "0xstranger")
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusForbidden)
}

func TestMilestoneFlowOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	body := createBody("milestone")
	body.SellerAmount = ""
	body.Milestones = []milestonePlan{{Order: 1, Percentage: "100"}}
	created := e.createEscrow(t, body)
	base := "/escrows/" + created.Contract.ID
	milestoneID := created.Milestones[0].ID

	req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost, base+"/deposits",
		depositRequest{Amount: "100", Token: "USDC", TxRef: "tx-b"}), "0xbuyer")
	testutil.AssertStatusOK(t, testutil.DoRequest(e.router, req))

	req = e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
		base+"/milestones/"+milestoneID+"/submit",
		submitWorkRequest{Notes: "done", EvidenceRefs: []string{"https://files.example/proof"}}), "0xseller")
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatusOK(t, rr)
	assert.Equal(t, "work_submitted", testutil.UnmarshalResponse[milestoneResponse](t, rr).Status)

	req = e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
		base+"/milestones/"+milestoneID+"/approve", nil), "0xbuyer")
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatusOK(t, rr)
	assert.Equal(t, "approved", testutil.UnmarshalResponse[milestoneResponse](t, rr).Status)

	// The single installment settles the whole escrow.
	req = e.authorize(t, testutil.NewRequest(t, http.MethodGet, base), "0xbuyer")
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatusOK(t, rr)
	assert.Equal(t, "completed", testutil.UnmarshalResponse[escrowResponse](t, rr).Contract.Status)
}

func TestRetrySwapOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	created := e.createEscrow(t, createBody("mutual_confirmation"))

	req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
		"/escrows/"+created.Contract.ID+"/swap/retry", nil), "0xbuyer")
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(dErrors.CodeInvalidTransition))
}
