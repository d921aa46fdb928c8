package handler

import (
	"context"
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

	"paylink/internal/dispute/service"
	disputestore "paylink/internal/dispute/store"
	emodels "paylink/internal/escrow/models"
	escrowservice "paylink/internal/escrow/service"
	contractstore "paylink/internal/escrow/store/contract"
	milestonestore "paylink/internal/escrow/store/milestone"
	observationstore "paylink/internal/escrow/store/observation"
	"paylink/internal/settlement"
	"paylink/internal/settlement/claims"
	"paylink/internal/settlement/ledger"
	id "paylink/pkg/domain"
	dErrors "paylink/pkg/domain-errors"
	"paylink/pkg/testutil"
)

const longDescription = "the delivered goods do not match the listing at all"

type testEnv struct {
	router chi.Router
	jwt    *jwttoken.JWTService
	escrow *escrowservice.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	contracts := contractstore.NewInMemory()
	milestones := milestonestore.NewInMemory()
	exec := settlement.NewExecutor(ledger.NewMemory(), claims.NewInMemory())

	escrowSvc := escrowservice.New(contracts, milestones, observationstore.NewInMemory(), exec, "vault",
		escrowservice.WithLogger(logger))
	disputeSvc := service.New(disputestore.NewInMemory(), contracts, milestones, exec, "vault",
		service.WithLogger(logger))
	jwtService := jwttoken.NewJWTService("test-signing-key", "paylink", "paylink")

	r := chi.NewRouter()
	New(disputeSvc, logger, nil, jwtService).Register(r)
	return &testEnv{router: r, jwt: jwtService, escrow: escrowSvc}
}

func (e *testEnv) authorize(t *testing.T, req *http.Request, wallet string) *http.Request {
	t.Helper()
	token, err := e.jwt.GenerateAccessToken(wallet, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// newEscrow opens and fully funds a mutual escrow directly through the
// service; the handler under test only covers the dispute surface.
func (e *testEnv) newEscrow(t *testing.T) id.EscrowID {
	t.Helper()
	ctx := context.Background()
	contract, _, err := e.escrow.CreateEscrow(ctx, escrowservice.CreateInput{
		Kind:         emodels.KindMutual,
		BuyerWallet:  "0xbuyer",
		SellerWallet: "0xseller",
		Token:        "USDC",
		BuyerAmount:  decimal.NewFromInt(100),
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = e.escrow.RecordDeposit(ctx, contract.ID, "0xbuyer", decimal.NewFromInt(100), "USDC", "tx-b")
	require.NoError(t, err)
	return contract.ID
}

func (e *testEnv) raise(t *testing.T, escrowID id.EscrowID, wallet string) disputeResponse {
	t.Helper()
	req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
		"/escrows/"+escrowID.String()+"/disputes",
		raiseDisputeRequest{Reason: "non_delivery", Description: longDescription}), wallet)
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[disputeResponse](t, rr)
}

func TestRaiseDispute(t *testing.T) {
	e := newTestEnv(t)
	escrowID := e.newEscrow(t)

	dispute := e.raise(t, escrowID, "0xbuyer")
	assert.Equal(t, "open", dispute.Status)
	assert.Equal(t, "buyer", dispute.PartyRole)
	assert.Equal(t, escrowID.String(), dispute.EscrowID)

	t.Run("second open dispute conflicts", func(t *testing.T) {
		req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
			"/escrows/"+escrowID.String()+"/disputes",
			raiseDisputeRequest{Reason: "quality", Description: longDescription}), "0xseller")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(dErrors.CodeConflict))
	})
}

func TestRaiseDispute_Rejections(t *testing.T) {
	e := newTestEnv(t)
	escrowID := e.newEscrow(t)

	t.Run("no token", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost,
			"/escrows/"+escrowID.String()+"/disputes",
			raiseDisputeRequest{Reason: "non_delivery", Description: longDescription})
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("outsider", func(t *testing.T) {
		req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
			"/escrows/"+escrowID.String()+"/disputes",
			raiseDisputeRequest{Reason: "non_delivery", Description: longDescription}), "0xstranger")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})

	t.Run("short description", func(t *testing.T) {
		req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
			"/escrows/"+escrowID.String()+"/disputes",
			raiseDisputeRequest{Reason: "non_delivery", Description: "too short"}), "0xbuyer")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	t.Run("malformed milestone id", func(t *testing.T) {
		req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
			"/escrows/"+escrowID.String()+"/disputes",
			raiseDisputeRequest{MilestoneID: "nope", Reason: "quality", Description: longDescription}), "0xbuyer")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestGetDispute(t *testing.T) {
	e := newTestEnv(t)
	escrowID := e.newEscrow(t)
	dispute := e.raise(t, escrowID, "0xbuyer")

	t.Run("party reads", func(t *testing.T) {
		req := e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/disputes/"+dispute.ID), "0xseller")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusOK(t, rr)
		got := testutil.UnmarshalResponse[disputeDetailResponse](t, rr)
		assert.Equal(t, dispute.ID, got.Dispute.ID)
	})

	t.Run("outsider is rejected", func(t *testing.T) {
		req := e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/disputes/"+dispute.ID), "0xstranger")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("unknown dispute", func(t *testing.T) {
		req := e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/disputes/"+id.NewDisputeID().String()), "0xbuyer")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}

func TestSubmitEvidence(t *testing.T) {
	e := newTestEnv(t)
	escrowID := e.newEscrow(t)
	dispute := e.raise(t, escrowID, "0xbuyer")

	req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
		"/disputes/"+dispute.ID+"/evidence",
		submitEvidenceRequest{Type: "text", Content: "tracking number never activated"}), "0xbuyer")
	rr := testutil.DoRequest(e.router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	got := testutil.UnmarshalResponse[evidenceResponse](t, rr)
	assert.Equal(t, "buyer", got.PartyRole)
	assert.Equal(t, "text", got.Type)

	// Evidence shows up on the dispute detail.
	req = e.authorize(t, testutil.NewRequest(t, http.MethodGet, "/disputes/"+dispute.ID), "0xbuyer")
	rr = testutil.DoRequest(e.router, req)
	testutil.AssertStatusOK(t, rr)
	detail := testutil.UnmarshalResponse[disputeDetailResponse](t, rr)
	require.Len(t, detail.Evidence, 1)
	assert.Equal(t, got.ID, detail.Evidence[0].ID)

	t.Run("unknown evidence type", func(t *testing.T) {
		req := e.authorize(t, testutil.NewJSONRequest(t, http.MethodPost,
			"/disputes/"+dispute.ID+"/evidence",
			submitEvidenceRequest{Type: "hearsay", Content: "someone told me"}), "0xbuyer")
		rr := testutil.DoRequest(e.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}
