package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/dispute/models"
)

type DisputeStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func (s *DisputeStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Now()
}

func TestDisputeStoreSuite(t *testing.T) {
	suite.Run(t, new(DisputeStoreSuite))
}

func (s *DisputeStoreSuite) newDispute(escrowID id.EscrowID, milestoneID *id.MilestoneID) *models.Dispute {
	d, err := models.NewDispute(escrowID, milestoneID, "0xbuyer", "buyer",
		"not_delivered", "the package never arrived at my address",
		decimal.NewFromInt(50), s.now)
	s.Require().NoError(err)
	return d
}

func (s *DisputeStoreSuite) TestCreateIfNoneOpen_ScopeGate() {
	escrowID := id.NewEscrowID()

	first := s.newDispute(escrowID, nil)
	s.Require().NoError(s.store.CreateIfNoneOpen(s.ctx, first))

	s.Run("second open dispute on same escrow is rejected", func() {
		s.ErrorIs(s.store.CreateIfNoneOpen(s.ctx, s.newDispute(escrowID, nil)), sentinel.ErrConflict)
	})

	s.Run("different escrow is unaffected", func() {
		s.NoError(s.store.CreateIfNoneOpen(s.ctx, s.newDispute(id.NewEscrowID(), nil)))
	})

	s.Run("resolved dispute releases the scope", func() {
		resolved := first.Clone()
		s.Require().NoError(resolved.Resolve(models.ResolutionRefundToBuyer,
			"buyer provided carrier confirmation of loss", "0xadmin", s.now))
		s.Require().NoError(s.store.UpdateIf(s.ctx, resolved, models.DisputeOpen))

		s.NoError(s.store.CreateIfNoneOpen(s.ctx, s.newDispute(escrowID, nil)))
	})
}

func (s *DisputeStoreSuite) TestCreateIfNoneOpen_MilestoneScopes() {
	escrowID := id.NewEscrowID()
	m1 := id.NewMilestoneID()
	m2 := id.NewMilestoneID()

	s.Require().NoError(s.store.CreateIfNoneOpen(s.ctx, s.newDispute(escrowID, &m1)))

	s.ErrorIs(s.store.CreateIfNoneOpen(s.ctx, s.newDispute(escrowID, &m1)), sentinel.ErrConflict)
	s.NoError(s.store.CreateIfNoneOpen(s.ctx, s.newDispute(escrowID, &m2)),
		"sibling milestone scopes are independent")
}

func (s *DisputeStoreSuite) TestUpdateIf_StatusGate() {
	d := s.newDispute(id.NewEscrowID(), nil)
	s.Require().NoError(s.store.CreateIfNoneOpen(s.ctx, d))

	stale := d.Clone()

	s.Require().NoError(d.Resolve(models.ResolutionReleaseToSeller,
		"seller provided signed delivery receipt", "0xadmin", s.now))
	s.Require().NoError(s.store.UpdateIf(s.ctx, d, models.DisputeOpen))

	s.Require().NoError(stale.Resolve(models.ResolutionRefundToBuyer,
		"conflicting decision from a slower admin", "0xadmin2", s.now))
	s.ErrorIs(s.store.UpdateIf(s.ctx, stale, models.DisputeOpen), sentinel.ErrConflict)

	stored, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(string(models.ResolutionReleaseToSeller), stored.ResolutionAction)
}

func (s *DisputeStoreSuite) TestListOpen_PriorityOrder() {
	low := s.newDispute(id.NewEscrowID(), nil)
	s.Require().NoError(s.store.CreateIfNoneOpen(s.ctx, low))

	high, err := models.NewDispute(id.NewEscrowID(), nil, "0xbuyer", "buyer",
		"not_delivered", "a very large order that never showed up",
		decimal.NewFromInt(5000), s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateIfNoneOpen(s.ctx, high))

	open, err := s.store.ListOpen(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(open, 2)
	s.Equal(models.PriorityHigh, open[0].Priority, "high priority surfaces first despite being newer")
}

func (s *DisputeStoreSuite) TestEvidenceAppendOnly() {
	d := s.newDispute(id.NewEscrowID(), nil)
	s.Require().NoError(s.store.CreateIfNoneOpen(s.ctx, d))

	e, err := models.NewEvidence(d.ID, d.EscrowID, "0xseller", "seller",
		models.EvidenceLink, "", "https://tracker.example/pkg/123", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AppendEvidence(s.ctx, e))

	listed, err := s.store.ListEvidence(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(e.FileRef, listed[0].FileRef)

	s.Run("unknown dispute", func() {
		orphan, err := models.NewEvidence(id.NewDisputeID(), d.EscrowID, "0xseller",
			"seller", models.EvidenceText, "note", "", s.now)
		s.Require().NoError(err)
		s.ErrorIs(s.store.AppendEvidence(s.ctx, orphan), sentinel.ErrNotFound)
	})
}
