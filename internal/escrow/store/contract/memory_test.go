package contract

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"

	"paylink/internal/escrow/models"
)

type ContractStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func (s *ContractStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Now()
}

func TestContractStoreSuite(t *testing.T) {
	suite.Run(t, new(ContractStoreSuite))
}

func (s *ContractStoreSuite) newMutual() *models.Contract {
	c, err := models.NewMutualContract(
		id.NewEscrowID(), "0xbuyer", "0xseller", "USDC",
		decimal.NewFromInt(10), decimal.NewFromInt(2),
		s.now.Add(24*time.Hour), s.now,
	)
	s.Require().NoError(err)
	return c
}

func (s *ContractStoreSuite) TestCreateAndFind() {
	c := s.newMutual()
	s.Require().NoError(s.store.Create(s.ctx, c))

	found, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(c.BuyerWallet, found.BuyerWallet)
	s.Equal(int64(1), found.Version)

	s.Run("duplicate create is rejected", func() {
		s.ErrorIs(s.store.Create(s.ctx, c), sentinel.ErrAlreadyUsed)
	})

	s.Run("unknown id returns ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, id.NewEscrowID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ContractStoreSuite) TestUpdateIf_VersionGate() {
	c := s.newMutual()
	s.Require().NoError(s.store.Create(s.ctx, c))

	first, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	second, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)

	first.ApplyDeposit(models.RoleBuyer, s.now)
	s.Require().NoError(s.store.UpdateIf(s.ctx, first, first.Version))
	s.Equal(int64(2), first.Version)

	// The second reader still holds version 1 and must lose.
	second.ApplyDeposit(models.RoleSeller, s.now)
	s.ErrorIs(s.store.UpdateIf(s.ctx, second, second.Version), sentinel.ErrConflict)

	stored, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.True(stored.BuyerDeposited)
	s.False(stored.SellerDeposited, "losing write must not land")
}

func (s *ContractStoreSuite) TestReadersDoNotShareState() {
	c := s.newMutual()
	s.Require().NoError(s.store.Create(s.ctx, c))

	read, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	read.Confirmations.Buyer = true

	again, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.False(again.Confirmations.Buyer, "mutating a read copy must not leak into the store")
}

func (s *ContractStoreSuite) TestListSweepable() {
	expired := s.newMutual()
	expired.ExpiresAt = s.now.Add(-time.Hour)
	s.Require().NoError(s.store.Create(s.ctx, expired))

	live := s.newMutual()
	s.Require().NoError(s.store.Create(s.ctx, live))

	disputed := s.newMutual()
	disputed.ExpiresAt = s.now.Add(-time.Hour)
	disputed.Status = models.StatusDisputed
	s.Require().NoError(s.store.Create(s.ctx, disputed))

	sweepable, err := s.store.ListSweepable(s.ctx, s.now, 10)
	s.Require().NoError(err)
	s.Require().Len(sweepable, 1)
	s.Equal(expired.ID, sweepable[0].ID)
}

func (s *ContractStoreSuite) TestListByWallet() {
	c := s.newMutual()
	s.Require().NoError(s.store.Create(s.ctx, c))
	s.Require().NoError(s.store.Create(s.ctx, s.newMutual()))

	mine, err := s.store.ListByWallet(s.ctx, "0xbuyer")
	s.Require().NoError(err)
	s.Len(mine, 2)

	none, err := s.store.ListByWallet(s.ctx, "0xstranger")
	s.Require().NoError(err)
	s.Empty(none)
}
