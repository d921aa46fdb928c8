//go:build integration

package contract_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"paylink/internal/escrow/models"
	"paylink/internal/escrow/store/contract"
	id "paylink/pkg/domain"
	"paylink/pkg/platform/sentinel"
	"paylink/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *contract.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	ddl, err := os.ReadFile("../../../../migrations/001_init.sql")
	s.Require().NoError(err)
	s.postgres.Apply(s.T(), string(ddl))
	s.store = contract.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.postgres != nil {
		s.postgres.Pool.Close()
		_ = s.postgres.Container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.Pool.Exec(context.Background(), "TRUNCATE escrow_contracts CASCADE")
	s.Require().NoError(err)
}

func newMutual(expiresAt time.Time) *models.Contract {
	now := time.Now().UTC()
	c, err := models.NewMutualContract(id.NewEscrowID(), "0xbuyer", "0xseller",
		"USDC", decimal.NewFromInt(100), decimal.NewFromInt(20), expiresAt, now)
	if err != nil {
		panic(err)
	}
	return c
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	c := newMutual(time.Now().Add(24 * time.Hour))
	s.Require().NoError(s.store.Create(ctx, c))

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(c.ID, found.ID)
	s.Equal(models.StatusCreated, found.Status)
	s.True(found.BuyerAmount.Equal(decimal.NewFromInt(100)))
	s.True(found.SellerAmount.Equal(decimal.NewFromInt(20)))

	_, err = s.store.FindByID(ctx, id.NewEscrowID())
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestUpdateIfVersionGate() {
	ctx := context.Background()
	c := newMutual(time.Now().Add(24 * time.Hour))
	s.Require().NoError(s.store.Create(ctx, c))

	c.ApplyDeposit(models.RoleBuyer, time.Now().UTC())
	s.Require().NoError(s.store.UpdateIf(ctx, c, 0))

	// A writer holding the stale version loses.
	stale := newMutual(time.Now().Add(24 * time.Hour))
	stale.ID = c.ID
	err := s.store.UpdateIf(ctx, stale, 0)
	s.True(errors.Is(err, sentinel.ErrConflict))

	found, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), found.Version)
	s.True(found.BuyerDeposited)
}

func (s *PostgresStoreSuite) TestConcurrentUpdatersOneWins() {
	ctx := context.Background()
	c := newMutual(time.Now().Add(24 * time.Hour))
	s.Require().NoError(s.store.Create(ctx, c))

	const goroutines = 16
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := s.store.FindByID(ctx, c.ID)
			if err != nil {
				return
			}
			fresh.ApplyDeposit(models.RoleBuyer, time.Now().UTC())
			if err := s.store.UpdateIf(ctx, fresh, 0); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

func (s *PostgresStoreSuite) TestListByWallet() {
	ctx := context.Background()
	mine := newMutual(time.Now().Add(24 * time.Hour))
	s.Require().NoError(s.store.Create(ctx, mine))

	other, err := models.NewMutualContract(id.NewEscrowID(), "0xsomeone", "0xelse",
		"USDC", decimal.NewFromInt(5), decimal.Zero, time.Now().Add(time.Hour), time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, other))

	asBuyer, err := s.store.ListByWallet(ctx, "0xbuyer")
	s.Require().NoError(err)
	s.Len(asBuyer, 1)

	asSeller, err := s.store.ListByWallet(ctx, "0xseller")
	s.Require().NoError(err)
	s.Len(asSeller, 1)

	none, err := s.store.ListByWallet(ctx, "0xnobody")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresStoreSuite) TestListSweepable() {
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newMutual(now.Add(50 * time.Millisecond))
	s.Require().NoError(s.store.Create(ctx, expired))

	fresh := newMutual(now.Add(24 * time.Hour))
	s.Require().NoError(s.store.Create(ctx, fresh))

	time.Sleep(100 * time.Millisecond)

	sweepable, err := s.store.ListSweepable(ctx, time.Now().UTC(), 10)
	s.Require().NoError(err)
	s.Require().Len(sweepable, 1)
	s.Equal(expired.ID, sweepable[0].ID)
}
