package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"countertop-service/config"
	"countertop-service/internal/auth"
	"countertop-service/internal/models"
	"countertop-service/internal/store"
	"countertop-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seller = auth.ActingUser{UserID: 7, CompanyID: storetest.CompanyID}

type contractEnv struct {
	store     *store.Store
	showroom  storetest.Showroom
	cache     *fakeCache
	guard     *fakeGuard
	publisher *fakePublisher
	svc       *ContractService
}

func newContractEnv(t *testing.T) *contractEnv {
	t.Helper()
	s := storetest.New(t)
	env := &contractEnv{
		store:     s,
		showroom:  storetest.Seed(t, s),
		cache:     newFakeCache(),
		guard:     &fakeGuard{},
		publisher: &fakePublisher{},
	}
	env.svc = NewContractService(s, env.cache, env.guard, env.publisher, config.BusinessConfig{ReservationCandidates: 5})
	return env
}

func (e *contractEnv) request(slabs ...int64) *SaleRequest {
	customerID := e.showroom.CustomerID
	room := Room{Room: "kitchen", SquareFeet: 40}
	for _, id := range slabs {
		room.Slabs = append(room.Slabs, SlabRef{ID: id, IsFull: true})
	}
	return &SaleRequest{CustomerID: &customerID, Rooms: []Room{room}}
}

func (e *contractEnv) slabsOf(t *testing.T, saleID int64) []int64 {
	t.Helper()
	slabs, err := e.store.GetSlabsBySale(context.Background(), saleID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(slabs))
	for _, slab := range slabs {
		ids = append(ids, slab.ID)
	}
	return ids
}

func TestSellReservesUnitsAndPricesRooms(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	notes := "template on friday"
	req := env.request(sr.Slabs[0], sr.Slabs[1])
	req.Rooms[0].Notes = &notes
	req.Rooms[0].Extras = []Extra{{Name: "ogee edge", Price: 100}}
	req.Rooms[0].Sinks = []int64{sr.SinkType}

	saleID, err := env.svc.Sell(ctx, seller, req, "")
	require.NoError(t, err)

	sale, err := env.store.GetSale(ctx, seller.CompanyID, saleID)
	require.NoError(t, err)
	assert.Equal(t, 2550.0, sale.Price)
	assert.Equal(t, models.SaleStatusActive, sale.Status)
	assert.Equal(t, seller.UserID, sale.SellerID)

	assert.ElementsMatch(t, []int64{sr.Slabs[0], sr.Slabs[1]}, env.slabsOf(t, saleID))

	sinks, err := env.store.GetFixturesBySale(ctx, models.UnitSink, saleID)
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, sr.Sinks[0], sinks[0].ID)
	require.NotNil(t, sinks[0].Notes)
	assert.Equal(t, notes, *sinks[0].Notes)

	assert.Equal(t, []string{models.EventTypeSaleCreated}, env.publisher.types())
	assert.Equal(t, 1, env.cache.invalidated(seller.CompanyID))
}

func TestSellCreatesCustomer(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()

	req := env.request(env.showroom.Slabs[0])
	req.CustomerID = nil
	req.Customer = &CustomerInput{Name: "Walk-in Buyer"}

	saleID, err := env.svc.Sell(ctx, seller, req, "")
	require.NoError(t, err)

	contract, err := env.svc.FromSalesID(ctx, seller, saleID)
	require.NoError(t, err)
	require.NotNil(t, contract.Customer)
	assert.Equal(t, "Walk-in Buyer", contract.Customer.Name)
	assert.NotEqual(t, env.showroom.CustomerID, contract.Customer.ID)
}

func TestSellRoomWithoutSlabsWritesNothing(t *testing.T) {
	env := newContractEnv(t)

	req := env.request()
	req.Customer = &CustomerInput{Name: "Nobody"}
	req.CustomerID = nil

	_, err := env.svc.Sell(context.Background(), seller, req, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "room has no slabs", verr.Fields["rooms[0].slabs"])

	assert.Zero(t, storetest.CountRows(t, env.store, "sales", ""))
	assert.Equal(t, 1, storetest.CountRows(t, env.store, "customers", ""))
	assert.Zero(t, storetest.CountRows(t, env.store, "slab_inventory", "sale_id IS NOT NULL"))
	assert.Empty(t, env.publisher.types())
}

func TestSellUnknownIDsAreValidationErrors(t *testing.T) {
	env := newContractEnv(t)

	req := env.request(env.showroom.ForeignSlab)
	req.Rooms[0].Faucets = []int64{9999}

	_, err := env.svc.Sell(context.Background(), seller, req, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "rooms[0].slabs[0].id")
	assert.Contains(t, verr.Fields, "rooms[0].faucets[0]")

	missing := int64(9999)
	req = env.request(env.showroom.Slabs[0])
	req.CustomerID = &missing
	_, err = env.svc.Sell(context.Background(), seller, req, "")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "customer_id")
	assert.Nil(t, storetest.SlabOwner(t, env.store, env.showroom.Slabs[0]))
}

func TestSellSoldSlabConflicts(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	first, err := env.svc.Sell(ctx, seller, env.request(sr.Slabs[0]), "")
	require.NoError(t, err)

	_, err = env.svc.Sell(ctx, seller, env.request(sr.Slabs[1], sr.Slabs[0]), "")
	assert.True(t, errors.Is(err, ErrConflict))
	assert.EqualError(t, err, fmt.Sprintf("slab %d is no longer available", sr.Slabs[0]))

	assert.Equal(t, 1, storetest.CountRows(t, env.store, "sales", ""))
	assert.Nil(t, storetest.SlabOwner(t, env.store, sr.Slabs[1]))
	assert.Equal(t, first, *storetest.SlabOwner(t, env.store, sr.Slabs[0]))

	_, err = env.svc.Sell(ctx, seller, env.request(sr.CutSlab), "")
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestSellFixtureShortageRollsBack(t *testing.T) {
	env := newContractEnv(t)
	sr := env.showroom

	req := env.request(sr.Slabs[0])
	req.Rooms[0].Sinks = []int64{sr.SinkType, sr.SinkType, sr.SinkType}

	_, err := env.svc.Sell(context.Background(), seller, req, "")
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.UnitSink, conflict.Kind)
	assert.Equal(t, `no sink of type "Undermount 60/40" is available`, err.Error())

	assert.Zero(t, storetest.CountRows(t, env.store, "sales", ""))
	assert.Zero(t, storetest.CountRows(t, env.store, "sinks", "sale_id IS NOT NULL"))
	assert.Nil(t, storetest.SlabOwner(t, env.store, sr.Slabs[0]))
}

func TestConcurrentSellOfOneSlab(t *testing.T) {
	env := newContractEnv(t)
	slab := env.showroom.Slabs[0]

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     []int64
		lostErr []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			saleID, err := env.svc.Sell(context.Background(), seller, env.request(slab), "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lostErr = append(lostErr, err)
				return
			}
			won = append(won, saleID)
		}()
	}
	wg.Wait()

	require.Len(t, won, 1)
	require.Len(t, lostErr, 1)
	assert.True(t, errors.Is(lostErr[0], ErrConflict))
	assert.Equal(t, won[0], *storetest.SlabOwner(t, env.store, slab))
	assert.Equal(t, 1, storetest.CountRows(t, env.store, "sales", ""))
}

func TestSellIdempotencyKey(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	req := env.request(env.showroom.Slabs[0])

	first, err := env.svc.Sell(ctx, seller, req, "c0ffee")
	require.NoError(t, err)
	second, err := env.svc.Sell(ctx, seller, req, "c0ffee")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, storetest.CountRows(t, env.store, "sales", ""))

	claimed, err := env.guard.ClaimIdempotencyKey(ctx, "sale:1:in-flight", 0)
	require.NoError(t, err)
	require.True(t, claimed)
	_, err = env.svc.Sell(ctx, seller, env.request(env.showroom.Slabs[1]), "in-flight")
	assert.True(t, errors.Is(err, ErrDuplicateSubmission))
}

func TestEditReconcilesSlabs(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	saleID, err := env.svc.Sell(ctx, seller, env.request(sr.Slabs[0], sr.Slabs[1]), "")
	require.NoError(t, err)

	req := env.request(sr.Slabs[1], sr.Slabs[2])
	req.Rooms[0].Slabs[0].IsFull = false
	require.NoError(t, env.svc.Edit(ctx, seller, saleID, req))

	assert.ElementsMatch(t, []int64{sr.Slabs[1], sr.Slabs[2]}, env.slabsOf(t, saleID))
	assert.Nil(t, storetest.SlabOwner(t, env.store, sr.Slabs[0]))

	contract, err := env.svc.FromSalesID(ctx, seller, saleID)
	require.NoError(t, err)
	require.Len(t, contract.Rooms, 1)
	require.Len(t, contract.Rooms[0].Slabs, 2)
	assert.Empty(t, contract.Slabs)
	for _, slab := range contract.Rooms[0].Slabs {
		assert.Equal(t, slab.ID == sr.Slabs[2], slab.IsFull)
	}

	assert.Equal(t, []string{models.EventTypeSaleCreated, models.EventTypeSaleUpdated}, env.publisher.types())
}

func TestEditReusesHeldFixtures(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	req := env.request(sr.Slabs[0])
	req.Rooms[0].Sinks = []int64{sr.SinkType}
	saleID, err := env.svc.Sell(ctx, seller, req, "")
	require.NoError(t, err)

	held := func() []int64 {
		units, err := env.store.GetFixturesBySale(ctx, models.UnitSink, saleID)
		require.NoError(t, err)
		ids := make([]int64, 0, len(units))
		for _, u := range units {
			ids = append(ids, u.ID)
		}
		return ids
	}
	require.Equal(t, []int64{sr.Sinks[0]}, held())

	req.Rooms = append(req.Rooms, Room{Room: "bath", SquareFeet: 10, Slabs: []SlabRef{{ID: sr.Slabs[1]}}, Sinks: []int64{sr.SinkType}})
	require.NoError(t, env.svc.Edit(ctx, seller, saleID, req))
	assert.Equal(t, []int64{sr.Sinks[0], sr.Sinks[1]}, held())

	req.Rooms = req.Rooms[1:]
	require.NoError(t, env.svc.Edit(ctx, seller, saleID, req))
	assert.Len(t, held(), 1)
	assert.Equal(t, []int64{sr.Slabs[1]}, env.slabsOf(t, saleID))

	req.Rooms[0].Sinks = nil
	require.NoError(t, env.svc.Edit(ctx, seller, saleID, req))
	assert.Empty(t, held())
	assert.Zero(t, storetest.CountRows(t, env.store, "sinks", "sale_id IS NOT NULL"))
}

func TestEditMissingOrCanceledSale(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	err := env.svc.Edit(ctx, seller, 4242, env.request(sr.Slabs[0]))
	assert.True(t, errors.Is(err, ErrSaleNotFound))

	saleID, err := env.svc.Sell(ctx, seller, env.request(sr.Slabs[0]), "")
	require.NoError(t, err)

	other := auth.ActingUser{UserID: 9, CompanyID: storetest.OtherCompanyID}
	err = env.svc.Edit(ctx, other, saleID, env.request(sr.Slabs[0]))
	assert.True(t, errors.Is(err, ErrSaleNotFound))

	require.NoError(t, env.svc.Unsell(ctx, seller, saleID))
	err = env.svc.Edit(ctx, seller, saleID, env.request(sr.Slabs[0]))
	assert.True(t, errors.Is(err, ErrSaleCanceled))
	assert.Nil(t, storetest.SlabOwner(t, env.store, sr.Slabs[0]))
}

func TestEditKeepsSlabsCutSinceTheSale(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	saleID, err := env.svc.Sell(ctx, seller, env.request(sr.Slabs[0], sr.Slabs[1]), "")
	require.NoError(t, err)

	_, err = env.store.GetDB().Exec("UPDATE slab_inventory SET cut_date = ? WHERE id = ?", time.Now().UTC(), sr.Slabs[0])
	require.NoError(t, err)

	contract, err := env.svc.FromSalesID(ctx, seller, saleID)
	require.NoError(t, err)
	req := contract.Request()
	notes := "seam on the left"
	req.Notes = &notes
	require.NoError(t, env.svc.Edit(ctx, seller, saleID, req))

	assert.ElementsMatch(t, []int64{sr.Slabs[0], sr.Slabs[1]}, env.slabsOf(t, saleID))

	// a cut slab held by another sale stays unavailable
	other, err := env.svc.Sell(ctx, seller, env.request(sr.Slabs[2]), "")
	require.NoError(t, err)
	err = env.svc.Edit(ctx, seller, other, env.request(sr.Slabs[2], sr.Slabs[0]))
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestEditInlineCustomerUpdatesSaleCustomer(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()

	req := env.request(env.showroom.Slabs[0])
	req.CustomerID = nil
	req.Customer = &CustomerInput{Name: "Walk-in Buyer"}
	saleID, err := env.svc.Sell(ctx, seller, req, "")
	require.NoError(t, err)

	before, err := env.svc.FromSalesID(ctx, seller, saleID)
	require.NoError(t, err)

	phone := "555-0100"
	req.Customer = &CustomerInput{Name: "Walk-in Buyer Jr", Phone: &phone}
	require.NoError(t, env.svc.Edit(ctx, seller, saleID, req))
	require.NoError(t, env.svc.Edit(ctx, seller, saleID, req))

	after, err := env.svc.FromSalesID(ctx, seller, saleID)
	require.NoError(t, err)
	assert.Equal(t, before.Customer.ID, after.Customer.ID)
	assert.Equal(t, "Walk-in Buyer Jr", after.Customer.Name)
	require.NotNil(t, after.Customer.Phone)
	assert.Equal(t, phone, *after.Customer.Phone)
	assert.Equal(t, 2, storetest.CountRows(t, env.store, "customers", ""))
}

func TestUpdateActiveSaleReportsCanceled(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()

	saleID, err := env.svc.Sell(ctx, seller, env.request(env.showroom.Slabs[0]), "")
	require.NoError(t, err)
	sale, err := env.store.GetSale(ctx, seller.CompanyID, saleID)
	require.NoError(t, err)

	_, err = env.store.CancelSale(ctx, seller.CompanyID, saleID)
	require.NoError(t, err)

	err = env.store.InTx(ctx, func(tx *store.Tx) error {
		return updateActiveSale(ctx, tx, sale)
	})
	assert.True(t, errors.Is(err, ErrSaleCanceled))
	assert.Equal(t, "canceled", failureReason(err))
}

func TestConcurrentEditAndUnsell(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	saleID, err := env.svc.Sell(ctx, seller, env.request(sr.Slabs[0]), "")
	require.NoError(t, err)

	var (
		wg              sync.WaitGroup
		editErr, unsellErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		editErr = env.svc.Edit(ctx, seller, saleID, env.request(sr.Slabs[0], sr.Slabs[1], sr.Slabs[2]))
	}()
	go func() {
		defer wg.Done()
		unsellErr = env.svc.Unsell(ctx, seller, saleID)
	}()
	wg.Wait()

	require.NoError(t, unsellErr)
	if editErr != nil {
		assert.True(t, errors.Is(editErr, ErrSaleCanceled))
	}
	assert.Empty(t, env.slabsOf(t, saleID))
	assert.Zero(t, storetest.CountRows(t, env.store, "slab_inventory", "sale_id IS NOT NULL"))
}

func TestUnsellReleasesEverything(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	notes := "leave the offcut"
	req := env.request(sr.Slabs[0], sr.Slabs[1])
	req.Rooms[0].Notes = &notes
	req.Rooms[0].Sinks = []int64{sr.SinkType}
	req.Rooms[0].Faucets = []int64{sr.FaucetType}
	saleID, err := env.svc.Sell(ctx, seller, req, "")
	require.NoError(t, err)

	require.NoError(t, env.svc.Unsell(ctx, seller, saleID))

	assert.Empty(t, env.slabsOf(t, saleID))
	assert.Nil(t, storetest.SlabOwner(t, env.store, sr.Slabs[0]))
	assert.Zero(t, storetest.CountRows(t, env.store, "slab_inventory", "notes IS NOT NULL OR room_uuid IS NOT NULL"))
	assert.Zero(t, storetest.CountRows(t, env.store, "sinks", "sale_id IS NOT NULL OR notes IS NOT NULL"))
	assert.Zero(t, storetest.CountRows(t, env.store, "faucets", "sale_id IS NOT NULL OR notes IS NOT NULL"))

	sale, err := env.store.GetSale(ctx, seller.CompanyID, saleID)
	require.NoError(t, err)
	assert.Equal(t, models.SaleStatusCanceled, sale.Status)
	assert.NotNil(t, sale.CanceledAt)

	require.NoError(t, env.svc.Unsell(ctx, seller, saleID))
	assert.Equal(t,
		[]string{models.EventTypeSaleCreated, models.EventTypeSaleCanceled},
		env.publisher.types())

	err = env.svc.Unsell(ctx, seller, 4242)
	assert.True(t, errors.Is(err, ErrSaleNotFound))
}

func TestFromSalesIDRebuildsRequest(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	edge := "eased"
	req := env.request(sr.Slabs[0])
	req.Rooms[0].Edge = &edge
	req.Rooms[0].Extras = []Extra{{Name: "cutout", Price: 75, Quantity: 2}}
	req.Rooms[0].Faucets = []int64{sr.FaucetType}
	req.Rooms = append(req.Rooms, Room{Room: "bath", SquareFeet: 12, RetailPrice: 60, Slabs: []SlabRef{{ID: sr.Slabs[1]}}})

	saleID, err := env.svc.Sell(ctx, seller, req, "")
	require.NoError(t, err)

	contract, err := env.svc.FromSalesID(ctx, seller, saleID)
	require.NoError(t, err)
	assert.True(t, contract.Active())
	assert.ElementsMatch(t, []int64{sr.Slabs[0], sr.Slabs[1]}, contract.SlabIDs())
	require.Len(t, contract.Rooms, 2)
	assert.Equal(t, "kitchen", contract.Rooms[0].Room)
	assert.Equal(t, 55.0, contract.Rooms[0].RetailPrice)
	assert.Equal(t, 2470.0, contract.Rooms[0].Total)
	assert.Equal(t, 720.0, contract.Rooms[1].Total)
	assert.Equal(t, 3190.0, contract.Sale.Price)
	require.Len(t, contract.Rooms[0].Faucets, 1)
	assert.Equal(t, "Pull-down Chrome", contract.Rooms[0].Faucets[0].TypeName)

	rebuilt := contract.Request()
	require.Len(t, rebuilt.Rooms, 2)
	assert.Equal(t, req.Rooms[0].Extras, rebuilt.Rooms[0].Extras)
	assert.Equal(t, []int64{sr.FaucetType}, rebuilt.Rooms[0].Faucets)
	assert.Equal(t, &edge, rebuilt.Rooms[0].Edge)

	require.NoError(t, env.svc.Edit(ctx, seller, saleID, rebuilt))
	assert.ElementsMatch(t, []int64{sr.Slabs[0], sr.Slabs[1]}, env.slabsOf(t, saleID))

	_, err = env.svc.FromSalesID(ctx, auth.ActingUser{UserID: 1, CompanyID: storetest.OtherCompanyID}, saleID)
	assert.True(t, errors.Is(err, ErrSaleNotFound))
}

func TestQuoteMatchesSell(t *testing.T) {
	env := newContractEnv(t)
	ctx := context.Background()
	sr := env.showroom

	req := env.request(sr.Slabs[0])
	req.Rooms[0].Sinks = []int64{sr.SinkType}
	req.Rooms[0].Extras = []Extra{{Name: "ogee edge", Price: 100}}

	quote, err := env.svc.Quote(ctx, seller, &QuoteRequest{Rooms: req.Rooms})
	require.NoError(t, err)
	assert.Equal(t, 2550.0, quote.Price)
	assert.Zero(t, storetest.CountRows(t, env.store, "sales", ""))

	saleID, err := env.svc.Sell(ctx, seller, req, "")
	require.NoError(t, err)
	sale, err := env.store.GetSale(ctx, seller.CompanyID, saleID)
	require.NoError(t, err)
	assert.Equal(t, quote.Price, sale.Price)

	override := 2400.0
	req = env.request(sr.Slabs[1])
	req.Price = &override
	saleID, err = env.svc.Sell(ctx, seller, req, "")
	require.NoError(t, err)
	sale, err = env.store.GetSale(ctx, seller.CompanyID, saleID)
	require.NoError(t, err)
	assert.Equal(t, 2400.0, sale.Price)
}
