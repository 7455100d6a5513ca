package fees

import (
	"context"
	"io"
	"log"
	"testing"

	"fantoken-engine/internal/domain"
	"fantoken-engine/internal/storage/memory"
)

func newTestDistributor(t *testing.T) (*Distributor, *memory.FundLedgerStore, *memory.TokenStore) {
	t.Helper()

	ledger := memory.NewFundLedgerStore()
	tokens := memory.NewTokenStore()
	logger := log.New(io.Discard, "", 0)

	err := tokens.Insert(context.Background(), &domain.Token{
		TokenID:     7,
		ArtistName:  "NOVA",
		CreatorID:   "creator-1",
		BasePrice:   100_000,
		Coefficient: 10_000,
		TotalSupply: 50,
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("insert token: %v", err)
	}

	d := New(ledger, tokens, logger).WithClock(func() int64 { return 9000 })
	return d, ledger, tokens
}

func confirmedBuy(fundShare, platformFee int64) *domain.Trade {
	return &domain.Trade{
		TradeID:            "trade-1",
		TokenID:            7,
		Kind:               domain.TradeKindBuy,
		Units:              1,
		GrossValue:         500_000,
		ReserveShare:       350_000,
		CommunityFundShare: fundShare,
		PlatformFee:        platformFee,
		Status:             domain.TradeStatusConfirmed,
	}
}

func TestDistributeCreditsCreatorAndPlatform(t *testing.T) {
	d, ledger, _ := newTestDistributor(t)
	ctx := context.Background()

	if err := d.Distribute(ctx, confirmedBuy(100_000, 50_000)); err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	creator, err := ledger.GetByEntity(ctx, "creator-1")
	if err != nil {
		t.Fatalf("GetByEntity(creator): %v", err)
	}
	if creator.Total != 100_000 {
		t.Errorf("creator total = %d, want 100000", creator.Total)
	}

	platform, err := ledger.GetByEntity(ctx, PlatformEntityID)
	if err != nil {
		t.Fatalf("GetByEntity(platform): %v", err)
	}
	if platform.Total != 50_000 {
		t.Errorf("platform total = %d, want 50000", platform.Total)
	}
}

func TestDistributeRejectsNonConfirmedTrade(t *testing.T) {
	d, _, _ := newTestDistributor(t)

	pending := confirmedBuy(100_000, 50_000)
	pending.Status = domain.TradeStatusPending

	if err := d.Distribute(context.Background(), pending); err == nil {
		t.Error("expected rejection of a pending trade")
	}
}

func TestDistributeSellCreditsOnlyPlatform(t *testing.T) {
	d, ledger, _ := newTestDistributor(t)
	ctx := context.Background()

	sell := confirmedBuy(0, 16_000)
	sell.Kind = domain.TradeKindSell

	if err := d.Distribute(ctx, sell); err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	if _, err := ledger.GetByEntity(ctx, "creator-1"); err == nil {
		t.Error("sell must not credit the community fund")
	}

	platform, err := ledger.GetByEntity(ctx, PlatformEntityID)
	if err != nil {
		t.Fatalf("GetByEntity(platform): %v", err)
	}
	if platform.Total != 16_000 {
		t.Errorf("platform total = %d, want 16000", platform.Total)
	}
}

func TestFundStatusActivationThreshold(t *testing.T) {
	d, ledger, tokens := newTestDistributor(t)
	ctx := context.Background()

	if err := ledger.Credit(ctx, "creator-1", 250_000, 1000); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	// Supply 50 with default threshold 100: accrued but inactive.
	status, err := d.FundStatus(ctx, 7)
	if err != nil {
		t.Fatalf("FundStatus: %v", err)
	}
	if status.Total != 250_000 {
		t.Errorf("total = %d, want 250000", status.Total)
	}
	if status.Active {
		t.Error("fund active below supply threshold")
	}

	if err := tokens.UpdateSupply(ctx, 7, 100, 2000); err != nil {
		t.Fatalf("UpdateSupply: %v", err)
	}

	status, err = d.FundStatus(ctx, 7)
	if err != nil {
		t.Fatalf("FundStatus: %v", err)
	}
	if !status.Active {
		t.Error("fund inactive at supply threshold")
	}
}

func TestFundStatusWithoutAccrual(t *testing.T) {
	d, _, _ := newTestDistributor(t)

	status, err := d.FundStatus(context.Background(), 7)
	if err != nil {
		t.Fatalf("FundStatus: %v", err)
	}
	if status.Total != 0 {
		t.Errorf("total = %d, want 0", status.Total)
	}
}
