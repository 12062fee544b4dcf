package costing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/Feliciety02/Pietyl-LPG-Management-System-React-sub003/internal/shared"
)

// RepositoryPort describes the receipt queries used by Service.
type RepositoryPort interface {
	ReceiptsForVariant(ctx context.Context, variantID int64, asOf time.Time) ([]Receipt, error)
	ReceiptsInRange(ctx context.Context, from, to time.Time) ([]Receipt, error)
	LatestReceipt(ctx context.Context, variantID int64) (Receipt, bool, error)
	OnHand(ctx context.Context, variantID int64) (float64, error)
	VariantIDs(ctx context.Context) ([]int64, error)
}

// Service computes weighted-average costs. Results are cached in Redis with
// a short TTL; cache failures degrade to direct computation.
type Service struct {
	repo   RepositoryPort
	cache  *redis.Client
	logger *slog.Logger
	ttl    time.Duration
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the costing engine. cache may be nil.
func NewService(repo RepositoryPort, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		ttl:    10 * time.Minute,
		now:    time.Now,
	}
}

// WithTTL overrides the cache TTL.
func (s *Service) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WeightedAverageCost returns the average unit cost of a variant across all
// receipts dated at or before asOf. When no receipt on or before asOf carries
// quantity, the variant's most recent receipt regardless of date supplies the
// unit cost; with no receipts at all the cost is zero. A zero asOf means now.
func (s *Service) WeightedAverageCost(ctx context.Context, variantID int64, asOf time.Time) (UnitCost, error) {
	if variantID <= 0 {
		return UnitCost{}, fmt.Errorf("%w: variant id required", ErrValidation)
	}
	if asOf.IsZero() {
		asOf = s.now()
	}

	key := fmt.Sprintf("costing:wac:%d:%s", variantID, asOf.UTC().Format("2006-01-02T15"))
	if cached, ok := s.cacheGet(ctx, key); ok {
		return cached, nil
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		cost, err := s.computeWAC(ctx, variantID, asOf)
		if err != nil {
			return UnitCost{}, err
		}
		s.cacheSet(ctx, key, cost)
		return cost, nil
	})
	if err != nil {
		return UnitCost{}, err
	}
	return value.(UnitCost), nil
}

func (s *Service) computeWAC(ctx context.Context, variantID int64, asOf time.Time) (UnitCost, error) {
	receipts, err := s.repo.ReceiptsForVariant(ctx, variantID, asOf)
	if err != nil {
		return UnitCost{}, err
	}
	result := UnitCost{VariantID: variantID, AsOf: asOf, Receipts: len(receipts)}

	var totalQty, totalCost float64
	for _, r := range receipts {
		qty := r.EffectiveQty()
		totalQty += qty
		totalCost = shared.Round4(totalCost + qty*r.UnitCost)
	}
	if totalQty <= 0 {
		latest, ok, err := s.repo.LatestReceipt(ctx, variantID)
		if err != nil {
			return UnitCost{}, err
		}
		if ok {
			result.Cost = shared.Round2(latest.UnitCost)
		}
		return result, nil
	}
	result.Cost = shared.Round2(shared.Round4(totalCost / totalQty))
	return result, nil
}

// CostOfGoodsReceived aggregates receipt cost per variant over [from, to].
func (s *Service) CostOfGoodsReceived(ctx context.Context, from, to time.Time) ([]COGSRow, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", ErrValidation)
	}
	receipts, err := s.repo.ReceiptsInRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	totals := map[int64]*COGSRow{}
	order := []int64{}
	for _, r := range receipts {
		row, ok := totals[r.VariantID]
		if !ok {
			row = &COGSRow{VariantID: r.VariantID}
			totals[r.VariantID] = row
			order = append(order, r.VariantID)
		}
		qty := r.EffectiveQty()
		row.Qty += qty
		row.Cost = shared.Round2(row.Cost + shared.Round4(qty*r.UnitCost))
	}
	out := make([]COGSRow, 0, len(order))
	for _, id := range order {
		out = append(out, *totals[id])
	}
	return out, nil
}

// InventoryValuation values current stock of every variant at its
// weighted-average cost.
func (s *Service) InventoryValuation(ctx context.Context) ([]ValuationLine, error) {
	ids, err := s.repo.VariantIDs(ctx)
	if err != nil {
		return nil, err
	}
	asOf := s.now()
	out := make([]ValuationLine, 0, len(ids))
	for _, id := range ids {
		onHand, err := s.repo.OnHand(ctx, id)
		if err != nil {
			return nil, err
		}
		cost, err := s.WeightedAverageCost(ctx, id, asOf)
		if err != nil {
			return nil, err
		}
		out = append(out, ValuationLine{
			VariantID: id,
			OnHand:    onHand,
			UnitCost:  cost.Cost,
			Value:     shared.Round2(onHand * cost.Cost),
		})
	}
	return out, nil
}

// Invalidate drops cached costs for a variant after a new receipt lands.
func (s *Service) Invalidate(ctx context.Context, variantID int64) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("costing:wac:%d:*", variantID)
	iter := s.cache.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.cache.Del(ctx, iter.Val()).Err(); err != nil {
			s.logWarn("costing cache invalidate", err)
			return
		}
	}
	if err := iter.Err(); err != nil {
		s.logWarn("costing cache scan", err)
	}
}

func (s *Service) cacheGet(ctx context.Context, key string) (UnitCost, bool) {
	if s.cache == nil {
		return UnitCost{}, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logWarn("costing cache get", err)
		}
		return UnitCost{}, false
	}
	var cost UnitCost
	if err := json.Unmarshal(raw, &cost); err != nil {
		return UnitCost{}, false
	}
	return cost, true
}

func (s *Service) cacheSet(ctx context.Context, key string, cost UnitCost) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(cost)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logWarn("costing cache set", err)
	}
}

func (s *Service) logWarn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, slog.Any("error", err))
	}
}
