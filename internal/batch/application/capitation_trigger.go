package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/observability/logging"
	"claim-batch/internal/observability/metrics"
)

// CapitationTrigger ensures capitation report data exists for products
// valuated at a location (generate-if-missing).
type CapitationTrigger struct {
	logger *zap.Logger
}

// NewCapitationTrigger constructs a trigger.
func NewCapitationTrigger(logger *zap.Logger) *CapitationTrigger {
	return &CapitationTrigger{logger: logging.OrNop(logger)}
}

// ResolveRegionAndDistrict maps a location to its capitation region and
// district. Districts yield their parent region; regions yield themselves.
func ResolveRegionAndDistrict(ctx context.Context, tx batch.Tx, locationID *int64) (regionID, districtID *int64, err error) {
	if locationID == nil {
		return nil, nil, nil
	}
	location, err := tx.GetLocation(ctx, *locationID)
	if err != nil {
		return nil, nil, fmt.Errorf("capitation location %d: %w", *locationID, err)
	}
	if location == nil {
		return nil, nil, batch.NewDataError("location %d not found", *locationID)
	}
	switch location.Type {
	case batch.LocationDistrict:
		id := location.ID
		return location.ParentID, &id, nil
	case batch.LocationRegion:
		id := location.ID
		return &id, nil, nil
	}
	return nil, nil, nil
}

// Trigger checks and generates capitation data for key's location.
func (t *CapitationTrigger) Trigger(ctx context.Context, tx batch.Tx, key batch.RunKey) (generated int, err error) {
	capitation := tx.Capitation()
	if capitation == nil {
		return 0, nil
	}
	products, err := tx.ListCapitationProducts(ctx, key.LocationID)
	if err != nil {
		return 0, fmt.Errorf("capitation products: %w", err)
	}
	if len(products) == 0 {
		return 0, nil
	}
	regionID, districtID, err := ResolveRegionAndDistrict(ctx, tx, key.LocationID)
	if err != nil {
		return 0, err
	}

	for _, productID := range products {
		capKey := batch.CapitationKey{
			RegionID:   regionID,
			DistrictID: districtID,
			ProductID:  productID,
			Year:       key.Year,
			Month:      key.Month,
		}
		exists, err := capitation.Exists(ctx, capKey)
		if err != nil {
			return generated, fmt.Errorf("capitation exists product %d: %w", productID, err)
		}
		if exists {
			t.logger.Debug("capitation payment data already exists",
				zap.Int64("prod_id", productID),
				zap.Int("year", key.Year),
				zap.Int("month", key.Month),
			)
			metrics.IncCapitation(metrics.CapitationSkipped)
			continue
		}
		if err := capitation.Generate(ctx, capKey); err != nil {
			return generated, fmt.Errorf("capitation generate product %d: %w", productID, err)
		}
		metrics.IncCapitation(metrics.CapitationGenerated)
		generated++
	}
	return generated, nil
}
