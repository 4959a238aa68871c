package trader

import (
	"errors"
	"fmt"
	"time"

	ptypes "github.com/gateway-fm/swapgen/pkg/types"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid trader config")

// DefaultConfig returns the default trading parameters.
func DefaultConfig() ptypes.TraderConfig {
	return ptypes.TraderConfig{
		MinBuyAmount:        0.001,
		MaxBuyAmount:        0.01,
		MinSellPercent:      0.1,
		MaxSellPercent:      0.5,
		BuyInterval:         60 * time.Second,
		SellInterval:        90 * time.Second,
		ProgressiveFactor:   1.2,
		MaxProgressiveSteps: 10,
		MinHoldHours:        0,
		MaxHoldHours:        168,
		SlippageBps:         1000,
		BuyStrategy:         ptypes.StrategyFast,
		SellStrategy:        ptypes.StrategyUrgent,
		Pacing:              ptypes.PacingWave,
		AmountDistribution:  ptypes.AmountUniform,
	}
}

// ValidStrategy reports whether s names a delivery strategy.
func ValidStrategy(s ptypes.Strategy) bool {
	switch s {
	case ptypes.StrategyStandard, ptypes.StrategyFast, ptypes.StrategyUrgent, ptypes.StrategyRelay:
		return true
	}
	return false
}

// ValidPacing reports whether p names a pacing mode.
func ValidPacing(p ptypes.Pacing) bool {
	switch p {
	case ptypes.PacingFlat, ptypes.PacingWave, ptypes.PacingOrganic:
		return true
	}
	return false
}

// Validate checks c for values the loops cannot work with.
func Validate(c ptypes.TraderConfig) error {
	switch {
	case c.MinBuyAmount <= 0 || c.MaxBuyAmount < c.MinBuyAmount:
		return fmt.Errorf("%w: buy amount range [%v, %v]", ErrInvalidConfig, c.MinBuyAmount, c.MaxBuyAmount)
	case c.MinSellPercent <= 0 || c.MaxSellPercent < c.MinSellPercent || c.MaxSellPercent > 1:
		return fmt.Errorf("%w: sell percent range [%v, %v]", ErrInvalidConfig, c.MinSellPercent, c.MaxSellPercent)
	case c.BuyInterval <= 0 || c.SellInterval <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	case c.ProgressiveFactor < 1:
		return fmt.Errorf("%w: progressive factor %v below 1", ErrInvalidConfig, c.ProgressiveFactor)
	case c.MaxProgressiveSteps < 0:
		return fmt.Errorf("%w: negative progressive steps", ErrInvalidConfig)
	case c.MinHoldHours < 0 || c.MaxHoldHours < c.MinHoldHours:
		return fmt.Errorf("%w: hold hours [%d, %d]", ErrInvalidConfig, c.MinHoldHours, c.MaxHoldHours)
	case c.TargetBuyRatio < 0 || c.TargetBuyRatio > 1:
		return fmt.Errorf("%w: target buy ratio %v", ErrInvalidConfig, c.TargetBuyRatio)
	case c.SlippageBps > 10_000:
		return fmt.Errorf("%w: slippage %d bps", ErrInvalidConfig, c.SlippageBps)
	case !ValidStrategy(c.BuyStrategy):
		return fmt.Errorf("%w: buy strategy %q", ErrInvalidConfig, c.BuyStrategy)
	case !ValidStrategy(c.SellStrategy):
		return fmt.Errorf("%w: sell strategy %q", ErrInvalidConfig, c.SellStrategy)
	case !ValidPacing(c.Pacing):
		return fmt.Errorf("%w: pacing %q", ErrInvalidConfig, c.Pacing)
	case c.AmountDistribution != ptypes.AmountUniform && c.AmountDistribution != ptypes.AmountTiered:
		return fmt.Errorf("%w: amount distribution %q", ErrInvalidConfig, c.AmountDistribution)
	}
	return nil
}
