package notifier

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"YieldKeeper/internal/model"
)

// HarvestResult is the outcome of harvesting one venue.
type HarvestResult struct {
	Venue  string
	Amount uint64
	Err    error
	// Holdings is the venue's reported value after the harvest, valid when
	// HoldingsErr is nil.
	Holdings    uint64
	HoldingsErr error
}

// FormatAmount renders amount with the given decimals and thousands separators,
// e.g. 1234567890 at 6 decimals is "1,234.56789".
func FormatAmount(amount uint64, decimals uint8) string {
	v := new(big.Int).SetUint64(amount)
	if decimals == 0 {
		return humanize.BigComma(v)
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(v, unit, new(big.Int))

	out := humanize.BigComma(whole)
	if frac.Sign() == 0 {
		return out
	}
	digits := frac.String()
	digits = strings.Repeat("0", int(decimals)-len(digits)) + digits
	return out + "." + strings.TrimRight(digits, "0")
}

// FormatHarvestReport formats the result of a harvest run. injected is what
// reached the pool, including yield carried over from earlier runs.
func FormatHarvestReport(results []HarvestResult, injected uint64, pool model.GlobalPool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🌾 <b>Harvest</b> | %s\n\n", time.Now().UTC().Format("2006-01-02 15:04")))

	for _, r := range results {
		if r.Err != nil {
			b.WriteString(fmt.Sprintf("❌ %s: %v\n", r.Venue, r.Err))
			continue
		}
		line := fmt.Sprintf("✅ %s: %s", r.Venue, FormatAmount(r.Amount, pool.BaseDecimals))
		if r.HoldingsErr == nil {
			line += fmt.Sprintf(" (holds %s)", FormatAmount(r.Holdings, pool.BaseDecimals))
		}
		b.WriteString(line + "\n")
	}
	b.WriteString(fmt.Sprintf("\nInjected: %s %s\n", FormatAmount(injected, pool.BaseDecimals), pool.BaseAsset))
	b.WriteString(fmt.Sprintf("Undistributed reward: %s\n", FormatAmount(pool.TotalReward, pool.BaseDecimals)))
	return b.String()
}

// FormatPoolStatus formats the pool totals and markets for display.
func FormatPoolStatus(pool model.GlobalPool, positions int, markets []model.Market) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Pool %s</b> | %s\n\n", pool.ID, pool.State()))
	b.WriteString(fmt.Sprintf("Principal: %s %s\n", FormatAmount(pool.TotalPrincipal, pool.BaseDecimals), pool.BaseAsset))
	b.WriteString(fmt.Sprintf("Undistributed reward: %s\n", FormatAmount(pool.TotalReward, pool.BaseDecimals)))
	b.WriteString(fmt.Sprintf("Accrual base: %s\n", FormatAmount(pool.AccrualBase, pool.BaseDecimals)))
	b.WriteString(fmt.Sprintf("Positions: %s\n", humanize.Comma(int64(positions))))
	if pool.Started() {
		b.WriteString(fmt.Sprintf("Last accrual: %s\n", humanize.Time(time.Unix(pool.LastAccrualTime, 0))))
	} else {
		b.WriteString("Last accrual: never\n")
	}

	if len(markets) > 0 {
		b.WriteString("\n<b>Markets</b>\n")
		for _, m := range markets {
			lock := ""
			if m.Locked {
				lock = " 🔒"
			}
			b.WriteString(fmt.Sprintf("  %s: liquidity %s%s\n", m.Asset, FormatAmount(m.WithdrawalLiquidity, pool.BaseDecimals), lock))
		}
	}
	return b.String()
}

// FormatPosition formats one position and its pending reward.
func FormatPosition(pos model.Position, pending uint64, pool model.GlobalPool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👤 <b>%s</b>\n\n", pos.Owner))
	b.WriteString(fmt.Sprintf("Principal: %s %s\n", FormatAmount(pos.Principal, pool.BaseDecimals), pool.BaseAsset))
	b.WriteString(fmt.Sprintf("Accrued: %s\n", FormatAmount(pos.AccruedReward, pool.BaseDecimals)))
	b.WriteString(fmt.Sprintf("Pending: %s\n", FormatAmount(pending, pool.BaseDecimals)))
	if pos.Frozen {
		b.WriteString("Frozen ❄️\n")
	}
	return b.String()
}
