package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/supafund/supafund-engine/internal/domain"
)

const (
	// contextDelimiter separates the market headline from agent-internal
	// context appended to Supafund market titles.
	contextDelimiter = "<contextStart>"

	untitledMarket = "Untitled market"

	maxOpportunities = 10
	maxActivities    = 20

	opportunityTitleLen = 80
	positionTitleLen    = 120
	activityDescLen     = 160
)

// sanitizeWhitespace collapses runs of whitespace (including non-breaking
// spaces) into single spaces and trims the result.
func sanitizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeMarketTitle strips the internal context delimiter and everything
// after it, then normalizes whitespace. Empty titles get a generic label.
func SanitizeMarketTitle(title string) string {
	if title == "" {
		return untitledMarket
	}
	headline, _, _ := strings.Cut(title, contextDelimiter)
	cleaned := sanitizeWhitespace(headline)
	if cleaned == "" {
		return untitledMarket
	}
	return cleaned
}

// SanitizeOutcomeLabel normalizes an outcome label, falling back to
// YES/NO/"Outcome N" by index when the label is blank.
func SanitizeOutcomeLabel(label string, fallbackIndex int) string {
	cleaned := sanitizeWhitespace(label)
	if cleaned != "" {
		return cleaned
	}
	switch fallbackIndex {
	case 0:
		return "YES"
	case 1:
		return "NO"
	default:
		return fmt.Sprintf("Outcome %d", fallbackIndex)
	}
}

// TruncateText shortens s to at most maxLen runes, appending an ellipsis
// when truncation occurred.
func TruncateText(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	head := strings.TrimRight(string(runes[:maxLen-1]), " ")
	return head + "…"
}

// InferDirection maps an outcome label to the YES/NO display direction.
// "no" is checked first so labels like "No way" classify as NO even though
// they don't contain "yes".
func InferDirection(outcomeName string, outcomeIndex int) domain.Direction {
	normalized := strings.ToLower(outcomeName)
	if strings.Contains(normalized, "no") {
		return domain.DirectionNo
	}
	if strings.Contains(normalized, "yes") {
		return domain.DirectionYes
	}
	if outcomeIndex == 0 {
		return domain.DirectionYes
	}
	return domain.DirectionNo
}

// FormatDuration renders a duration in the largest two applicable units,
// e.g. "2d 5h", "3h 12m", "45m", "30s".
func FormatDuration(seconds int64) string {
	abs := seconds
	if abs < 0 {
		abs = -abs
	}
	days := abs / 86400
	hours := (abs % 86400) / 3600
	minutes := (abs % 3600) / 60

	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		if abs < 1 {
			abs = 1
		}
		return fmt.Sprintf("%ds", abs)
	}
}

// FormatTimeUntil renders "in <duration>" for a future timestamp,
// "Resolved" for past ones, "Unknown" when the timestamp is missing.
func FormatTimeUntil(timestamp, now int64) string {
	if timestamp == 0 {
		return "Unknown"
	}
	diff := timestamp - now
	if diff <= 0 {
		return "Resolved"
	}
	return "in " + FormatDuration(diff)
}

// FormatTimeAgo renders a human-relative timestamp such as "5m ago" or
// "in 2h" for timestamps that are (unexpectedly) in the future.
func FormatTimeAgo(timestamp, now int64) string {
	diff := now - timestamp
	if diff >= 0 {
		switch {
		case diff < 60:
			if diff < 1 {
				diff = 1
			}
			return fmt.Sprintf("%ds ago", diff)
		case diff < 3600:
			return fmt.Sprintf("%dm ago", diff/60)
		case diff < 86400:
			return fmt.Sprintf("%dh ago", diff/3600)
		default:
			return fmt.Sprintf("%dd ago", diff/86400)
		}
	}

	future := -diff
	switch {
	case future < 60:
		if future < 1 {
			future = 1
		}
		return fmt.Sprintf("in %ds", future)
	case future < 3600:
		return fmt.Sprintf("in %dm", future/60)
	case future < 86400:
		return fmt.Sprintf("in %dh", future/3600)
	default:
		return fmt.Sprintf("in %dd", future/86400)
	}
}

// MarketLeader formats the leading outcome of a market as "62.5% YES".
// Markets with no parseable prices report "No liquidity".
func MarketLeader(market domain.MarketSnapshot) string {
	best := -1
	bestPrice := math.Inf(-1)
	for i, raw := range market.MarginalPrices {
		price, ok := domain.ParsePrice(raw)
		if !ok {
			continue
		}
		if price > bestPrice {
			bestPrice = price
			best = i
		}
	}
	if best < 0 {
		return "No liquidity"
	}
	label := SanitizeOutcomeLabel(outcomeAt(market.Outcomes, best), best)
	return fmt.Sprintf("%.1f%% %s", bestPrice*100, label)
}

// expiryLabel picks the market's display expiry: resolved markets say
// "Resolved", open ones count down to the opening timestamp, falling back
// to resolution and then creation time.
func expiryLabel(market domain.MarketSnapshot, now int64) string {
	if market.Resolved(now) {
		return "Resolved"
	}
	target := market.OpeningTimestamp
	if target == 0 {
		target = market.ResolutionTimestamp
	}
	if target == 0 {
		target = market.CreationTimestamp
	}
	return FormatTimeUntil(target, now)
}

// BuildOpportunities ranks open markets by most-recent creation and projects
// the newest ones into the opportunities view. Pure text shaping; a failure
// to parse any field degrades to a generic label.
func BuildOpportunities(markets []domain.MarketSnapshot, now time.Time) []domain.ProcessedOpportunity {
	if len(markets) == 0 {
		return nil
	}

	sorted := make([]domain.MarketSnapshot, len(markets))
	copy(sorted, markets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreationTimestamp > sorted[j].CreationTimestamp
	})
	if len(sorted) > maxOpportunities {
		sorted = sorted[:maxOpportunities]
	}

	nowUnix := now.Unix()
	out := make([]domain.ProcessedOpportunity, 0, len(sorted))
	for _, market := range sorted {
		out = append(out, domain.ProcessedOpportunity{
			ID:           market.ID,
			Title:        TruncateText(SanitizeMarketTitle(market.Title), opportunityTitleLen),
			MarketLeader: MarketLeader(market),
			Category:     categoryOrDefault(market.Category),
			ExpiresIn:    expiryLabel(market, nowUnix),
		})
	}
	return out
}

// BuildActivities projects the most recent trades into the activity feed,
// attaching the realized P&L slice computed during replay.
func BuildActivities(
	trades []domain.TradeEvent,
	perTrade map[string]domain.TradeSummary,
	marketsByCondition map[string]domain.MarketSnapshot,
	now time.Time,
) []domain.ProcessedActivity {
	if len(trades) == 0 {
		return nil
	}

	sorted := make([]domain.TradeEvent, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreationTimestamp > sorted[j].CreationTimestamp
	})
	if len(sorted) > maxActivities {
		sorted = sorted[:maxActivities]
	}

	nowUnix := now.Unix()
	out := make([]domain.ProcessedActivity, 0, len(sorted))
	for _, trade := range sorted {
		summary, ok := perTrade[trade.ID]
		tokens := summary.Tokens
		if !ok {
			tokens = domain.FromWei(trade.OutcomeTokens)
		}

		outcomeName := summary.OutcomeName
		if outcomeName == "" {
			outcomeName = SanitizeOutcomeLabel(outcomeAt(trade.Market.Outcomes, trade.OutcomeIndex), trade.OutcomeIndex)
		}

		action := "Bought"
		activityType := domain.ActivityPositionOpened
		if trade.Side == domain.TradeSideSell {
			action = "Sold"
			activityType = domain.ActivityPositionClosed
		}

		amountLabel := "No size recorded"
		if tokens > 0 {
			amountLabel = fmt.Sprintf("%.2f @ %.2f", domain.Round(tokens, 2), domain.Round(summary.Price, 2))
		}

		marketTitle := trade.Market.Title
		if live, ok := marketsByCondition[lowerOrEmpty(trade.Market.ConditionID)]; ok && live.Title != "" {
			marketTitle = live.Title
		}
		description := TruncateText(
			SanitizeMarketTitle(marketTitle)+" • "+amountLabel,
			activityDescLen,
		)

		activity := domain.ProcessedActivity{
			ID:          trade.ID,
			Type:        activityType,
			Title:       action + " " + outcomeName,
			Description: description,
			Timestamp:   FormatTimeAgo(trade.CreationTimestamp, nowUnix),
		}
		if math.Abs(summary.RealizedPnL) > 1e-4 {
			pnl := domain.Round(summary.RealizedPnL, 2)
			activity.PnL = &pnl
		}
		out = append(out, activity)
	}
	return out
}
