package entity

import (
	"fmt"
	"sort"
	"time"
)

type ProfitabilityTolerance string

const (
	ToleranceProfitableOnly ProfitabilityTolerance = "profitable_only"
	ToleranceBreakEven      ProfitabilityTolerance = "break_even_ok"
	ToleranceTurnaround     ProfitabilityTolerance = "turnaround_ok"
)

// MatchProfile is the buyer's stated acquisition preferences. It is
// owned by an external profile collaborator; the scorer treats it as an
// immutable input. Zero-valued criteria mean "no constraint".
type MatchProfile struct {
	BuyerID       string                 `bson:"_id,omitempty"`
	Regions       []string               `bson:"regions,omitempty"`
	Industries    []string               `bson:"industries,omitempty"`
	RevenueMin    float64                `bson:"revenue_min,omitempty"`
	RevenueMax    float64                `bson:"revenue_max,omitempty"`
	PriceMin      float64                `bson:"price_min,omitempty"`
	PriceMax      float64                `bson:"price_max,omitempty"`
	Profitability ProfitabilityTolerance `bson:"profitability,omitempty"`
	UpdatedAt     time.Time              `bson:"updated_at"`
}

// Criterion weights sum to 100 by construction; a near-miss earns half.
const (
	weightRegion        = 25
	weightIndustry      = 25
	weightRevenue       = 20
	weightPrice         = 20
	weightProfitability = 10
)

// nearMissFactor widens band criteria by half a band step on each side.
const nearMissFactor = 0.5

type MatchResult struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

type matchContribution struct {
	points int
	reason string
}

// ScoreMatch computes the buyer-listing fit from public attributes only.
// Gated fields must never feed the score: a score delta would leak their
// existence. Pure and deterministic; identical inputs give identical
// output including reason ordering.
func ScoreMatch(listing PublicListing, profile MatchProfile) MatchResult {
	total := 0
	var contribs []matchContribution

	// Unset criteria earn their weight silently: the helpers return the
	// points either way, the second return gates only the reason.
	pts, ok := scoreSetOverlap(profile.Regions, listing.Region, weightRegion)
	total += pts
	if ok {
		contribs = append(contribs, matchContribution{pts, fmt.Sprintf("region %s matches your preferences", listing.Region)})
	}
	pts, ok = scoreSetOverlap(profile.Industries, listing.Category, weightIndustry)
	total += pts
	if ok {
		contribs = append(contribs, matchContribution{pts, fmt.Sprintf("industry %s matches your preferences", listing.Category)})
	}
	pts, reason, ok := scoreBand(listing.RevenueRange, profile.RevenueMin, profile.RevenueMax, weightRevenue, "revenue")
	total += pts
	if ok {
		contribs = append(contribs, matchContribution{pts, reason})
	}
	pts, reason, ok = scoreBand(listing.AskingPrice, profile.PriceMin, profile.PriceMax, weightPrice, "asking price")
	total += pts
	if ok {
		contribs = append(contribs, matchContribution{pts, reason})
	}
	pts, ok = scoreProfitability(listing, profile.Profitability)
	total += pts
	if ok {
		contribs = append(contribs, matchContribution{pts, "profitability profile is within your tolerance"})
	}

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	// Reasons list only nonzero contributions, largest first. The sort
	// is stable so equal contributions keep criterion order.
	sort.SliceStable(contribs, func(i, j int) bool {
		return contribs[i].points > contribs[j].points
	})
	reasons := make([]string, 0, len(contribs))
	for _, c := range contribs {
		if c.points > 0 {
			reasons = append(reasons, c.reason)
		}
	}

	return MatchResult{Score: total, Reasons: reasons}
}

// scoreSetOverlap returns the full weight when the listing value is in
// the preference set. An empty set is an unset constraint: it earns the
// weight silently (second return false suppresses the reason).
func scoreSetOverlap(prefs []string, value string, weight int) (int, bool) {
	if len(prefs) == 0 {
		return weight, false
	}
	for _, p := range prefs {
		if p == value {
			return weight, true
		}
	}
	return 0, false
}

// scoreBand compares a listing's bucketed range against the profile's
// min/max preference. Overlap earns the full weight; a gap of less than
// one band step (half the listing band's width on either side) earns
// half weight as a near-miss.
func scoreBand(band MoneyRange, prefMin, prefMax float64, weight int, label string) (int, string, bool) {
	if prefMin == 0 && prefMax == 0 {
		return weight, "", false
	}
	if band.Undisclosed() {
		// Nothing to compare against; do not penalize, do not explain.
		return 0, "", false
	}

	bandMax := band.Max
	if bandMax == 0 {
		bandMax = band.Min // open-ended "Min and above" bucket
	}
	pMax := prefMax
	if pMax == 0 {
		pMax = bandMax // open-ended preference
	}

	if band.Min <= pMax && bandMax >= prefMin {
		return weight, fmt.Sprintf("%s range fits your target", label), true
	}

	step := (bandMax - band.Min) * nearMissFactor
	if step > 0 && band.Min <= pMax+step && bandMax >= prefMin-step {
		return weight / 2, fmt.Sprintf("%s range is just outside your target", label), true
	}
	return 0, "", false
}

func scoreProfitability(listing PublicListing, tolerance ProfitabilityTolerance) (int, bool) {
	if tolerance == "" {
		return weightProfitability, false
	}
	// Public attributes expose no exact EBITDA, so compatibility is
	// judged from the risk flags: a turnaround-tolerant buyer accepts
	// anything, others need a listing without profitability risks.
	if tolerance == ToleranceTurnaround {
		return weightProfitability, true
	}
	for _, r := range listing.Risks {
		if r == "unprofitable" || r == "declining_revenue" {
			if tolerance == ToleranceBreakEven && r != "unprofitable" {
				continue
			}
			return 0, false
		}
	}
	return weightProfitability, true
}
