// Package scoring computes weighted agent fit scores for inbound leads from
// per-agent performance snapshots.
package scoring

import (
	"math"
	"sort"
)

// Component names used in breakdowns and weight configuration.
const (
	ComponentIndustryPerf    = "industryPerf"
	ComponentConversion      = "conversion"
	ComponentAvgDeal         = "avgDeal"
	ComponentHotStreak       = "hotStreak"
	ComponentResponseSpeed   = "responseSpeed"
	ComponentBurnout         = "burnout"
	ComponentAvailabilityCap = "availabilityCap"
)

// neutralScore is used when a metric is unavailable for an agent. Scoring
// never fails on missing data.
const neutralScore = 0.5

// Snapshot is one agent's performance facts for a metrics window. Produced
// by the metrics job; consumed read-only here.
type Snapshot struct {
	AgentID               string             `json:"agentId"`
	ConversionRate        float64            `json:"conversionRate"`
	AvgDealSize           float64            `json:"avgDealSize"`
	IndustryWinRates      map[string]float64 `json:"industryWinRates"`
	HotStreak             bool               `json:"hotStreak"`
	RecentWinCount        int                `json:"recentWinCount"`
	MedianResponseMinutes float64            `json:"medianResponseMinutes"`
	BurnoutScore          float64            `json:"burnoutScore"`
	Available             bool               `json:"available"`
	Availability          float64            `json:"availability"`
}

// Candidate pairs an agent with its snapshot. A nil snapshot degrades every
// component to its neutral default.
type Candidate struct {
	AgentID  string
	Snapshot *Snapshot
}

// Lead carries the lead attributes scoring reads.
type Lead struct {
	Industry string `json:"industry"`
}

// ComponentWeight is one independently-toggleable scoring factor.
// Weight is 0-100; the admin UI keeps the enabled weights summing to ~100.
type ComponentWeight struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	Weight  float64 `yaml:"weight" json:"weight"`
}

// Config holds the scoring weights and reference ceilings.
type Config struct {
	IndustryPerf    ComponentWeight `yaml:"industryPerf" json:"industryPerf"`
	Conversion      ComponentWeight `yaml:"conversion" json:"conversion"`
	AvgDeal         ComponentWeight `yaml:"avgDeal" json:"avgDeal"`
	HotStreak       ComponentWeight `yaml:"hotStreak" json:"hotStreak"`
	ResponseSpeed   ComponentWeight `yaml:"responseSpeed" json:"responseSpeed"`
	Burnout         ComponentWeight `yaml:"burnout" json:"burnout"`
	AvailabilityCap ComponentWeight `yaml:"availabilityCap" json:"availabilityCap"`

	// AvgDealCeiling is the deal size treated as a full score.
	AvgDealCeiling float64 `yaml:"avgDealCeiling" json:"avgDealCeiling"`
	// ResponseCeilingMinutes is the response time treated as a zero score.
	ResponseCeilingMinutes float64 `yaml:"responseCeilingMinutes" json:"responseCeilingMinutes"`
	// MinDealsThreshold scales partial hot streaks.
	MinDealsThreshold int `yaml:"minDealsThreshold" json:"minDealsThreshold"`
}

// DefaultConfig returns the stock weight distribution.
func DefaultConfig() Config {
	return Config{
		IndustryPerf:           ComponentWeight{Enabled: true, Weight: 25},
		Conversion:             ComponentWeight{Enabled: true, Weight: 20},
		AvgDeal:                ComponentWeight{Enabled: true, Weight: 15},
		HotStreak:              ComponentWeight{Enabled: true, Weight: 10},
		ResponseSpeed:          ComponentWeight{Enabled: true, Weight: 15},
		Burnout:                ComponentWeight{Enabled: true, Weight: 5},
		AvailabilityCap:        ComponentWeight{Enabled: true, Weight: 10},
		AvgDealCeiling:         50000,
		ResponseCeilingMinutes: 240,
		MinDealsThreshold:      5,
	}
}

// ComponentScore is one factor's contribution to an agent's total.
type ComponentScore struct {
	Name    string  `json:"name"`
	Enabled bool    `json:"enabled"`
	Raw     float64 `json:"raw"`    // normalized metric in [0,1]
	Weight  float64 `json:"weight"` // configured weight, 0-100
	Points  float64 `json:"points"` // (weight/100) * raw * 10
}

// AgentScore is one agent's total fit score with its full breakdown.
type AgentScore struct {
	AgentID   string           `json:"agentId"`
	Total     float64          `json:"total"`
	Breakdown []ComponentScore `json:"breakdown"`
}

// Score ranks candidate agents for the lead. Disabled components contribute
// zero points; missing metrics fall back to neutral defaults. The result is
// sorted descending by total with stable order on ties.
func Score(lead Lead, candidates []Candidate, cfg Config) []AgentScore {
	ranked := make([]AgentScore, 0, len(candidates))
	for _, cand := range candidates {
		ranked = append(ranked, scoreOne(lead, cand, cfg))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total > ranked[j].Total
	})
	return ranked
}

func scoreOne(lead Lead, cand Candidate, cfg Config) AgentScore {
	snap := cand.Snapshot

	components := []struct {
		name   string
		weight ComponentWeight
		raw    float64
	}{
		{ComponentIndustryPerf, cfg.IndustryPerf, industryPerf(lead, snap)},
		{ComponentConversion, cfg.Conversion, conversion(snap)},
		{ComponentAvgDeal, cfg.AvgDeal, avgDeal(snap, cfg)},
		{ComponentHotStreak, cfg.HotStreak, hotStreak(snap, cfg)},
		{ComponentResponseSpeed, cfg.ResponseSpeed, responseSpeed(snap, cfg)},
		{ComponentBurnout, cfg.Burnout, burnout(snap)},
		{ComponentAvailabilityCap, cfg.AvailabilityCap, availabilityCap(snap)},
	}

	score := AgentScore{AgentID: cand.AgentID, Breakdown: make([]ComponentScore, 0, len(components))}
	total := 0.0
	for _, comp := range components {
		points := 0.0
		if comp.weight.Enabled {
			points = (comp.weight.Weight / 100) * (comp.raw * 10)
		}
		total += points
		score.Breakdown = append(score.Breakdown, ComponentScore{
			Name:    comp.name,
			Enabled: comp.weight.Enabled,
			Raw:     comp.raw,
			Weight:  comp.weight.Weight,
			Points:  round2(points),
		})
	}
	score.Total = round2(total)
	return score
}

func industryPerf(lead Lead, snap *Snapshot) float64 {
	if snap == nil || lead.Industry == "" {
		return neutralScore
	}
	rate, ok := snap.IndustryWinRates[lead.Industry]
	if !ok {
		return neutralScore
	}
	return clamp01(rate)
}

func conversion(snap *Snapshot) float64 {
	if snap == nil {
		return neutralScore
	}
	return clamp01(snap.ConversionRate)
}

func avgDeal(snap *Snapshot, cfg Config) float64 {
	if snap == nil {
		return neutralScore
	}
	if cfg.AvgDealCeiling <= 0 {
		return neutralScore
	}
	return clamp01(snap.AvgDealSize / cfg.AvgDealCeiling)
}

func hotStreak(snap *Snapshot, cfg Config) float64 {
	if snap == nil {
		return neutralScore
	}
	if snap.HotStreak {
		return 1.0
	}
	if cfg.MinDealsThreshold <= 0 {
		return 0
	}
	return clamp01(float64(snap.RecentWinCount) / float64(cfg.MinDealsThreshold))
}

func responseSpeed(snap *Snapshot, cfg Config) float64 {
	if snap == nil {
		return neutralScore
	}
	if cfg.ResponseCeilingMinutes <= 0 {
		return neutralScore
	}
	return clamp01(1 - snap.MedianResponseMinutes/cfg.ResponseCeilingMinutes)
}

// burnout rewards the least burned-out agents: a high burnout score lowers
// the component. The metrics job emits burnout as higher-is-worse.
func burnout(snap *Snapshot) float64 {
	if snap == nil {
		return neutralScore
	}
	return clamp01(1 - snap.BurnoutScore)
}

// availabilityCap reads the snapshot's availability fraction as a soft
// capacity signal. It is not enforced as a hard limit during apply.
func availabilityCap(snap *Snapshot) float64 {
	if snap == nil {
		return neutralScore
	}
	if !snap.Available {
		return 0
	}
	return clamp01(snap.Availability)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
