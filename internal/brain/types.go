// Package brain implements the professional decision engine: it fuses the
// populated pipeline context into a structured reasoning artifact and, when a
// trade is warranted, a persisted trade signal handed to the execution queue.
package brain

// Trend labels
const (
	TrendBullish  = "bullish"
	TrendBearish  = "bearish"
	TrendSideways = "sideways"
)

// Signal labels
const (
	SignalBuy     = "buy"
	SignalSell    = "sell"
	SignalNeutral = "neutral"
)

// Volatility buckets
const (
	VolatilityLow    = "low"
	VolatilityMedium = "medium"
	VolatilityHigh   = "high"
)

// Setup types
const (
	SetupReversal      = "reversal"
	SetupMomentum      = "momentum"
	SetupContinuation  = "continuation"
	SetupMeanReversion = "mean-reversion"
	SetupBreakout      = "breakout"
)

// Entry timing labels
const (
	TimingOptimal = "optimal"
	TimingEarly   = "early"
	TimingLate    = "late"
)

// Final actions
const (
	ActionEnterLong  = "enter-long"
	ActionEnterShort = "enter-short"
	ActionWait       = "wait"
)

// TimeframeView is the derived state of one analysis interval
type TimeframeView struct {
	Interval string  `json:"interval"`
	Trend    string  `json:"trend"`
	Signal   string  `json:"signal"`
	Strength float64 `json:"strength"` // [0,100], avg confidence of anchored agents
}

// MultiTimeframeAnalysis is stage 1: agreement across higher/current/lower
type MultiTimeframeAnalysis struct {
	Higher     TimeframeView `json:"higher"`
	Current    TimeframeView `json:"current"`
	Lower      TimeframeView `json:"lower"`
	Alignment  float64       `json:"alignment"`  // [0,100]
	Confidence float64       `json:"confidence"` // bucketed from alignment
}

// MarketContext is stage 2: the numeric market snapshot
type MarketContext struct {
	Price      float64 `json:"price"`
	Volume     float64 `json:"volume"`
	AvgVolume  float64 `json:"avg_volume"`
	Trend      string  `json:"trend"`
	Volatility string  `json:"volatility"`
	Momentum   float64 `json:"momentum"` // [-100,100], % deviation from SMA20
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// TradeSetup is stage 3: a named pattern with quality and confluence factors
type TradeSetup struct {
	Type         string   `json:"type"`
	Direction    string   `json:"direction"` // buy or sell
	Quality      float64  `json:"quality"`   // [0,100]
	Confluences  []string `json:"confluences"`
	Invalidation float64  `json:"invalidation"` // stop-loss price
	Timing       string   `json:"timing"`
}

// Target is one take-profit level
type Target struct {
	Price       float64 `json:"price"`
	ExitPercent float64 `json:"exit_percent"`
	Probability float64 `json:"probability"`
}

// RiskReward is stage 4: the trade economics
type RiskReward struct {
	Entry          float64  `json:"entry"`
	Stop           float64  `json:"stop"`
	Targets        []Target `json:"targets"`
	RiskPercent    float64  `json:"risk_percent"`
	RiskAmount     float64  `json:"risk_amount"`
	Reward         float64  `json:"reward"`
	Ratio          float64  `json:"ratio"`
	WinProbability float64  `json:"win_probability"` // [30,85]
	ExpectedValue  float64  `json:"expected_value"`
	WorthTaking    bool     `json:"worth_taking"`
}

// Psychology is stage 5: sentiment and regime
type Psychology struct {
	FearGreedIndex float64 `json:"fear_greed_index"` // [0,100]
	Sentiment      string  `json:"sentiment"`
	Contrarian     string  `json:"contrarian,omitempty"` // buy/sell when sentiment is extreme
	MarketRegime   string  `json:"market_regime"`        // accumulation/markup/distribution/markdown
}

// EntryStrategy describes how the position is opened
type EntryStrategy struct {
	Method string    `json:"method"` // limit or scaled
	Prices []float64 `json:"prices"`
	Sizing []float64 `json:"sizing"` // percent per price level
}

// ExitStrategy describes stop and targets
type ExitStrategy struct {
	Stop         float64  `json:"stop"`
	Targets      []Target `json:"targets"`
	TrailingStop bool     `json:"trailing_stop"`
}

// PositionSizing describes the notional commitment
type PositionSizing struct {
	USDValue         float64 `json:"usd_value"`
	PercentOfAccount float64 `json:"percent_of_account"`
	Leverage         int     `json:"leverage"`
	RiskPercent      float64 `json:"risk_percent"`
}

// Scenario is one projected outcome
type Scenario struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	Outcome     string  `json:"outcome"`
}

// TradePlan is stage 6: the complete plan for a worth-taking setup
type TradePlan struct {
	Entry            EntryStrategy  `json:"entry"`
	Exit             ExitStrategy   `json:"exit"`
	Sizing           PositionSizing `json:"sizing"`
	ExpectedDuration string         `json:"expected_duration"`
	Scenarios        []Scenario     `json:"scenarios"`
}

// ChecklistItem is one gate of the final decision
type ChecklistItem struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Passed bool    `json:"passed"`
}

// Decision is stage 7: the checklist verdict
type Decision struct {
	Checklist  []ChecklistItem `json:"checklist"`
	Confidence float64         `json:"confidence"` // weighted pass percentage
	Action     string          `json:"action"`
	Direction  string          `json:"direction,omitempty"` // buy or sell when entering
	Risks      []string        `json:"risks"`
	Reasons    []string        `json:"reasons,omitempty"`
}

// Execution is stage 8: how urgently to work the order
type Execution struct {
	Priority string  `json:"priority"` // immediate/patient/conditional
	Method   string  `json:"method"`   // limit/twap/iceberg
	Urgency  float64 `json:"urgency"`  // [0,100]
}

// ProfessionalReasoning is the full artifact of one engine invocation. It is
// serialized into brain_decisions and, for trades, into the signal's
// ai_reasoning blob.
type ProfessionalReasoning struct {
	MTFAnalysis   MultiTimeframeAnalysis `json:"mtf_analysis"`
	MarketContext MarketContext          `json:"market_context"`
	TradeSetup    *TradeSetup            `json:"trade_setup,omitempty"`
	RiskReward    *RiskReward            `json:"risk_reward,omitempty"`
	Psychology    Psychology             `json:"psychology"`
	TradePlan     *TradePlan             `json:"trade_plan,omitempty"`
	Decision      Decision               `json:"decision"`
	Execution     Execution              `json:"execution"`
}
