package brain

import (
	"math"

	"github.com/cinar/indicator/v2/trend"

	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// Interval labels for the three analysis horizons
const (
	higherInterval  = "4h"
	currentInterval = "1h"
	lowerInterval   = "15m"
)

// intervalAnchors maps each analysis horizon to the agents whose output is
// treated as anchored to it. The risk-manager is deliberately unanchored: it
// acts as a veto in the decision stage, not as a trend input.
var intervalAnchors = map[string][]string{
	higherInterval:  {"market-structure", "multi-timeframe"},
	currentInterval: {"momentum", "order-flow", "pattern-recognition", "statistical-edge"},
	lowerInterval:   {"volatility-regime", "news-sentiment"},
}

const (
	smaPeriod      = 20
	signalCutoff   = 0.2 // |avg score| above this is a directional signal
	agreementQuota = 6   // agents sharing the dominant sign for a confluence

	minRiskRewardRatio = 2.0
	// The fixed 2/4/6% targets put a 2% stop exactly on the 2:1 boundary;
	// the tolerance absorbs float rounding there.
	ratioTolerance = 1e-9
)

func meetsMinRatio(ratio float64) bool {
	return ratio+ratioTolerance >= minRiskRewardRatio
}

// Reason runs all eight stages over a populated pipeline context. It is a
// pure function of the context, so identical contexts yield identical
// reasoning.
func Reason(pctx *pipeline.Context) *ProfessionalReasoning {
	mtf := analyzeTimeframes(pctx)
	mc := analyzeMarketContext(pctx)
	risks := identifyRisks(pctx, mtf, mc)
	setup := identifySetup(pctx, mtf, mc)
	rr := computeRiskReward(pctx, mtf, mc, setup, risks)
	psych := analyzePsychology(mc)
	plan := buildTradePlan(pctx, mc, setup, rr)
	decision := decide(pctx, mtf, mc, setup, rr, psych, risks)
	execution := planExecution(mc, setup, plan, decision)

	return &ProfessionalReasoning{
		MTFAnalysis:   mtf,
		MarketContext: mc,
		TradeSetup:    setup,
		RiskReward:    rr,
		Psychology:    psych,
		TradePlan:     plan,
		Decision:      decision,
		Execution:     execution,
	}
}

// analyzeTimeframes derives trend/signal/strength per horizon from the agents
// anchored to it, then scores cross-timeframe agreement.
func analyzeTimeframes(pctx *pipeline.Context) MultiTimeframeAnalysis {
	higher := timeframeView(pctx, higherInterval)
	current := timeframeView(pctx, currentInterval)
	lower := timeframeView(pctx, lowerInterval)

	alignment := 0.0
	if higher.Signal == current.Signal {
		alignment += 40
	}
	if current.Signal == lower.Signal {
		alignment += 30
	}
	if higher.Signal == lower.Signal {
		alignment += 30
	}

	confidence := 30.0
	switch {
	case alignment > 80:
		confidence = 90
	case alignment > 60:
		confidence = 70
	case alignment > 40:
		confidence = 50
	}

	return MultiTimeframeAnalysis{
		Higher:     higher,
		Current:    current,
		Lower:      lower,
		Alignment:  alignment,
		Confidence: confidence,
	}
}

func timeframeView(pctx *pipeline.Context, interval string) TimeframeView {
	var scoreSum, confSum float64
	var n int
	for _, name := range intervalAnchors[interval] {
		if r, ok := pctx.Result(name); ok {
			scoreSum += r.Score
			confSum += r.Confidence
			n++
		}
	}

	view := TimeframeView{Interval: interval, Trend: TrendSideways, Signal: SignalNeutral}
	if n == 0 {
		return view
	}

	avgScore := scoreSum / float64(n)
	view.Strength = confSum / float64(n)

	switch {
	case avgScore > signalCutoff:
		view.Trend = TrendBullish
		view.Signal = SignalBuy
	case avgScore < -signalCutoff:
		view.Trend = TrendBearish
		view.Signal = SignalSell
	}
	return view
}

// analyzeMarketContext derives the numeric snapshot from the current-interval
// candles. Momentum is percentage deviation of the last close from its SMA20;
// volatility is bucketed by the standard deviation of recent returns.
func analyzeMarketContext(pctx *pipeline.Context) MarketContext {
	price := pctx.LastClose()

	mc := MarketContext{
		Price:      price,
		Trend:      TrendSideways,
		Volatility: VolatilityMedium,
		Support:    price * 0.98,
		Resistance: price * 1.02,
	}

	candles := pctx.Candles(currentInterval)
	if len(candles) == 0 {
		candles = pctx.Candles(pctx.Timeframe)
	}
	if len(candles) < 2 {
		return mc
	}

	closes := market.Closes(candles)
	volumes := market.Volumes(candles)

	mc.Volume = volumes[len(volumes)-1]
	mc.AvgVolume = mean(tail(volumes, smaPeriod))

	if sma := lastSMA(closes, smaPeriod); sma > 0 {
		mc.Momentum = clampF((price-sma)/sma*100, -100, 100)
	}

	switch {
	case mc.Momentum > 2:
		mc.Trend = TrendBullish
	case mc.Momentum < -2:
		mc.Trend = TrendBearish
	}

	stdev := returnStdev(tail(closes, smaPeriod+1))
	switch {
	case stdev < 1.0:
		mc.Volatility = VolatilityLow
	case stdev <= 3.0:
		mc.Volatility = VolatilityMedium
	default:
		mc.Volatility = VolatilityHigh
	}

	return mc
}

// identifyRisks lists independent reasons the trade could go wrong. The count
// feeds the win-probability estimate and the checklist.
func identifyRisks(pctx *pipeline.Context, mtf MultiTimeframeAnalysis, mc MarketContext) []string {
	var risks []string

	if mc.Volatility == VolatilityHigh {
		risks = append(risks, "high_volatility")
	}
	if mtf.Higher.Signal != SignalNeutral && mtf.Current.Signal != SignalNeutral && mtf.Higher.Signal != mtf.Current.Signal {
		risks = append(risks, "counter_trend")
	}
	if mc.AvgVolume > 0 && mc.Volume < mc.AvgVolume*0.5 {
		risks = append(risks, "thin_volume")
	}
	if rm, ok := pctx.Result("risk-manager"); ok && rm.Score < -0.3 {
		risks = append(risks, "risk_manager_warning")
	}
	if mc.Price == 0 {
		risks = append(risks, "missing_market_data")
	}

	return risks
}

// identifySetup builds the confluence list and, when at least three factors
// align with sufficient quality, names the setup.
func identifySetup(pctx *pipeline.Context, mtf MultiTimeframeAnalysis, mc MarketContext) *TradeSetup {
	var confluences []string

	if mtf.Alignment > 60 && mtf.Current.Signal != SignalNeutral {
		confluences = append(confluences, "timeframe_alignment")
	}
	if agreementCount(pctx) >= agreementQuota {
		confluences = append(confluences, "multi_agent_agreement")
	}
	if math.Abs(mc.Momentum) > 5 {
		confluences = append(confluences, "strong_momentum")
	}
	if mc.AvgVolume > 0 && mc.Volume > mc.AvgVolume*1.5 {
		confluences = append(confluences, "volume_surge")
	}
	if mc.Price > 0 && (math.Abs(mc.Price-mc.Support)/mc.Price < 0.01 || math.Abs(mc.Price-mc.Resistance)/mc.Price < 0.01) {
		confluences = append(confluences, "key_level_proximity")
	}

	if len(confluences) < 3 {
		return nil
	}

	direction := mtf.Current.Signal
	if direction == SignalNeutral {
		if mc.Momentum > 0 {
			direction = SignalBuy
		} else {
			direction = SignalSell
		}
	}

	setupType := SetupBreakout
	switch {
	case mtf.Higher.Signal != mtf.Current.Signal:
		setupType = SetupReversal
	case math.Abs(mc.Momentum) > 60:
		setupType = SetupMomentum
	case mtf.Alignment > 80:
		setupType = SetupContinuation
	case mc.Trend == TrendSideways && mc.Volatility == VolatilityLow:
		setupType = SetupMeanReversion
	}

	quality := 50 + 8*float64(len(confluences)) + (mtf.Alignment-50)/2
	if mc.Volatility == VolatilityLow {
		quality += 5
	}
	if mc.Volatility == VolatilityHigh && contains(confluences, "volume_surge") {
		quality += 10
	}
	quality = clampF(quality, 0, 100)

	if quality < 70 {
		return nil
	}

	invalidation := mc.Support
	if direction == SignalSell {
		invalidation = mc.Resistance
	}

	timing := TimingLate
	switch {
	case mtf.Alignment > 80 && mc.Volatility != VolatilityHigh:
		timing = TimingOptimal
	case mtf.Alignment > 60:
		timing = TimingEarly
	}

	return &TradeSetup{
		Type:         setupType,
		Direction:    direction,
		Quality:      quality,
		Confluences:  confluences,
		Invalidation: invalidation,
		Timing:       timing,
	}
}

// computeRiskReward prices the setup: fixed-offset targets, quality-scaled
// risk, and the worth-taking gate (R:R >= 2 and positive expected value).
func computeRiskReward(pctx *pipeline.Context, mtf MultiTimeframeAnalysis, mc MarketContext, setup *TradeSetup, risks []string) *RiskReward {
	if setup == nil || mc.Price <= 0 {
		return nil
	}

	entry := mc.Price
	stop := setup.Invalidation
	if stop == entry {
		return nil
	}

	dir := 1.0
	if setup.Direction == SignalSell {
		dir = -1
	}

	targets := []Target{
		{Price: entry * (1 + dir*0.02), ExitPercent: 33, Probability: 75},
		{Price: entry * (1 + dir*0.04), ExitPercent: 33, Probability: 50},
		{Price: entry * (1 + dir*0.06), ExitPercent: 34, Probability: 25},
	}

	riskPct := 1.5
	if setup.Quality > 85 {
		riskPct = 2.0
	}
	riskAmount := pctx.Account.Balance * riskPct / 100

	avgTarget := (targets[0].Price + targets[1].Price + targets[2].Price) / 3
	reward := math.Abs(avgTarget-entry) * (riskAmount / math.Abs(stop-entry))
	ratio := 0.0
	if riskAmount > 0 {
		ratio = reward / riskAmount
	}

	winProb := 50 + (setup.Quality-50)/2 - 5*float64(len(risks))
	if mc.Trend != TrendSideways {
		winProb += 10
	}
	winProb = clampF(winProb, 30, 85)

	p := winProb / 100
	ev := p*reward - (1-p)*riskAmount

	return &RiskReward{
		Entry:          entry,
		Stop:           stop,
		Targets:        targets,
		RiskPercent:    riskPct,
		RiskAmount:     riskAmount,
		Reward:         reward,
		Ratio:          ratio,
		WinProbability: winProb,
		ExpectedValue:  ev,
		WorthTaking:    meetsMinRatio(ratio) && ev > 0,
	}
}

// analyzePsychology maps momentum onto a fear-greed index and classifies the
// regime with a coarse Wyckoff heuristic.
func analyzePsychology(mc MarketContext) Psychology {
	fearGreed := clampF(50+mc.Momentum, 0, 100)

	sentiment := "extreme-greed"
	switch {
	case fearGreed < 20:
		sentiment = "extreme-fear"
	case fearGreed < 40:
		sentiment = "fear"
	case fearGreed < 60:
		sentiment = "neutral"
	case fearGreed < 80:
		sentiment = "greed"
	}

	contrarian := ""
	if math.Abs(fearGreed-50) > 30 {
		if fearGreed < 50 {
			contrarian = SignalBuy
		} else {
			contrarian = SignalSell
		}
	}

	regime := "distribution"
	switch {
	case mc.Trend == TrendBullish:
		regime = "markup"
	case mc.Trend == TrendBearish:
		regime = "markdown"
	case mc.Volume < mc.AvgVolume:
		regime = "accumulation"
	}

	return Psychology{
		FearGreedIndex: fearGreed,
		Sentiment:      sentiment,
		Contrarian:     contrarian,
		MarketRegime:   regime,
	}
}

// buildTradePlan produces the complete plan, only for worth-taking setups
func buildTradePlan(pctx *pipeline.Context, mc MarketContext, setup *TradeSetup, rr *RiskReward) *TradePlan {
	if setup == nil || rr == nil || !rr.WorthTaking {
		return nil
	}

	dir := 1.0
	if setup.Direction == SignalSell {
		dir = -1
	}

	entry := EntryStrategy{Method: "limit", Prices: []float64{rr.Entry}, Sizing: []float64{100}}
	if setup.Timing != TimingOptimal {
		entry = EntryStrategy{
			Method: "scaled",
			Prices: []float64{rr.Entry, rr.Entry * (1 - dir*0.005), rr.Entry * (1 - dir*0.01)},
			Sizing: []float64{40, 30, 30},
		}
	}

	stopDistance := math.Abs(rr.Entry-rr.Stop) / rr.Entry
	usdValue := 0.0
	if stopDistance > 0 {
		usdValue = rr.RiskAmount / stopDistance
	}
	percentOfAccount := 0.0
	if pctx.Account.Balance > 0 {
		percentOfAccount = usdValue / pctx.Account.Balance * 100
	}

	leverage := 1
	switch {
	case setup.Quality >= 90:
		leverage = 3
	case setup.Quality > 80:
		leverage = 2
	}
	if pctx.Account.MaxLeverage > 0 && leverage > pctx.Account.MaxLeverage {
		leverage = pctx.Account.MaxLeverage
	}

	durations := map[string]string{
		"15m": "hours",
		"1h":  "1-2 days",
		"4h":  "days",
		"1d":  "weeks",
	}
	duration, ok := durations[pctx.Timeframe]
	if !ok {
		duration = "1-2 days"
	}

	bull := rr.WinProbability * 0.8
	bear := (100 - rr.WinProbability) * 0.8
	base := 100 - bull - bear

	return &TradePlan{
		Entry: entry,
		Exit: ExitStrategy{
			Stop:         rr.Stop,
			Targets:      rr.Targets,
			TrailingStop: setup.Type == SetupMomentum || setup.Type == SetupBreakout,
		},
		Sizing: PositionSizing{
			USDValue:         usdValue,
			PercentOfAccount: percentOfAccount,
			Leverage:         leverage,
			RiskPercent:      rr.RiskPercent,
		},
		ExpectedDuration: duration,
		Scenarios: []Scenario{
			{Name: "bull", Probability: bull, Outcome: "targets reached in sequence"},
			{Name: "base", Probability: base, Outcome: "partial fill, first target only"},
			{Name: "bear", Probability: bear, Outcome: "stopped out at invalidation"},
		},
	}
}

// decide runs the eight-item weighted checklist and applies the risk-manager
// veto. Entry requires at least two passed items of weight >= 90 and a
// weighted confidence of at least 75.
func decide(pctx *pipeline.Context, mtf MultiTimeframeAnalysis, mc MarketContext, setup *TradeSetup, rr *RiskReward, psych Psychology, risks []string) Decision {
	smartMoneyConf := 0.0
	if of, ok := pctx.Result("order-flow"); ok {
		smartMoneyConf = of.Confidence
	}

	checklist := []ChecklistItem{
		{Name: "multi_timeframe_alignment", Weight: 90, Passed: mtf.Alignment > 60},
		{Name: "high_quality_setup", Weight: 100, Passed: setup != nil && setup.Quality > 70},
		{Name: "risk_reward_ratio", Weight: 95, Passed: rr != nil && meetsMinRatio(rr.Ratio)},
		{Name: "positive_expected_value", Weight: 85, Passed: rr != nil && rr.ExpectedValue > 0},
		{Name: "timing_not_late", Weight: 70, Passed: setup != nil && setup.Timing != TimingLate},
		{Name: "psychology_favorable", Weight: 60, Passed: psych.Sentiment != "extreme-fear" && psych.Sentiment != "extreme-greed"},
		{Name: "few_risks", Weight: 75, Passed: len(risks) < 3},
		{Name: "smart_money_aligned", Weight: 65, Passed: smartMoneyConf > 60},
	}

	var totalWeight, passedWeight float64
	heavyPassed := 0
	for _, item := range checklist {
		totalWeight += item.Weight
		if item.Passed {
			passedWeight += item.Weight
			if item.Weight >= 90 {
				heavyPassed++
			}
		}
	}
	confidence := math.Round(passedWeight / totalWeight * 100)

	decision := Decision{
		Checklist:  checklist,
		Confidence: confidence,
		Action:     ActionWait,
		Risks:      risks,
	}

	if heavyPassed < 2 || confidence < 75 {
		decision.Reasons = append(decision.Reasons, "checklist gate not met")
		return decision
	}

	// Veto: the risk-manager blocks entry when it is both strongly negative
	// and markedly more pessimistic than the rest of the chain. A merely
	// bearish chain is a short signal, not a veto.
	if rm, ok := pctx.Result("risk-manager"); ok && rm.Score <= -0.5 && rm.Score <= predecessorAvg(pctx)-0.5 {
		decision.Reasons = append(decision.Reasons, "risk-manager veto")
		return decision
	}

	switch mtf.Current.Signal {
	case SignalBuy:
		decision.Action = ActionEnterLong
		decision.Direction = SignalBuy
	case SignalSell:
		decision.Action = ActionEnterShort
		decision.Direction = SignalSell
	default:
		decision.Reasons = append(decision.Reasons, "no directional signal on current timeframe")
	}

	return decision
}

// planExecution picks priority, method, and urgency for the order
func planExecution(mc MarketContext, setup *TradeSetup, plan *TradePlan, decision Decision) Execution {
	if decision.Action == ActionWait {
		return Execution{Priority: "patient", Method: "limit", Urgency: 0}
	}

	urgency := 60.0
	if setup != nil {
		switch setup.Timing {
		case TimingOptimal:
			urgency = 80
		case TimingEarly:
			urgency = 40
		}
	}

	priority := "conditional"
	switch {
	case urgency >= 80:
		priority = "immediate"
	case urgency <= 40:
		priority = "patient"
	}

	method := "limit"
	if mc.Volatility == VolatilityHigh {
		method = "twap"
	} else if plan != nil && plan.Entry.Method == "scaled" {
		method = "iceberg"
	}

	return Execution{Priority: priority, Method: method, Urgency: urgency}
}

func predecessorAvg(pctx *pipeline.Context) float64 {
	var sum float64
	var n int
	for _, name := range pipeline.AgentOrder {
		if name == "risk-manager" {
			continue
		}
		if r, ok := pctx.Result(name); ok {
			sum += r.Score
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func agreementCount(pctx *pipeline.Context) int {
	var pos, neg int
	for _, name := range pipeline.AgentOrder {
		r, ok := pctx.Result(name)
		if !ok {
			continue
		}
		if r.Score >= signalCutoff {
			pos++
		} else if r.Score <= -signalCutoff {
			neg++
		}
	}
	if pos > neg {
		return pos
	}
	return neg
}

func lastSMA(values []float64, period int) float64 {
	if len(values) < period {
		return 0
	}

	in := make(chan float64, len(values))
	for _, v := range values {
		in <- v
	}
	close(in)

	sma := trend.NewSmaWithPeriod[float64](period)
	var last float64
	for v := range sma.Compute(in) {
		last = v
	}
	return last
}

func returnStdev(closes []float64) float64 {
	if len(closes) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1]*100)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	m := mean(returns)
	var sum float64
	for _, r := range returns {
		sum += (r - m) * (r - m)
	}
	return math.Sqrt(sum / float64(len(returns)-1))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func tail(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clampF(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Min(math.Max(v, lo), hi)
}
