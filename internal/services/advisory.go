package services

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/utils"
)

var titleCaser = cases.Title(language.English)

// StrategyTitle returns the display name of a strategy, e.g.
// "Strategy A - Delta Neutral Short".
func StrategyTitle(kind models.StrategyKind) string {
	return titleCaser.String(kind.Label())
}

const advisoryTemplate = `Perp Prophet advisory ({{ .Report.GeneratedAt.Format "2006-01-02 15:04 UTC" }})

{{ title "strategy_a" }} ({{ .Params.BaseAsset }} short):
• Expected APY: {{ pct .A.APYPct }}%
• Funding Rate (Annual): {{ pct4 .FundingAnnualPct }}%
• Borrow Rate ({{ .Params.QuoteAsset }}): {{ pct .BorrowQuote }}%
• Collateral Rate ({{ .Params.BaseAsset }}): {{ pct .LendBase }}%

{{ title "strategy_b" }} ({{ .Params.BaseAsset }} long):
• Expected APY: {{ pct .B.APYPct }}%
• Funding Rate (Annual): {{ pct4 .FundingAnnualPct }}%
• Borrow Rate ({{ .Params.BaseAsset }}): {{ pct .BorrowBase }}%
• Collateral Rate ({{ .Params.QuoteAsset }}): {{ pct .LendQuote }}%

{{ title "simple_lending" }} ({{ .Params.QuoteAsset }}):
• Lending APY: {{ pct .Comparison.LendingAPYPct }}%

Recommendation: {{ title .Recommendation.Strategy }} with {{ pct .Recommendation.APYPct }}% APY
{{- if .Recommendation.Margin.IsPositive }} (required margin over lending: {{ pct .Recommendation.Margin }} points){{ end }}.
{{- with .Unavailable }}

Unavailable sources: {{ join . ", " }}.
{{- end }}
{{- with .Missing }}

Unavailable inputs, treated as zero: {{ join . ", " }}.
{{- end }}
{{- with .Analysis }}

Funding history ({{ .Samples }} samples):
{{- range .Windows }}
• {{ .Window }}: min {{ pct4 (annual .Min) }}%, max {{ pct4 (annual .Max) }}%, mean {{ pct4 (annual .Mean) }}% annualised ({{ .Samples }} samples)
{{- end }}
• Trend: {{ .Trend }}, sign flips: {{ .SignFlips }}
• Break-even hourly funding for {{ title "strategy_a" }}: {{ .BreakEvenRate.StringFixed 8 }} (current is {{ .DistanceFromBreakEven.StringFixed 8 }} away)
{{- end }}

Always consider your risk tolerance and portfolio diversification when selecting a strategy.
`

var explanations = map[models.StrategyKind]string{
	models.StrategyA: `{{ title "strategy_a" }}: Borrow -> Short

Borrow {{ .Quote }} against {{ .Base }} collateral on Neptune and short the {{ .Base }}/{{ .Quote }} perpetual on Helix, collecting funding while staying delta neutral.

Net APY = (TPS x FR) - (BF x BR) + collateral interest
• TPS: total position size, BF: borrowed funds
• FR: Helix funding rate (annualised), BR: Neptune {{ .Quote }} borrow rate

Watch the collateral ratio on Neptune for liquidation risk.`,
	models.StrategyB: `{{ title "strategy_b" }}: Lend -> Borrow -> Long

Lend {{ .Quote }} on Neptune, borrow {{ .Base }} against it and go long the {{ .Base }}/{{ .Quote }} perpetual on Helix.

Net APY = (LF x LR) + (TPS x FR) - (BF x BR)
• LF: lent funds, LR: Neptune {{ .Quote }} lending rate
• BF: borrowed funds, BR: Neptune {{ .Base }} borrow rate
• TPS: total position size, FR: Helix funding rate (annualised)

Watch the collateral ratio on Neptune for liquidation risk.`,
	models.SimpleLending: `{{ title "simple_lending" }}

Supply {{ .Quote }} to Neptune and earn the lending rate. No perpetual position, no funding exposure.`,
}

// AdvisoryService renders reports and strategy explanations as plain text.
type AdvisoryService struct {
	report       *template.Template
	explanations map[models.StrategyKind]*template.Template
}

type advisoryView struct {
	Report           *models.OpportunityReport
	Comparison       models.StrategyComparison
	Params           models.StrategyParameters
	A, B             models.StrategyResult
	Recommendation   models.Recommendation
	FundingAnnualPct decimal.Decimal
	BorrowQuote      decimal.Decimal
	BorrowBase       decimal.Decimal
	LendBase         decimal.Decimal
	LendQuote        decimal.Decimal
	Unavailable      []string
	Missing          []string
	Analysis         *models.FundingAnalysis
}

// NewAdvisoryService parses the templates once.
func NewAdvisoryService() *AdvisoryService {
	hundred := decimal.NewFromInt(100)
	funcs := template.FuncMap{
		"pct":  func(v decimal.Decimal) string { return v.StringFixed(2) },
		"pct4": func(v decimal.Decimal) string { return v.StringFixed(4) },
		"annual": func(v decimal.Decimal) decimal.Decimal {
			return v.Mul(decimal.NewFromInt(models.HoursPerYear)).Mul(hundred)
		},
		"title": func(kind interface{}) string { return StrategyTitle(models.StrategyKind(fmt.Sprint(kind))) },
		"join":  strings.Join,
	}

	svc := &AdvisoryService{
		report:       template.Must(template.New("advisory").Funcs(funcs).Parse(advisoryTemplate)),
		explanations: make(map[models.StrategyKind]*template.Template, len(explanations)),
	}
	for kind, text := range explanations {
		svc.explanations[kind] = template.Must(template.New(string(kind)).Funcs(funcs).Parse(text))
	}
	return svc
}

// Render builds the advisory text for report. analysis may be nil.
func (s *AdvisoryService) Render(report *models.OpportunityReport, analysis *models.FundingAnalysis) (string, error) {
	if report == nil {
		return "", utils.NewValidationError("report", "is required")
	}

	comparison := report.Comparison
	params := comparison.Parameters
	snapshot := report.Snapshot

	view := advisoryView{
		Report:           report,
		Comparison:       comparison,
		Params:           params,
		A:                comparison.StrategyA,
		B:                comparison.StrategyB,
		Recommendation:   comparison.Recommendation,
		FundingAnnualPct: comparison.StrategyA.Components.FundingRateAnnual.Mul(decimal.NewFromInt(100)),
		BorrowQuote:      snapshot.BorrowRate(params.QuoteAsset),
		BorrowBase:       snapshot.BorrowRate(params.BaseAsset),
		LendBase:         snapshot.LendRate(params.BaseAsset),
		LendQuote:        snapshot.LendRate(params.QuoteAsset),
		Unavailable:      snapshot.Unavailable,
		Missing:          comparison.MissingInputs(),
		Analysis:         analysis,
	}

	var buf bytes.Buffer
	if err := s.report.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render advisory: %w", err)
	}
	return buf.String(), nil
}

// Explain describes how a strategy works for the given asset pair.
func (s *AdvisoryService) Explain(kind models.StrategyKind, params models.StrategyParameters) (string, error) {
	tmpl, ok := s.explanations[kind]
	if !ok {
		return "", utils.NewValidationErrorf("strategy", "unknown strategy %q", kind)
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, struct{ Base, Quote string }{params.BaseAsset, params.QuoteAsset})
	if err != nil {
		return "", fmt.Errorf("failed to render explanation: %w", err)
	}
	return buf.String(), nil
}
