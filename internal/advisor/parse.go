package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"options-trading-bot/internal/types"
)

// extractJSON pulls the JSON document out of model output: code fences are
// stripped, then the outermost object or array is taken. Models wrap JSON in
// prose often enough that this is the normal path, not the exception.
func extractJSON(text string) (string, error) {
	t := strings.TrimSpace(text)

	if idx := strings.Index(t, "```"); idx >= 0 {
		rest := t[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			t = strings.TrimSpace(rest[:end])
		}
	}

	objStart := strings.Index(t, "{")
	arrStart := strings.Index(t, "[")
	start := objStart
	open, close := "{", "}"
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		start = arrStart
		open, close = "[", "]"
	}
	if start < 0 {
		return "", newSchemaError("no JSON document in response", nil)
	}
	end := strings.LastIndex(t, close)
	if end <= start {
		return "", newSchemaError(fmt.Sprintf("unterminated %s document", open), nil)
	}
	return t[start : end+1], nil
}

// parseCandidates decodes and validates a proposal-round response. Invalid
// entries fail the whole payload; a half-valid proposal is not trusted.
func parseCandidates(text string, max int) ([]types.Opportunity, error) {
	doc, err := extractJSON(text)
	if err != nil {
		return nil, err
	}

	var opps []types.Opportunity
	if err := json.Unmarshal([]byte(doc), &opps); err != nil {
		// Some responses wrap the array in an object.
		var wrapper struct {
			Opportunities []types.Opportunity `json:"opportunities"`
		}
		if err2 := json.Unmarshal([]byte(doc), &wrapper); err2 != nil || wrapper.Opportunities == nil {
			return nil, newSchemaError("response is neither an array nor an opportunities object", err)
		}
		opps = wrapper.Opportunities
	}

	if len(opps) == 0 {
		return nil, newSchemaError("empty candidate list", nil)
	}
	if len(opps) > max {
		opps = opps[:max]
	}
	for i := range opps {
		if err := validateOpportunity(&opps[i]); err != nil {
			return nil, err
		}
	}
	return opps, nil
}

// confirmPayload is the final-round response shape.
type confirmPayload struct {
	Assessment    types.MarketAssessment `json:"market_assessment"`
	Cash          types.CashStrategy     `json:"cash_strategy"`
	Opportunities []types.Opportunity    `json:"opportunities"`
}

func parseConfirmation(text string) (*confirmPayload, error) {
	doc, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var p confirmPayload
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, newSchemaError("unparsable confirmation payload", err)
	}
	if p.Cash.Action == "" {
		return nil, newSchemaError("confirmation missing cash_strategy.action", nil)
	}
	if p.Cash.Percentage < 0 || p.Cash.Percentage > 100 {
		return nil, newSchemaError(
			fmt.Sprintf("cash percentage %.1f outside [0, 100]", p.Cash.Percentage), nil)
	}
	for i := range p.Opportunities {
		if err := validateOpportunity(&p.Opportunities[i]); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func parseReview(text string) (*types.PositionReview, error) {
	doc, err := extractJSON(text)
	if err != nil {
		return nil, err
	}
	var r types.PositionReview
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, newSchemaError("unparsable position review", err)
	}
	r.Action = types.AdvisorAction(strings.ToLower(strings.TrimSpace(string(r.Action))))
	if !r.Action.Valid() {
		return nil, newSchemaError(fmt.Sprintf("unknown review action %q", r.Action), nil)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return nil, newSchemaError(
			fmt.Sprintf("review confidence %.2f outside [0, 1]", r.Confidence), nil)
	}
	return &r, nil
}

func validateOpportunity(o *types.Opportunity) error {
	o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))
	o.Strategy = types.StrategyType(strings.ToLower(strings.TrimSpace(string(o.Strategy))))
	if o.Symbol == "" {
		return newSchemaError("opportunity missing symbol", nil)
	}
	if !o.Strategy.Valid() {
		return newSchemaError(fmt.Sprintf("unknown strategy %q for %s", o.Strategy, o.Symbol), nil)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return newSchemaError(
			fmt.Sprintf("confidence %.2f outside [0, 1] for %s", o.Confidence, o.Symbol), nil)
	}
	if o.MaxRisk < 0 {
		return newSchemaError(fmt.Sprintf("negative max risk for %s", o.Symbol), nil)
	}
	return nil
}
