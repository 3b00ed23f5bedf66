package domain

import (
	"math"
	"strconv"
	"strings"
)

// Tuning is the flat set of runtime-tunable ranking parameters. Every field
// has a declared valid range; Resolve clamps overrides into it.
type Tuning struct {
	TopKHybrid int `json:"topk_hybrid" yaml:"topk_hybrid"`
	TopKRerank int `json:"topk_rerank" yaml:"topk_rerank"`
	HybridRRFK int `json:"hybrid_rrf_k" yaml:"hybrid_rrf_k"`

	SemanticWeight           float64 `json:"semantic_weight" yaml:"semantic_weight"`
	LexicalWeight            float64 `json:"lexical_weight" yaml:"lexical_weight"`
	RecencyWeight            float64 `json:"recency_weight" yaml:"recency_weight"`
	RRFWeight                float64 `json:"rrf_weight" yaml:"rrf_weight"`
	ThesisBonusWeight        float64 `json:"thesis_bonus_weight" yaml:"thesis_bonus_weight"`
	ProceduralPenaltyWeight  float64 `json:"procedural_penalty_weight" yaml:"procedural_penalty_weight"`
	AuthorityBonusWeight     float64 `json:"authority_bonus_weight" yaml:"authority_bonus_weight"`
	AuthorityIntentMult      float64 `json:"authority_intent_multiplier" yaml:"authority_intent_multiplier"`
	ProceduralIntentMult     float64 `json:"procedural_intent_penalty_multiplier" yaml:"procedural_intent_penalty_multiplier"`
	UserSourcePriorityBoost  float64 `json:"user_source_priority_boost" yaml:"user_source_priority_boost"`
	RecencyHalfLifeYears     float64 `json:"recency_half_life_years" yaml:"recency_half_life_years"`
	RecencyIntentMult        float64 `json:"recency_intent_multiplier" yaml:"recency_intent_multiplier"`
	RecencyDominantMult      float64 `json:"recency_dominant_multiplier" yaml:"recency_dominant_multiplier"`
	RecencyMinSemanticGate   float64 `json:"recency_min_semantic_gate" yaml:"recency_min_semantic_gate"`
	RecencyMaxContribution   float64 `json:"recency_max_contribution" yaml:"recency_max_contribution"`
	RecencyUnknownScore      float64 `json:"recency_unknown_score" yaml:"recency_unknown_score"`
	AuthorityLevelABoost     float64 `json:"authority_level_a_boost" yaml:"authority_level_a_boost"`
	AuthorityLevelBBoost     float64 `json:"authority_level_b_boost" yaml:"authority_level_b_boost"`
	AuthorityLevelCBoost     float64 `json:"authority_level_c_boost" yaml:"authority_level_c_boost"`
	AuthorityLevelDBoost     float64 `json:"authority_level_d_boost" yaml:"authority_level_d_boost"`
	AuthorityLevelEBoost     float64 `json:"authority_level_e_boost" yaml:"authority_level_e_boost"`
	CollegialBindingBonus    float64 `json:"collegial_binding_bonus" yaml:"collegial_binding_bonus"`
	MonocraticBindingPenalty float64 `json:"monocratic_binding_penalty" yaml:"monocratic_binding_penalty"`

	ContextMaxPassagesPerDoc int `json:"context_max_passages_per_doc" yaml:"context_max_passages_per_doc"`
	ContextMaxPassageChars   int `json:"context_max_passage_chars" yaml:"context_max_passage_chars"`
	ContextMaxDocChars       int `json:"context_max_doc_chars" yaml:"context_max_doc_chars"`

	ParagraphCitationMinChars int  `json:"paragraph_citation_min_chars" yaml:"paragraph_citation_min_chars"`
	RerankDedupProcess        bool `json:"rerank_dedup_process" yaml:"rerank_dedup_process"`

	GenerationModel         string  `json:"generation_model" yaml:"generation_model"`
	GenerationFallbackModel string  `json:"generation_fallback_model" yaml:"generation_fallback_model"`
	RerankModel             string  `json:"rerank_model" yaml:"rerank_model"`
	GenerationTemperature   float64 `json:"generation_temperature" yaml:"generation_temperature"`
	GenerationMaxTokens     int     `json:"generation_max_output_tokens" yaml:"generation_max_output_tokens"`
}

// DefaultTuning returns the engine defaults.
func DefaultTuning() Tuning {
	return Tuning{
		TopKHybrid: 80,
		TopKRerank: 11,
		HybridRRFK: 60,

		SemanticWeight:           0.45,
		LexicalWeight:            0.20,
		RecencyWeight:            0.35,
		RRFWeight:                0.08,
		ThesisBonusWeight:        0.16,
		ProceduralPenaltyWeight:  0.14,
		AuthorityBonusWeight:     0.22,
		AuthorityIntentMult:      1.20,
		ProceduralIntentMult:     0.30,
		UserSourcePriorityBoost:  0.08,
		RecencyHalfLifeYears:     7.0,
		RecencyIntentMult:        1.35,
		RecencyDominantMult:      0.45,
		RecencyMinSemanticGate:   0.60,
		RecencyMaxContribution:   0.14,
		RecencyUnknownScore:      0.05,
		AuthorityLevelABoost:     0.14,
		AuthorityLevelBBoost:     0.08,
		AuthorityLevelCBoost:     0.03,
		AuthorityLevelDBoost:     -0.05,
		AuthorityLevelEBoost:     -0.12,
		CollegialBindingBonus:    0.06,
		MonocraticBindingPenalty: 0.12,

		ContextMaxPassagesPerDoc: 5,
		ContextMaxPassageChars:   1000,
		ContextMaxDocChars:       2500,

		ParagraphCitationMinChars: 120,
		RerankDedupProcess:        true,

		GenerationModel:         "gemini-2.5-flash",
		GenerationFallbackModel: "gemini-2.0-flash",
		RerankModel:             "gemini-2.5-flash",
		GenerationTemperature:   0.1,
		GenerationMaxTokens:     3600,
	}
}

type bounds struct{ low, high float64 }

var tuningBounds = map[string]bounds{
	"topk_hybrid":                          {10, 400},
	"topk_rerank":                          {2, 80},
	"hybrid_rrf_k":                         {10, 400},
	"semantic_weight":                      {0, 2},
	"lexical_weight":                       {0, 2},
	"recency_weight":                       {0, 2},
	"rrf_weight":                           {0, 1},
	"thesis_bonus_weight":                  {0, 1},
	"procedural_penalty_weight":            {0, 1},
	"authority_bonus_weight":               {0, 1.5},
	"authority_intent_multiplier":          {0, 3},
	"procedural_intent_penalty_multiplier": {0, 2},
	"user_source_priority_boost":           {0, 0.8},
	"recency_half_life_years":              {0.5, 30},
	"recency_intent_multiplier":            {0, 3},
	"recency_dominant_multiplier":          {0, 2},
	"recency_min_semantic_gate":            {0, 1},
	"recency_max_contribution":             {0, 1},
	"recency_unknown_score":                {0, 1},
	"authority_level_a_boost":              {-0.5, 0.8},
	"authority_level_b_boost":              {-0.5, 0.8},
	"authority_level_c_boost":              {-0.5, 0.8},
	"authority_level_d_boost":              {-0.5, 0.8},
	"authority_level_e_boost":              {-0.5, 0.8},
	"collegial_binding_bonus":              {-0.5, 0.8},
	"monocratic_binding_penalty":           {-0.5, 0.8},
	"context_max_passages_per_doc":         {1, 8},
	"context_max_passage_chars":            {200, 2500},
	"context_max_doc_chars":                {600, 6000},
	"paragraph_citation_min_chars":         {40, 500},
	"generation_temperature":               {0, 1},
	"generation_max_output_tokens":         {300, 12000},
}

// Resolve applies a flat override map on top of t. Unknown keys are ignored,
// numeric values are clamped into their declared range, and the dependent
// invariant topk_rerank <= topk_hybrid is enforced after resolution.
func (t Tuning) Resolve(overrides map[string]any) Tuning {
	cfg := t
	for key, value := range overrides {
		b, bounded := tuningBounds[key]
		clampF := func(v float64, fallback float64) float64 {
			if !bounded {
				return fallback
			}
			return math.Max(b.low, math.Min(b.high, v))
		}
		clampI := func(fallback int) int {
			f, ok := asFloat(value)
			if !ok {
				return fallback
			}
			return int(math.Round(clampF(f, float64(fallback))))
		}

		switch key {
		case "topk_hybrid":
			cfg.TopKHybrid = clampI(cfg.TopKHybrid)
		case "topk_rerank":
			cfg.TopKRerank = clampI(cfg.TopKRerank)
		case "hybrid_rrf_k":
			cfg.HybridRRFK = clampI(cfg.HybridRRFK)
		case "semantic_weight":
			cfg.SemanticWeight = resolveFloat(value, cfg.SemanticWeight, clampF)
		case "lexical_weight":
			cfg.LexicalWeight = resolveFloat(value, cfg.LexicalWeight, clampF)
		case "recency_weight":
			cfg.RecencyWeight = resolveFloat(value, cfg.RecencyWeight, clampF)
		case "rrf_weight":
			cfg.RRFWeight = resolveFloat(value, cfg.RRFWeight, clampF)
		case "thesis_bonus_weight":
			cfg.ThesisBonusWeight = resolveFloat(value, cfg.ThesisBonusWeight, clampF)
		case "procedural_penalty_weight":
			cfg.ProceduralPenaltyWeight = resolveFloat(value, cfg.ProceduralPenaltyWeight, clampF)
		case "authority_bonus_weight":
			cfg.AuthorityBonusWeight = resolveFloat(value, cfg.AuthorityBonusWeight, clampF)
		case "authority_intent_multiplier":
			cfg.AuthorityIntentMult = resolveFloat(value, cfg.AuthorityIntentMult, clampF)
		case "procedural_intent_penalty_multiplier":
			cfg.ProceduralIntentMult = resolveFloat(value, cfg.ProceduralIntentMult, clampF)
		case "user_source_priority_boost":
			cfg.UserSourcePriorityBoost = resolveFloat(value, cfg.UserSourcePriorityBoost, clampF)
		case "recency_half_life_years":
			cfg.RecencyHalfLifeYears = resolveFloat(value, cfg.RecencyHalfLifeYears, clampF)
		case "recency_intent_multiplier":
			cfg.RecencyIntentMult = resolveFloat(value, cfg.RecencyIntentMult, clampF)
		case "recency_dominant_multiplier":
			cfg.RecencyDominantMult = resolveFloat(value, cfg.RecencyDominantMult, clampF)
		case "recency_min_semantic_gate":
			cfg.RecencyMinSemanticGate = resolveFloat(value, cfg.RecencyMinSemanticGate, clampF)
		case "recency_max_contribution":
			cfg.RecencyMaxContribution = resolveFloat(value, cfg.RecencyMaxContribution, clampF)
		case "recency_unknown_score":
			cfg.RecencyUnknownScore = resolveFloat(value, cfg.RecencyUnknownScore, clampF)
		case "authority_level_a_boost":
			cfg.AuthorityLevelABoost = resolveFloat(value, cfg.AuthorityLevelABoost, clampF)
		case "authority_level_b_boost":
			cfg.AuthorityLevelBBoost = resolveFloat(value, cfg.AuthorityLevelBBoost, clampF)
		case "authority_level_c_boost":
			cfg.AuthorityLevelCBoost = resolveFloat(value, cfg.AuthorityLevelCBoost, clampF)
		case "authority_level_d_boost":
			cfg.AuthorityLevelDBoost = resolveFloat(value, cfg.AuthorityLevelDBoost, clampF)
		case "authority_level_e_boost":
			cfg.AuthorityLevelEBoost = resolveFloat(value, cfg.AuthorityLevelEBoost, clampF)
		case "collegial_binding_bonus":
			cfg.CollegialBindingBonus = resolveFloat(value, cfg.CollegialBindingBonus, clampF)
		case "monocratic_binding_penalty":
			cfg.MonocraticBindingPenalty = resolveFloat(value, cfg.MonocraticBindingPenalty, clampF)
		case "context_max_passages_per_doc":
			cfg.ContextMaxPassagesPerDoc = clampI(cfg.ContextMaxPassagesPerDoc)
		case "context_max_passage_chars":
			cfg.ContextMaxPassageChars = clampI(cfg.ContextMaxPassageChars)
		case "context_max_doc_chars":
			cfg.ContextMaxDocChars = clampI(cfg.ContextMaxDocChars)
		case "paragraph_citation_min_chars":
			cfg.ParagraphCitationMinChars = clampI(cfg.ParagraphCitationMinChars)
		case "generation_temperature":
			cfg.GenerationTemperature = resolveFloat(value, cfg.GenerationTemperature, clampF)
		case "generation_max_output_tokens":
			cfg.GenerationMaxTokens = clampI(cfg.GenerationMaxTokens)
		case "rerank_dedup_process":
			cfg.RerankDedupProcess = asBool(value, cfg.RerankDedupProcess)
		case "generation_model":
			cfg.GenerationModel = asTrimmed(value, cfg.GenerationModel)
		case "generation_fallback_model":
			cfg.GenerationFallbackModel = asTrimmed(value, cfg.GenerationFallbackModel)
		case "rerank_model":
			cfg.RerankModel = asTrimmed(value, cfg.RerankModel)
		}
	}

	// Keep rerank <= hybrid to avoid empty cuts.
	if cfg.TopKRerank > cfg.TopKHybrid {
		cfg.TopKRerank = cfg.TopKHybrid
	}
	return cfg
}

func resolveFloat(value any, fallback float64, clamp func(float64, float64) float64) float64 {
	f, ok := asFloat(value)
	if !ok {
		return fallback
	}
	return clamp(f, fallback)
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asBool(value any, fallback bool) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "sim", "on":
			return true
		case "0", "false", "no", "nao", "off":
			return false
		}
	}
	return fallback
}

func asTrimmed(value any, fallback string) string {
	if s, ok := value.(string); ok {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
