package domain

// Document type identifiers as stored in the search corpus.
const (
	TipoAcordao          = "acordao"
	TipoAcordaoSV        = "acordao_sv"
	TipoSumula           = "sumula"
	TipoSumulaSTJ        = "sumula_stj"
	TipoSumulaVinculante = "sumula_vinculante"
	TipoInformativo      = "informativo"
	TipoMonocratica      = "monocratica"
	TipoMonocraticaSV    = "monocratica_sv"
	TipoTemaRepetitivo   = "tema_repetitivo_stj"
	TipoAcervoUsuario    = "acervo_usuario"
)

// SourceKind distinguishes the primary corpus from user-uploaded corpora.
type SourceKind string

const (
	SourcePrimary SourceKind = "primary"
	SourceUser    SourceKind = "user"
)

// AuthorityLevel is the precedential binding strength taxonomy, from
// strongly binding (A) to purely editorial (E).
type AuthorityLevel string

const (
	AuthorityA AuthorityLevel = "A"
	AuthorityB AuthorityLevel = "B"
	AuthorityC AuthorityLevel = "C"
	AuthorityD AuthorityLevel = "D"
	AuthorityE AuthorityLevel = "E"
)

// Authority is the result of the precedence classification cascade.
type Authority struct {
	Score  float64        `json:"score"`
	Level  AuthorityLevel `json:"level"`
	Reason string         `json:"reason"`
}

// DocumentRole classifies what a candidate contributes to an answer.
type DocumentRole string

const (
	RoleTeseMaterial       DocumentRole = "tese_material"
	RoleBarreiraProcessual DocumentRole = "barreira_processual"
	RoleAplicacao          DocumentRole = "aplicacao"
)

// RetrievalAnnotations are computed during hybrid retrieval and never
// persisted. A rank of zero means the candidate was absent from that list.
type RetrievalAnnotations struct {
	VectorRank   int     `json:"vector_rank,omitempty"`
	FullTextRank int     `json:"fulltext_rank,omitempty"`
	RRFScore     float64 `json:"rrf_score"`
	HybridHits   int     `json:"hybrid_hits"`
}

// RankingAnnotations are computed during reranking and composite scoring.
type RankingAnnotations struct {
	SemanticRaw     float64        `json:"semantic_raw"`
	SemanticNorm    float64        `json:"semantic_norm"`
	SemanticBackend string         `json:"semantic_backend"`
	Lexical         float64        `json:"lexical"`
	Recency         float64        `json:"recency"`
	RecencyContrib  float64        `json:"recency_contrib"`
	AgeYears        float64        `json:"age_years"`
	AgeKnown        bool           `json:"age_known"`
	Thesis          float64        `json:"thesis"`
	Procedural      float64        `json:"procedural"`
	Role            DocumentRole   `json:"role"`
	AuthorityScore  float64        `json:"authority_score"`
	AuthorityLevel  AuthorityLevel `json:"authority_level"`
	AuthorityReason string         `json:"authority_reason"`
	SourcePriority  float64        `json:"source_priority"`
	Final           float64        `json:"final"`
}

// Candidate is one retrievable unit, materialized fresh per query and
// annotated in place as it moves through the pipeline.
type Candidate struct {
	DocID          string         `json:"doc_id"`
	Tribunal       string         `json:"tribunal"`
	Tipo           string         `json:"tipo"`
	Processo       string         `json:"processo"`
	Relator        string         `json:"relator,omitempty"`
	OrgaoJulgador  string         `json:"orgao_julgador,omitempty"`
	RamoDireito    string         `json:"ramo_direito,omitempty"`
	DataJulgamento string         `json:"data_julgamento,omitempty"`
	TextoBusca     string         `json:"texto_busca"`
	TextoIntegral  string         `json:"texto_integral,omitempty"`
	URL            string         `json:"url,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	SourceID    string     `json:"source_id,omitempty"`
	SourceLabel string     `json:"source_label,omitempty"`
	SourceKind  SourceKind `json:"source_kind,omitempty"`

	Retrieval RetrievalAnnotations `json:"retrieval"`
	Ranking   RankingAnnotations   `json:"ranking"`
}

// MetaTrueish reports whether a metadata flag is set to a truthy value. The
// corpus stores booleans inconsistently (bool, number, "1", "sim").
func (c *Candidate) MetaTrueish(key string) bool {
	if c.Metadata == nil {
		return false
	}
	switch v := c.Metadata[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		switch v {
		case "1", "true", "yes", "sim", "True":
			return true
		}
	}
	return false
}

// MetaString returns a metadata value as a trimmed string, or "".
func (c *Candidate) MetaString(key string) string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata[key].(string); ok {
		return v
	}
	return ""
}

var typeLabels = map[string]string{
	TipoAcordao:          "Acórdão",
	TipoAcordaoSV:        "Acórdão (SV)",
	TipoSumula:           "Súmula",
	TipoSumulaSTJ:        "Súmula STJ",
	TipoSumulaVinculante: "Súmula Vinculante",
	TipoInformativo:      "Informativo",
	TipoMonocratica:      "Decisão Monocrática",
	TipoMonocraticaSV:    "Decisão Monocrática (SV)",
	TipoTemaRepetitivo:   "Tema Repetitivo STJ",
	TipoAcervoUsuario:    "Documento do Meu Acervo",
}

// TypeLabel returns the human-readable label for a document type.
func TypeLabel(tipo string) string {
	if tipo == "" {
		return "Documento"
	}
	if label, ok := typeLabels[tipo]; ok {
		return label
	}
	return tipo
}

var authorityLabels = map[AuthorityLevel]string{
	AuthorityA: "Vinculante forte",
	AuthorityB: "Precedente qualificado (tese/tema)",
	AuthorityC: "Observancia qualificada",
	AuthorityD: "Nao vinculante (orientativo)",
	AuthorityE: "Editorial/consulta",
}

// AuthorityLabel returns the human-readable label for an authority level.
func AuthorityLabel(level AuthorityLevel) string {
	if label, ok := authorityLabels[level]; ok {
		return label
	}
	return authorityLabels[AuthorityD]
}

// RoleLabel returns the human-readable label for a document role.
func RoleLabel(role DocumentRole) string {
	switch role {
	case RoleTeseMaterial:
		return "Tese material"
	case RoleBarreiraProcessual:
		return "Barreira processual"
	default:
		return "Aplicação/caso"
	}
}
