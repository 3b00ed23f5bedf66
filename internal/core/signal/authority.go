package signal

import (
	"regexp"
	"strings"

	"juris-rag/internal/core/domain"
)

var (
	concentratedControlRE = regexp.MustCompile(`\b(adi|adc|adpf)\b`)
	qualifiedPrecedentRE  = regexp.MustCompile(`\b(irdr|iac)\b`)
)

// ClassifyAuthority runs a fixed, ordered rule cascade over document type,
// court, deciding organ and text patterns. The first matching rule wins.
// Classification is a pure function of the candidate, never of ranking
// weights, so the same input always yields the same (score, level, reason).
func ClassifyAuthority(c *domain.Candidate) domain.Authority {
	tipo := strings.ToLower(strings.TrimSpace(c.Tipo))
	tribunal := strings.ToUpper(strings.TrimSpace(c.Tribunal))
	orgao := NormalizeText(c.OrgaoJulgador)
	processo := NormalizeText(c.Processo)

	busca := CleanText(c.TextoBusca)
	integral := CleanText(c.TextoIntegral)
	if r := []rune(integral); len(r) > 3000 {
		integral = string(r[:3000])
	}
	docText := NormalizeText(busca + "\n" + integral)
	corpus := processo + "\n" + docText

	isAcordao := tipo == domain.TipoAcordao || tipo == domain.TipoAcordaoSV

	if tipo == domain.TipoSumulaVinculante {
		return domain.Authority{Score: 1.00, Level: domain.AuthorityA, Reason: "Sumula vinculante do STF."}
	}

	if tribunal == "STF" && isAcordao && concentratedControlRE.MatchString(corpus) {
		return domain.Authority{Score: 0.97, Level: domain.AuthorityA, Reason: "Controle concentrado no STF."}
	}

	if tipo == domain.TipoTemaRepetitivo {
		return domain.Authority{Score: 0.92, Level: domain.AuthorityB, Reason: "Tema repetitivo do STJ."}
	}

	if tipo == domain.TipoMonocratica || tipo == domain.TipoMonocraticaSV {
		if strings.Contains(corpus, "repercussao geral") || strings.Contains(corpus, "tema ") {
			return domain.Authority{Score: 0.56, Level: domain.AuthorityD, Reason: "Decisao monocratica que aplica tema; nao fixa tese obrigatoria."}
		}
		return domain.Authority{Score: 0.52, Level: domain.AuthorityD, Reason: "Decisao monocratica, util como indicio."}
	}

	if qualifiedPrecedentRE.MatchString(corpus) {
		return domain.Authority{Score: 0.90, Level: domain.AuthorityB, Reason: "Precedente qualificado (IRDR/IAC)."}
	}

	if tribunal == "STF" && isAcordao &&
		(c.MetaTrueish("is_repercussao_geral") || strings.Contains(corpus, "repercussao geral")) {
		return domain.Authority{Score: 0.89, Level: domain.AuthorityB, Reason: "Acordao com tema de repercussao geral do STF."}
	}

	if tipo == domain.TipoSumula || tipo == domain.TipoSumulaSTJ {
		return domain.Authority{Score: 0.78, Level: domain.AuthorityC, Reason: "Sumula de observancia qualificada."}
	}

	if tipo == domain.TipoInformativo || strings.Contains(corpus, "jurisprudencia em teses") {
		return domain.Authority{Score: 0.18, Level: domain.AuthorityE, Reason: "Informativo/compilacao editorial nao vinculante."}
	}

	if isAcordao {
		if strings.Contains(orgao, "corte especial") || strings.Contains(orgao, "plenario") || strings.Contains(orgao, "tribunal pleno") {
			return domain.Authority{Score: 0.68, Level: domain.AuthorityD, Reason: "Acordao colegiado de referencia nao vinculante."}
		}
		return domain.Authority{Score: 0.64, Level: domain.AuthorityD, Reason: "Acordao colegiado nao vinculante."}
	}

	return domain.Authority{Score: 0.45, Level: domain.AuthorityD, Reason: "Forca nao vinculante padrao."}
}
