package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pgvector/pgvector-go"

	"juris-rag/internal/core/domain"
)

// identifierRE guards table names, which cannot be bound parameters.
var identifierRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

const candidateColumns = `doc_id, tribunal, tipo, processo, relator, orgao_julgador,
ramo_direito, data_julgamento, texto_busca, texto_integral, url, metadata, source_id, source_label`

// Store runs both retrieval legs against one Postgres database with the
// pgvector extension and a Portuguese tsvector column per corpus table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) VectorSearch(ctx context.Context, table string, vector []float32, limit int, filter domain.Filter) ([]domain.Candidate, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	where, args := buildFilter(filter, 2)
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE embedding IS NOT NULL%s
ORDER BY embedding <=> $1
LIMIT %d
`, candidateColumns, table, where, limit)

	bound := append([]any{pgvector.NewVector(vector)}, args...)
	rows, err := s.db.QueryContext(ctx, query, bound...)
	if err != nil {
		return nil, fmt.Errorf("vector search %s: %w", table, err)
	}
	defer rows.Close()
	return scanCandidates(rows, table)
}

func (s *Store) FullTextSearch(ctx context.Context, table, query string, limit int, filter domain.Filter) ([]domain.Candidate, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	where, args := buildFilter(filter, 2)
	stmt := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE tsv @@ websearch_to_tsquery('portuguese', $1)%s
ORDER BY ts_rank(tsv, websearch_to_tsquery('portuguese', $1)) DESC
LIMIT %d
`, candidateColumns, table, where, limit)

	bound := append([]any{query}, args...)
	rows, err := s.db.QueryContext(ctx, stmt, bound...)
	if err != nil {
		return nil, fmt.Errorf("fulltext search %s: %w", table, err)
	}
	defer rows.Close()
	return scanCandidates(rows, table)
}

func validTable(table string) error {
	if !identifierRE.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// buildFilter renders the conjunctive WHERE tail. Placeholders start at
// startIdx because $1 is always the search argument.
func buildFilter(filter domain.Filter, startIdx int) (string, []any) {
	var clauses []string
	var args []any
	next := startIdx

	addAny := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", column, next))
		args = append(args, values)
		next++
	}

	addAny("tribunal", filter.Tribunais)
	addAny("tipo", filter.Tipos)
	addAny("ramo_direito", filter.Ramos)
	addAny("orgao_julgador", filter.Orgaos)
	addAny("source_id", filter.SourceIDs)

	if relator := strings.TrimSpace(filter.RelatorContains); relator != "" {
		clauses = append(clauses, fmt.Sprintf("relator ILIKE '%%' || $%d || '%%'", next))
		args = append(args, relator)
		next++
	}
	if filter.DateFrom != "" {
		clauses = append(clauses, fmt.Sprintf("data_julgamento >= $%d", next))
		args = append(args, filter.DateFrom)
		next++
	}
	if filter.DateTo != "" {
		clauses = append(clauses, fmt.Sprintf("data_julgamento <= $%d", next))
		args = append(args, filter.DateTo)
		next++
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func scanCandidates(rows *sql.Rows, table string) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for rows.Next() {
		var (
			c                                  domain.Candidate
			relator, orgao, ramo, data         sql.NullString
			integral, url, sourceID, sourceLbl sql.NullString
			metadata                           []byte
		)
		if err := rows.Scan(
			&c.DocID,
			&c.Tribunal,
			&c.Tipo,
			&c.Processo,
			&relator,
			&orgao,
			&ramo,
			&data,
			&c.TextoBusca,
			&integral,
			&url,
			&metadata,
			&sourceID,
			&sourceLbl,
		); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		c.Relator = relator.String
		c.OrgaoJulgador = orgao.String
		c.RamoDireito = ramo.String
		c.DataJulgamento = data.String
		c.TextoIntegral = integral.String
		c.URL = url.String
		c.SourceID = sourceID.String
		c.SourceLabel = sourceLbl.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				// Malformed metadata never blocks retrieval.
				c.Metadata = nil
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", table, err)
	}
	return out, nil
}
