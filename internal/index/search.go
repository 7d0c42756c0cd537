package index

import (
	"database/sql"
	"strings"
	"unicode"

	"github.com/starford/kiln/internal/models"
)

const defaultSearchLimit = 20

// searchTerms splits a user query into words. Quotes and operators carry no
// meaning; every term must match.
func searchTerms(query string) []string {
	return strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.'
	})
}

// ftsQuery turns query into an FTS5 expression: each term is quoted and the
// last one matches as a prefix so results follow typing.
func ftsQuery(query string) string {
	terms := searchTerms(query)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
		if i == len(terms)-1 {
			terms[i] += "*"
		}
	}
	return strings.Join(terms, " ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var kind string
		if err := rows.Scan(&r.Path, &kind, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		r.Kind = models.FileKind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}
