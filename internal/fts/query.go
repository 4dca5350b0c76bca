package fts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// QueryType selects how a user search string is turned into an FTS5 MATCH expression.
type QueryType string

const (
	// QueryTypePlain ANDs every word together.
	QueryTypePlain QueryType = "plain"
	// QueryTypePhrase matches the whole input as one exact phrase.
	QueryTypePhrase QueryType = "phrase"
	// QueryTypeWebsearch understands "quoted phrases", or, and -negation.
	QueryTypeWebsearch QueryType = "websearch"
	// QueryTypeFTS accepts tsquery style operators: & | ! and :* prefixes.
	QueryTypeFTS QueryType = "fts"
)

// ErrInvalidQuery is returned for empty queries, unknown query types and
// expressions FTS5 cannot parse.
var ErrInvalidQuery = errors.New("invalid search query")

var (
	orPattern       = regexp.MustCompile(`(?i)^or$`)
	quotedTerm      = regexp.MustCompile(`'([^']*)'`)
	prefixOperator  = regexp.MustCompile(`:(\*)`)
	spaces          = regexp.MustCompile(`\s+`)
	defaultFallback = QueryTypePlain
)

// ParseQueryType maps a request parameter onto a QueryType. An empty
// string selects plain search.
func ParseQueryType(s string) (QueryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return defaultFallback, nil
	case "plain", "plfts":
		return QueryTypePlain, nil
	case "phrase", "phfts":
		return QueryTypePhrase, nil
	case "websearch", "wfts":
		return QueryTypeWebsearch, nil
	case "fts":
		return QueryTypeFTS, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q (valid: plain, phrase, websearch, fts)", ErrInvalidQuery, s)
	}
}

// ToFTS5Query converts a search query to FTS5 MATCH syntax.
func ToFTS5Query(queryType QueryType, query string) string {
	switch queryType {
	case QueryTypePlain:
		return plainToFTS5(query)
	case QueryTypePhrase:
		return phraseToFTS5(query)
	case QueryTypeWebsearch:
		return websearchToFTS5(query)
	case QueryTypeFTS:
		return ftsToFTS5(query)
	default:
		return query
	}
}

// ConvertQuery validates query and queryType and returns the MATCH expression.
func ConvertQuery(query, queryType string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	qt, err := ParseQueryType(queryType)
	if err != nil {
		return "", err
	}
	match := ToFTS5Query(qt, query)
	if match == "" {
		return "", fmt.Errorf("%w: nothing to search for", ErrInvalidQuery)
	}
	return match, nil
}

func plainToFTS5(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return ""
	}
	for i, w := range words {
		words[i] = quote(w)
	}
	return strings.Join(words, " AND ")
}

func phraseToFTS5(query string) string {
	q := strings.TrimSpace(query)
	if q == "" {
		return ""
	}
	return quote(q)
}

// websearchToFTS5 keeps quoted phrases, turns a bare "or" into OR and
// "-word" into NOT word. Remaining terms are implicitly ANDed by FTS5.
func websearchToFTS5(query string) string {
	var out []string
	for _, part := range splitPreservingQuotes(query) {
		switch {
		case orPattern.MatchString(part):
			if len(out) > 0 && out[len(out)-1] != "OR" {
				out = append(out, "OR")
			}
		case strings.HasPrefix(part, "-") && len(part) > 1:
			// NOT is binary in FTS5, a leading negation has nothing to subtract from
			if len(out) == 0 {
				continue
			}
			if out[len(out)-1] == "OR" {
				out = out[:len(out)-1]
			}
			out = append(out, "NOT", quote(strings.Trim(part[1:], `"`)))
		case strings.HasPrefix(part, `"`) && strings.HasSuffix(part, `"`) && len(part) > 1:
			out = append(out, quote(strings.Trim(part, `"`)))
		default:
			out = append(out, quote(part))
		}
	}
	if len(out) > 0 && out[len(out)-1] == "OR" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, " ")
}

// ftsToFTS5 converts tsquery syntax: 'term1' & 'term2' | 'term3'.
func ftsToFTS5(query string) string {
	result := quotedTerm.ReplaceAllString(query, "$1")
	result = strings.ReplaceAll(result, "&", " AND ")
	result = strings.ReplaceAll(result, "|", " OR ")
	result = strings.ReplaceAll(result, "!", " NOT ")
	result = prefixOperator.ReplaceAllString(result, "*")
	result = spaces.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// quote turns s into an FTS5 string literal so punctuation in chat text
// cannot be read as query syntax.
func quote(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func splitPreservingQuotes(s string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			current.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			if inQuotes {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
