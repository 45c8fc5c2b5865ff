package domain

import (
	"sort"
	"strings"
)

type QueryType string

const (
	QueryTypeSingleCandidate QueryType = "single_candidate"
	QueryTypeComparison      QueryType = "comparison"
	QueryTypeRanking         QueryType = "ranking"
	QueryTypeSearch          QueryType = "search"
	QueryTypeJobMatch        QueryType = "job_match"
	QueryTypeTeamBuild       QueryType = "team_build"
	QueryTypeVerification    QueryType = "verification"
	QueryTypeSummary         QueryType = "summary"
	QueryTypeGeneral         QueryType = "general"
)

var queryTypes = []QueryType{
	QueryTypeSingleCandidate,
	QueryTypeComparison,
	QueryTypeRanking,
	QueryTypeSearch,
	QueryTypeJobMatch,
	QueryTypeTeamBuild,
	QueryTypeVerification,
	QueryTypeSummary,
	QueryTypeGeneral,
}

// ParseQueryType accepts the wire name of a query type. Unknown values report false.
func ParseQueryType(raw string) (QueryType, bool) {
	value := QueryType(strings.ToLower(strings.TrimSpace(raw)))
	for _, qt := range queryTypes {
		if qt == value {
			return qt, true
		}
	}
	return QueryTypeGeneral, false
}

func AllQueryTypes() []QueryType {
	out := make([]QueryType, len(queryTypes))
	copy(out, queryTypes)
	return out
}

type QueryEntities struct {
	CandidateNames []string       `json:"candidate_names,omitempty"`
	Skills         []string       `json:"skills,omitempty"`
	MinYears       int            `json:"min_years,omitempty"`
	Filters        MetadataFilter `json:"filters,omitempty"`
}

// Query is the analyzed form of a user question. It is not modified after analysis.
type Query struct {
	Text               string        `json:"text"`
	Resolved           string        `json:"resolved"`
	Type               QueryType     `json:"query_type"`
	Entities           QueryEntities `json:"entities"`
	Variations         []string      `json:"variations,omitempty"`
	HypotheticalAnswer string        `json:"hypothetical_answer,omitempty"`
}

// SearchText is the text used for lexical matching and reranking.
func (q Query) SearchText() string {
	if strings.TrimSpace(q.Resolved) != "" {
		return q.Resolved
	}
	return q.Text
}

type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Scope restricts retrieval to one session and optionally to a subset of documents.
type Scope struct {
	SessionID   string   `json:"session_id,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Key is a stable identifier of the scope used for cache partitioning.
func (s Scope) Key() string {
	ids := make([]string, 0, len(s.DocumentIDs))
	for _, id := range s.DocumentIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return strings.TrimSpace(s.SessionID) + "|" + strings.Join(ids, ",")
}

type GuardrailDecision struct {
	Allowed    bool    `json:"allowed"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Reason     string  `json:"reason,omitempty"`
}
