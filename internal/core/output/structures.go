package output

import (
	"sort"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// Structure is an ordered list of modules rendered for one kind of answer.
type Structure struct {
	Name    string
	Modules []string
}

const (
	StructureCandidateProfile = "candidate_profile"
	StructureComparison       = "comparison"
	StructureRanking          = "ranking"
	StructureSearchResults    = "search_results"
	StructureJobMatch         = "job_match"
	StructureTeamBuild        = "team_build"
	StructureVerification     = "verification"
	StructureSummary          = "summary"
	StructureGeneral          = "general"
	StructureRiskView         = "risk_view"
)

var structures = map[string]Structure{
	StructureCandidateProfile: {StructureCandidateProfile, []string{
		ModuleDirectAnswer, ModuleCandidateProfile, ModuleStrengths, ModuleGaps,
		ModuleRiskAssessment, ModuleReasoning, ModuleConclusion, ModuleSources,
	}},
	StructureComparison: {StructureComparison, []string{
		ModuleDirectAnswer, ModuleComparisonTable, ModuleStrengths, ModuleGaps,
		ModuleReasoning, ModuleConclusion, ModuleSources,
	}},
	StructureRanking: {StructureRanking, []string{
		ModuleDirectAnswer, ModuleRanking, ModuleMatchScores, ModuleReasoning, ModuleConclusion, ModuleSources,
	}},
	StructureSearchResults: {StructureSearchResults, []string{
		ModuleDirectAnswer, ModuleSearchResults, ModuleReasoning, ModuleConclusion, ModuleSources,
	}},
	StructureJobMatch: {StructureJobMatch, []string{
		ModuleDirectAnswer, ModuleMatchScores, ModuleStrengths, ModuleGaps,
		ModuleRiskAssessment, ModuleReasoning, ModuleConclusion, ModuleSources,
	}},
	StructureTeamBuild: {StructureTeamBuild, []string{
		ModuleDirectAnswer, ModuleTeamComposition, ModuleMatchScores, ModuleReasoning, ModuleConclusion, ModuleSources,
	}},
	StructureVerification: {StructureVerification, []string{
		ModuleVerificationResult, ModuleDirectAnswer, ModuleReasoning, ModuleConclusion, ModuleSources,
	}},
	StructureSummary: {StructureSummary, []string{
		ModuleSummary, ModuleDirectAnswer, ModuleCandidateProfile, ModuleConclusion, ModuleSources,
	}},
	StructureGeneral: {StructureGeneral, []string{
		ModuleDirectAnswer, ModuleReasoning, ModuleConclusion, ModuleSources,
	}},
	StructureRiskView: {StructureRiskView, []string{
		ModuleCandidateProfile, ModuleRiskAssessment, ModuleGaps, ModuleConclusion, ModuleSources,
	}},
}

var structureByType = map[domain.QueryType]string{
	domain.QueryTypeSingleCandidate: StructureCandidateProfile,
	domain.QueryTypeComparison:      StructureComparison,
	domain.QueryTypeRanking:         StructureRanking,
	domain.QueryTypeSearch:          StructureSearchResults,
	domain.QueryTypeJobMatch:        StructureJobMatch,
	domain.QueryTypeTeamBuild:       StructureTeamBuild,
	domain.QueryTypeVerification:    StructureVerification,
	domain.QueryTypeSummary:         StructureSummary,
	domain.QueryTypeGeneral:         StructureGeneral,
}

// StructureFor maps a query type to its structure; unknown types get the general one.
func StructureFor(queryType domain.QueryType) Structure {
	if name, ok := structureByType[queryType]; ok {
		return structures[name]
	}
	return structures[StructureGeneral]
}

func LookupStructure(name string) (Structure, bool) {
	s, ok := structures[name]
	return s, ok
}

func StructureNames() []string {
	names := make([]string, 0, len(structures))
	for name := range structures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
