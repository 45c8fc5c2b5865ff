package output

import (
	"encoding/json"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

const riskDraft = "### Answer\nMaria fits.\n\n### Risk Assessment\n- Medium: short tenure at last job\n\n### Conclusion\nMaria is a good fit.\n"

func TestAssembleUsesStructureOfQueryType(t *testing.T) {
	o := NewOrchestrator(nil)
	out := o.Assemble(domain.QueryTypeSingleCandidate, "", riskDraft, sampleChunks())

	if out.Structure != StructureCandidateProfile || out.RawText != riskDraft {
		t.Fatalf("unexpected output header %+v", out)
	}
	var names []string
	for _, m := range out.Modules {
		names = append(names, m.Module)
	}
	want := []string{ModuleDirectAnswer, ModuleCandidateProfile, ModuleRiskAssessment, ModuleConclusion, ModuleSources}
	if len(names) != len(want) {
		t.Fatalf("modules = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("modules = %v, want %v", names, want)
		}
	}
}

func TestAssembleOverrideAndUnknownStructure(t *testing.T) {
	o := NewOrchestrator(nil)
	out := o.Assemble(domain.QueryTypeGeneral, StructureRiskView, riskDraft, sampleChunks())
	if out.Structure != StructureRiskView {
		t.Fatalf("override not applied: %s", out.Structure)
	}

	out = o.Assemble(domain.QueryTypeComparison, "does_not_exist", riskDraft, nil)
	if out.Structure != StructureComparison {
		t.Fatalf("unknown override should fall back to query type structure, got %s", out.Structure)
	}

	out = o.Assemble(domain.QueryType("unknown"), "", riskDraft, nil)
	if out.Structure != StructureGeneral {
		t.Fatalf("unknown query type should map to general, got %s", out.Structure)
	}
}

func TestSharedModuleOutputIsIdenticalAcrossStructures(t *testing.T) {
	o := NewOrchestrator(nil)
	var encoded []string
	for _, structure := range []string{StructureCandidateProfile, StructureJobMatch, StructureRiskView} {
		out := o.Assemble(domain.QueryTypeGeneral, structure, riskDraft, sampleChunks())
		m, ok := out.Module(ModuleRiskAssessment)
		if !ok {
			t.Fatalf("structure %s lacks risk_assessment", structure)
		}
		raw, err := json.Marshal(m.Data)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		encoded = append(encoded, string(raw))
	}
	if encoded[0] != encoded[1] || encoded[1] != encoded[2] {
		t.Fatalf("risk_assessment differs between structures: %v", encoded)
	}
}

func TestRunRecoversFromModulePanic(t *testing.T) {
	o := NewOrchestrator(nil)
	_, ok, err := o.run(func(string, []domain.Chunk) (any, bool) { panic("boom") }, "", nil)
	if err == nil || ok {
		t.Fatalf("expected recovered panic, got ok=%v err=%v", ok, err)
	}
}

func TestEveryQueryTypeHasStructure(t *testing.T) {
	for _, qt := range domain.AllQueryTypes() {
		s := StructureFor(qt)
		if len(s.Modules) == 0 {
			t.Fatalf("query type %s has empty structure", qt)
		}
		for _, name := range s.Modules {
			if _, ok := LookupModule(name); !ok {
				t.Fatalf("structure %s references unknown module %s", s.Name, name)
			}
		}
	}
	if len(StructureNames()) != 10 {
		t.Fatalf("expected 10 structures, got %v", StructureNames())
	}
}
