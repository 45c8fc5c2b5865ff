package output

import (
	"fmt"
	"log/slog"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

type Orchestrator struct {
	logger *slog.Logger
}

func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger}
}

// Assemble routes the draft through the structure of the query type, or through
// the named structure when override is a known one.
func (o *Orchestrator) Assemble(queryType domain.QueryType, override, draft string, chunks []domain.Chunk) domain.StructuredOutput {
	structure := StructureFor(queryType)
	if override != "" {
		if s, ok := LookupStructure(override); ok {
			structure = s
		} else {
			o.logger.Warn("unknown_structure_override", "structure", override, "fallback", structure.Name)
		}
	}

	out := domain.StructuredOutput{
		QueryType: queryType,
		Structure: structure.Name,
		Modules:   make([]domain.ModuleOutput, 0, len(structure.Modules)),
		RawText:   draft,
	}
	for _, name := range structure.Modules {
		module, ok := LookupModule(name)
		if !ok {
			continue
		}
		data, ok, err := o.run(module, draft, chunks)
		if err != nil {
			o.logger.Error("module_failed", "module", name, "structure", structure.Name, "error", err)
			continue
		}
		if !ok {
			continue
		}
		out.Modules = append(out.Modules, domain.ModuleOutput{Module: name, Data: data})
	}
	return out
}

func (o *Orchestrator) run(module Module, draft string, chunks []domain.Chunk) (data any, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, ok, err = nil, false, fmt.Errorf("module panic: %v", r)
		}
	}()
	data, ok = module(draft, chunks)
	return data, ok, nil
}
