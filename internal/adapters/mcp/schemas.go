package mcpadapter

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var structureNames = []string{
	"candidate_profile",
	"comparison",
	"ranking",
	"search_results",
	"job_match",
	"team_build",
	"verification",
	"summary",
	"general",
	"risk_view",
}

// askCandidatesTool returns the tool definition for ask_candidates
func askCandidatesTool() mcp.Tool {
	return mcp.NewTool("ask_candidates",
		mcp.WithDescription("Answer a question about the loaded candidate résumés. The answer is grounded in résumé excerpts, verified claim by claim and returned as Markdown with sources."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question about one or more candidates, e.g. 'Compare Maria and Ivan for a backend role'"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session whose résumés are searched"),
		),
		mcp.WithArray("document_ids",
			mcp.Description("Restrict the search to these résumé documents"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of résumé excerpts used as evidence (1-50)"),
			mcp.Min(1),
			mcp.Max(50),
		),
		mcp.WithString("structure",
			mcp.Description("Force an output structure instead of the one chosen from the question"),
			mcp.Enum(structureNames...),
		),
	)
}

// getRunTool returns the tool definition for get_run
func getRunTool() mcp.Tool {
	return mcp.NewTool("get_run",
		mcp.WithDescription("Fetch the audit record of an earlier ask_candidates call, including per-stage metrics"),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("run_id returned by ask_candidates"),
		),
	)
}
