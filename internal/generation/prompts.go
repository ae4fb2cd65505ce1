package generation

import "github.com/promptops/insight-pipeline/internal/domain"

const markdownSystemPrompt = `You are a product strategist. Generate a comprehensive product specification document. Include these sections:

1. Executive Summary
2. Problem Statement — What problems are users facing?
3. User Personas — Key user types and their needs
4. Core Features — Prioritized feature list with descriptions
5. Technical Requirements — Infrastructure, integrations, constraints
6. Success Metrics — KPIs and measurement approach
7. Risks & Mitigations
8. Timeline & Milestones

Use clear markdown formatting. Be specific and actionable based on the research data provided.`

const architectureSystemPrompt = `You are a senior software architect. Generate a comprehensive product spec structured for AI-assisted development. Include these sections:

1. Requirements — Functional and non-functional requirements
2. Architecture — System design, tech stack recommendations, component diagram
3. Implementation Plan — Phased approach with milestones
4. File Structure — Recommended project layout
5. API Design — Endpoints, request/response schemas
6. Data Models — Database schema, relationships

Use clear markdown formatting with code blocks for technical details.`

const issueTrackerSystemPrompt = `You are a project manager. Generate a product spec formatted as Linear issues. Each section should be an issue with:

- Title (concise, actionable)
- Priority: P0 (Critical), P1 (High), P2 (Medium), P3 (Low)
- Estimate: XS (1h), S (half day), M (1 day), L (3 days), XL (1 week)
- Labels: relevant categories
- Acceptance Criteria: checkbox list

Group issues by epic/theme. Use markdown formatting.`

// systemPrompt picks the generation prompt for a spec format. Unknown formats
// fall back to the markdown document.
func systemPrompt(format domain.SpecFormat) string {
	switch format {
	case domain.SpecArchitecture:
		return architectureSystemPrompt
	case domain.SpecIssueTracker:
		return issueTrackerSystemPrompt
	default:
		return markdownSystemPrompt
	}
}
