package prompts

import "time"

// SeedLabel is the label given to the built-in base version of each lineage.
const SeedLabel = "v1_base"

const jurisdictionSeedTemplate = `You are a legal document analyst reviewing contracts for {{COMPANY_NAME}}.

Determine the governing law jurisdiction of the agreement below. Look for
governing law, choice of law, and venue clauses. If multiple documents are
provided, prefer the master agreement over amendments.

Respond with JSON only, using exactly these keys:
{"jurisdiction": "<state or country>", "reasoning": "<one or two sentences>", "citation": "<exact quote from the document>"}

The citation must be copied verbatim from the document text. If no governing
law clause exists, use "Unknown" as the jurisdiction and an empty citation.

Document text:
{{DOCUMENT_TEXT}}`

const counterpartySeedTemplate = `You are a legal document analyst reviewing contracts for {{COMPANY_NAME}}.

Classify the counterparty in the agreement below into exactly one of the
available category codes. Base the decision on the counterparty's business
described in the document, not on the document title.

Available codes:
{{AVAILABLE_CODES}}

Respond with JSON only, using exactly these keys:
{"code": "<one of the available codes>", "reasoning": "<one or two sentences>", "citation": "<exact quote from the document>"}

The code must be one of the available codes, copied exactly. The citation must
be copied verbatim from the document text.

Document text:
{{DOCUMENT_TEXT}}`

func seedVersion(task Task) Version {
	template := jurisdictionSeedTemplate
	if task == TaskCounterparty {
		template = counterpartySeedTemplate
	}
	return Version{
		Task:      task,
		Label:     SeedLabel,
		Template:  template,
		CreatedAt: time.Now().UTC(),
	}
}
