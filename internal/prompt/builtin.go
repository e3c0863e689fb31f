package prompt

// builtinTemplates maps template filename to content.
var builtinTemplates = map[string]string{
	"planner.md":  plannerTemplate,
	"coder.md":    coderTemplate,
	"reviewer.md": reviewerTemplate,
	"pr_body.md":  prBodyTemplate,
}

const plannerTemplate = `# Plan: {{issue_title}}

## Issue #{{issue_number}}
{{issue_body}}

{{#if external_feedback}}
## Reviewer Feedback From the Open Pull Request
Address every item below. Feedback takes priority over the original issue text where they conflict.
{{external_feedback}}
{{/if}}

## Repository Context
Working in: {{repo_dir}}
Branch: {{branch_name}} (from {{base_branch}})

## Instructions
1. Read the relevant code to understand the current state.
2. Produce a concrete, file-by-file implementation plan for this issue.
3. List the quality gates the change must pass and any risks.
4. Do not modify any files. Output the plan as markdown only.
`

const coderTemplate = `# Implement: {{issue_title}}

## Issue #{{issue_number}}
{{issue_body}}

## Plan
{{plan}}

{{#if feedback}}
## Feedback From the Previous Attempt
The last attempt did not pass. Fix every item below before anything else.
{{feedback}}
{{/if}}

## Repository Context
Working in: {{repo_dir}}
Branch: {{branch_name}}
Attempt: {{attempt}}

## Instructions
1. Implement the plan, adjusting where the code demands it.
2. Run the project quality gates locally before finishing.
3. Write a summary of what you changed to {{output_file}}.
4. Do not commit; the pipeline commits for you.
`

const reviewerTemplate = `# Review: {{issue_title}}

## Issue #{{issue_number}}
{{issue_body}}

## Plan
{{plan}}

## Validation Summary
{{validation_summary}}

## Instructions
1. Review the working tree changes against the issue and the plan.
2. Call out correctness risks, missing cases, and anything the gates cannot catch.
3. Do not modify any files. Output the review as markdown only.
`

const prBodyTemplate = `## Summary

Closes #{{issue_number}}.

{{issue_title}}

{{#if plan}}
## Plan
{{plan}}
{{/if}}

## Validation
{{validation_summary}}

{{#if review}}
## Review Notes
{{review}}
{{/if}}
`
