package llm

import (
	"fmt"
	"strings"
)

// Reduce hints select the prompts used when partial summaries are merged.
const (
	// HintCombine merges chunk summaries of one file.
	HintCombine = "combine"
	// HintRepo produces the repository overview.
	HintRepo = "repo"
)

const defaultInstruction = "Summarize source code file briefly."

var instructions = map[string]string{
	"dockerfile":       "Summarize Dockerfile: base image, steps, ports, CMD.",
	"yaml":             "Summarize Kubernetes manifest: deployments, services, ports.",
	"yml":              "Summarize Kubernetes manifest: deployments, services, ports.",
	"requirements.txt": "Summarize Python dependencies and their purpose.",
	"package.json":     "Summarize Node.js project: dependencies, scripts, metadata.",
	"readme.md":        "Summarize the project purpose, features, and usage.",
	"sql":              "Summarize SQL schema and queries.",
	"js":               "Summarize JavaScript file: functions, components, and usage.",
	"py":               "Summarize Python file: functions, classes, and logic.",
	"json":             "Summarize JSON content and structure.",
}

// Instruction returns the per-type instruction for typeHint.
func Instruction(typeHint string) string {
	if s, ok := instructions[strings.ToLower(strings.TrimSpace(typeHint))]; ok {
		return s
	}
	return defaultInstruction
}

const repoPrompt = `You are a senior software engineer. Explain the functionality of the code to a junior developer.
%s
Describe in 5 sentences, max 400 words, focusing on functionality, tech stack, tools, frameworks.
Explain everything in detail but in a crisp and concise way.
Output a clean summary without newline, tab, or extra spaces.
Format as: - Key points separated by periods. - No code blocks, no JSON.`

const combinePrompt = `You are a senior engineer. The following are partial summaries of consecutive parts of one file.
Merge them into one concise summary for documentation, keeping every distinct function, component and behavior.

%s`

const filePrompt = `You are a senior engineer. Summarize this %s file for documentation.

Instructions: %s

Code/content:
%s`

// BuildPrompt renders the full prompt sent to the model.
func BuildPrompt(content, typeHint string) string {
	switch strings.ToLower(strings.TrimSpace(typeHint)) {
	case HintRepo:
		return fmt.Sprintf(repoPrompt, content)
	case HintCombine:
		return fmt.Sprintf(combinePrompt, content)
	}
	kind := strings.TrimSpace(typeHint)
	if kind == "" {
		kind = "source"
	}
	return fmt.Sprintf(filePrompt, kind, Instruction(typeHint), content)
}
