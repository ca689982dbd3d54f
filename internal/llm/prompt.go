package llm

import (
	"fmt"
	"strings"
)

// PromptContext describes one extraction call for prompt construction.
// ChunkIndex/TotalChunks are zero for unchunked documents; Accumulated is
// the partial result JSON carried forward from earlier chunks.
type PromptContext struct {
	SchemaName        string
	SchemaDescription string
	ChunkIndex        int
	TotalChunks       int
	Accumulated       []byte
}

// BuildSystemPrompt composes the system message for an extraction call.
// For chunk index > 0 the prompt states that this is a continuation and
// instructs the model to preserve and extend the previous partial result.
func BuildSystemPrompt(pc PromptContext) string {
	if pc.TotalChunks <= 1 {
		return strings.Join([]string{
			"You are a document data extraction specialist.",
			"Given a document, extract structured information strictly according to the provided schema.",
			"Use the field descriptions as guidance for what information to extract.",
			"Be thorough and accurate. If a field's data is not found in the document, use null.",
			"Return ONLY the structured data as JSON, with no explanations.",
		}, " ")
	}
	if pc.ChunkIndex == 0 {
		return strings.Join([]string{
			"You are a document data extraction specialist.",
			"You are processing a LONG document in multiple chunks. This is the FIRST chunk.",
			"Extract structured information strictly according to the provided schema.",
			"Use the field descriptions as guidance.",
			"If a field's data is not found yet, use null.",
			"For array fields, include all items found in this chunk.",
			"Return ONLY the structured data as JSON, with no explanations.",
		}, " ")
	}
	return strings.Join([]string{
		"You are a document data extraction specialist.",
		fmt.Sprintf("You are processing chunk %d of %d of a long document.", pc.ChunkIndex+1, pc.TotalChunks),
		"CRITICAL RULES:",
		"You will receive a PREVIOUS RESULT (JSON) and a NEW CHUNK of text.",
		"The PREVIOUS RESULT contains ALL data extracted from earlier chunks. You MUST preserve every single value in it.",
		"Read the NEW CHUNK and extract any additional information according to the schema.",
		"MERGE the new data INTO the previous result:",
		"array fields: APPEND new items to the existing array, NEVER remove existing items;",
		"scalar fields: KEEP the existing value unless it is null and the new chunk has a value;",
		"object fields: recursively merge sub-fields using the same rules.",
		"If the new chunk has no relevant new data, return the previous result unchanged.",
		"Return ONLY the structured JSON, with no explanations.",
	}, " ")
}

// BuildUserPrompt packages the chunk text, prefixing the accumulated
// partial result for continuation calls.
func BuildUserPrompt(pc PromptContext, chunkText string) string {
	if pc.ChunkIndex == 0 || len(pc.Accumulated) == 0 {
		return chunkText
	}
	var b strings.Builder
	b.WriteString("=== PREVIOUS RESULT (preserve ALL of this data) ===\n")
	b.WriteString("```json\n")
	b.Write(pc.Accumulated)
	b.WriteString("\n```\n\n")
	b.WriteString("=== NEW CHUNK (extract new data from this and merge) ===\n")
	b.WriteString(chunkText)
	return b.String()
}

// BuildRepairPrompt re-asks after a schema-validation failure, appending
// the validation error so the model can fix its own output.
func BuildRepairPrompt(userPrompt string, invalid []byte, validationErr error) string {
	var b strings.Builder
	b.WriteString(userPrompt)
	b.WriteString("\n\n=== PREVIOUS ATTEMPT (INVALID) ===\n```json\n")
	b.Write(invalid)
	b.WriteString("\n```\n\nThe previous attempt did not conform to the schema: ")
	b.WriteString(validationErr.Error())
	b.WriteString("\nReturn corrected JSON that strictly matches the schema.")
	return b.String()
}
