package rag

import (
	"strings"

	"github.com/studyforge/studyforge/internal/llm"
)

const answerSystemPrompt = `You are a study assistant answering questions about a student's notes.

Rules:
- Ground every statement in the provided context when context is given
- If the context does not contain the answer, say so briefly before answering from general knowledge
- Be concise and direct
- Do not mention the context mechanism itself`

func answerMessages(contextText, question string) []llm.Message {
	var b strings.Builder
	if contextText != "" {
		b.WriteString("## Context\n")
		b.WriteString(contextText)
		b.WriteString("\n\n")
	}
	b.WriteString("## Question\n")
	b.WriteString(question)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: answerSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

const studyQuestionSystemPrompt = `You are a study question generator. Produce exactly one question and its answer from the given material.

Rules:
- Return ONLY a JSON object: {"question": "...", "answer": "..."}
- The question must be answerable from the material alone
- Match the requested difficulty
- No markdown fences, no commentary`

func studyQuestionMessages(material, difficulty string) []llm.Message {
	var b strings.Builder
	b.WriteString("Difficulty: ")
	b.WriteString(difficulty)
	b.WriteString("\n\n## Material\n")
	b.WriteString(material)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: studyQuestionSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

const enhanceSystemPrompt = `You are a study note enhancer. Rewrite the given material into a clearer, richer note.

Rules:
- Keep every fact from the material; add structure, definitions and short examples
- Use markdown headings and lists
- Do not invent facts that are not supported by the material`

func enhanceMessages(material, focus string) []llm.Message {
	var b strings.Builder
	if focus != "" {
		b.WriteString("Focus: ")
		b.WriteString(focus)
		b.WriteString("\n\n")
	}
	b.WriteString("## Material\n")
	b.WriteString(material)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: enhanceSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}
