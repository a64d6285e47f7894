package rag

import (
	"fmt"
	"unicode/utf8"
)

// noContextMarker replaces the context block when retrieval produced
// nothing usable. The model is told so explicitly instead of the request
// failing.
const noContextMarker = "No relevant context found in the document."

const qaSystemPrompt = `You are an intelligent document assistant. Your role is to answer questions about documents accurately and helpfully.

Guidelines:
1. Answer questions based ONLY on the provided context from the document
2. If the context doesn't contain enough information to answer, say so clearly
3. Be precise and accurate - don't make up information
4. Keep answers concise but comprehensive
5. Use a professional and helpful tone`

const qaCitationInstructions = `
6. When referencing specific information, mention the source (e.g., "According to Source 1..." or "As stated on Page 3...")
7. If information comes from multiple sources, acknowledge that`

const multiDocSystemPrompt = `You are a document analyst comparing and synthesizing information from multiple documents.
When answering, reference which document the information comes from.
If documents contain conflicting information, point that out.
Be comprehensive but concise.`

const suggestionSystemPrompt = `Based on the document context, the user's question, and the answer provided,
suggest 3 relevant follow-up questions the user might want to ask.
Make questions specific and directly related to the document content.
Return ONLY a JSON array of question strings, nothing else.
Example: ["Question 1?", "Question 2?", "Question 3?"]`

// suggestionContextLimit bounds the context excerpt sent with a suggestion
// request; suggestions don't need the full assembled context.
const suggestionContextLimit = 3000

func qaSystem(includeCitations bool) string {
	if includeCitations {
		return qaSystemPrompt + qaCitationInstructions
	}
	return qaSystemPrompt
}

func qaUserPrompt(contextText, question string) string {
	if contextText == "" {
		contextText = noContextMarker
	}
	return fmt.Sprintf(`Based on the following document excerpts, please answer my question.

DOCUMENT CONTEXT:
%s

MY QUESTION: %s

Please provide a helpful and accurate answer based on the context provided.`, contextText, question)
}

func multiDocUserPrompt(contextText, question string) string {
	if contextText == "" {
		contextText = noContextMarker
	}
	return fmt.Sprintf(`Context from documents:
%s

Question: %s

Please provide a comprehensive answer based on all relevant documents.`, contextText, question)
}

func suggestionUserPrompt(contextText, question, answer string) string {
	if len(contextText) > suggestionContextLimit {
		cut := suggestionContextLimit
		for cut > 0 && !utf8.RuneStart(contextText[cut]) {
			cut--
		}
		contextText = contextText[:cut]
	}
	return fmt.Sprintf(`Document context: %s

User question: %s

Answer provided: %s

Suggest 3 follow-up questions:`, contextText, question, answer)
}
