// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"

	"github.com/Jeff9497/200Model8Dev/internal/model"
)

const systemPromptTemplate = `You are an advanced AI assistant with access to external tools for enhanced capabilities.

AVAILABLE TOOLS:
1. web_search - Fast web search for finding current information, news, trends, and developments using DuckDuckGo
2. code_docs - Get up-to-date library documentation to ensure current, working code using Context7
3. github_search - Search GitHub repositories, code examples, and open source projects

TOOL USAGE GUIDELINES:
- Use web_search for: current events, news, trends, recent developments, real-time information
- Use code_docs for: library documentation, API references, ensuring up-to-date code examples
- Use github_search for: code examples, repositories, open source projects

CRITICAL INSTRUCTIONS:
1. ALWAYS use web_search when users ask about current events, news, trends, or any time-sensitive information
2. When you receive search results from tools, ALWAYS use them to provide a comprehensive answer
3. Do NOT refuse to use search results based on date concerns - the search engine provides the most current available information
4. Present search results in a clear, organized format with proper formatting
5. If search results seem limited, still present what was found and acknowledge the limitations

If you determine that external tools would help provide a better answer, respond with:
TOOL_REQUEST: [tool_name] | [search_query]

Examples:
- "What are trending topics in Kenya?" → "TOOL_REQUEST: web_search | trending topics Kenya current"
- "Find React tutorials" → "TOOL_REQUEST: web_search | React tutorials 2024"
- "Search for TypeScript repositories" → "TOOL_REQUEST: github_search | TypeScript"
- "Get Next.js documentation" → "TOOL_REQUEST: code_docs | Next.js"

User request: %s

Respond normally, but if you need external information, start your response with the TOOL_REQUEST format above.`

const toolResultTemplate = `%s

SEARCH RESULTS FOUND:
%s

INSTRUCTIONS:
- Use the search results above to provide a comprehensive, detailed answer
- Present the information in a clear, well-organized format
- Include specific details, links, and sources from the search results
- Do not refuse to use the results based on date concerns - present what was found
- If results are limited, acknowledge this but still present available information
- Format your response with proper headings, bullet points, and structure for readability

Please provide your answer now using the search results above:`

// BuildSystemPrompt wraps the user's text in the first-phase prompt that
// advertises the tool catalog and the directive format.
func BuildSystemPrompt(userContent string) string {
	return fmt.Sprintf(systemPromptTemplate, userContent)
}

// BuildToolResultPrompt builds the second-phase prompt embedding the tool
// envelope as indented JSON.
func BuildToolResultPrompt(userContent string, env *model.Envelope) (string, error) {
	if env == nil {
		return "", fmt.Errorf("no tool result to embed")
	}
	body, err := env.Indented()
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return fmt.Sprintf(toolResultTemplate, userContent, body), nil
}

// ErrorReply is the assistant message shown when a completion fails.
func ErrorReply(err error) string {
	msg := "Unknown error"
	if err != nil {
		msg = err.Error()
	}
	return fmt.Sprintf("Sorry, I encountered an error: %s. Please try again.", msg)
}
