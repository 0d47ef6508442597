// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// CodeBlock is the first fenced code block of an assistant reply.
type CodeBlock struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Filename    string `json:"filename,omitempty"`
	Description string `json:"description,omitempty"`
}

// Pre-compiled patterns for code block extraction.
var (
	codeFenceRegex = regexp.MustCompile("```(\\w+)?\\n([\\s\\S]*?)```")
	filenameRegex  = regexp.MustCompile(`(?i)(?:file|filename|save as|create):\s*([^\s]+\.\w+)`)
)

// ExtractCodeBlock returns the first fenced code block in content, or nil.
// Untagged fences get a language guessed from the code, falling back to "text".
func ExtractCodeBlock(content string) *CodeBlock {
	m := codeFenceRegex.FindStringSubmatch(content)
	if m == nil {
		return nil
	}

	code := strings.TrimSpace(m[2])
	language := m[1]
	if language == "" {
		language = guessLanguage(code)
	}

	block := &CodeBlock{
		Language:    language,
		Code:        code,
		Description: "Generated " + language + " code",
	}
	if fm := filenameRegex.FindStringSubmatch(content); fm != nil {
		block.Filename = fm[1]
	}
	return block
}

func guessLanguage(code string) string {
	if code == "" {
		return "text"
	}
	lexer := lexers.Analyse(code)
	if lexer == nil {
		return "text"
	}
	cfg := lexer.Config()
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}
