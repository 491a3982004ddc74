// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chain

import (
	"fmt"
	"strings"

	"github.com/ngnhng/durableai/internal/llm"
)

const DefaultModel = "gpt-3.5-turbo"

// synthesizeExcerpt is how many characters of the generated text the
// synthesize prompt quotes.
const synthesizeExcerpt = 200

const (
	generateSystem   = "You are a content writer who creates informative and engaging text."
	analyzeSystem    = "You are a content analyst. Analyze text and provide insights in JSON format."
	synthesizeSystem = "You are a content curator who creates engaging summaries."
	extractSystem    = "Extract 3-5 key bullet points from the text."

	analyzeMaxTokens    = 200
	synthesizeMaxTokens = 150
	extractMaxTokens    = 200
)

// TokenBudget maps a length category to the generate step's max tokens.
func TokenBudget(length string) int {
	switch length {
	case LengthShort:
		return 150
	case LengthMedium:
		return 300
	case LengthLong:
		return 500
	default:
		return 150
	}
}

func generateRequest(model, topic, length string) llm.Request {
	return llm.Request{
		Model: model,
		Messages: []llm.Message{
			llm.System(generateSystem),
			llm.User(fmt.Sprintf("Write a %s explanation about %s. Focus on key concepts and practical applications.", length, topic)),
		},
		MaxTokens: TokenBudget(length),
	}
}

func analyzeRequest(model, content string) llm.Request {
	return llm.Request{
		Model: model,
		Messages: []llm.Message{
			llm.System(analyzeSystem),
			llm.User("Analyze the following content and provide:\n" +
				"1. Sentiment (positive/neutral/negative)\n" +
				"2. One-sentence summary\n" +
				"3. Key insights (comma-separated)\n\n" +
				"Content: " + content),
		},
		MaxTokens: analyzeMaxTokens,
	}
}

func synthesizeRequest(model, content, analysis string) llm.Request {
	return llm.Request{
		Model: model,
		Messages: []llm.Message{
			llm.System(synthesizeSystem),
			llm.User("Create a concise, engaging summary that combines:\n" +
				"- The main content\n" +
				"- The key analysis points\n\n" +
				"Content: " + Truncate(content, synthesizeExcerpt) + "...\n" +
				"Analysis: " + analysis + "\n\n" +
				"Provide a summary that highlights the most important aspects in 2-3 sentences."),
		},
		MaxTokens: synthesizeMaxTokens,
	}
}

func extractRequest(model, combined string) llm.Request {
	return llm.Request{
		Model: model,
		Messages: []llm.Message{
			llm.System(extractSystem),
			llm.User("Extract the main takeaways as bullet points:\n\n" + combined),
		},
		MaxTokens: extractMaxTokens,
	}
}

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func WordCount(s string) int {
	return len(strings.Fields(s))
}

// ExtractKeyPoints splits a bulleted reply into points: one per line, with
// "- " markers and surrounding whitespace stripped and empty lines dropped.
// A line holding only a marker is empty once stripped and is dropped too.
func ExtractKeyPoints(text string) []string {
	var points []string
	for line := range strings.Lines(text) {
		p := strings.TrimSpace(strings.Trim(line, "- \r\n"))
		if p != "" {
			points = append(points, p)
		}
	}
	return points
}

// Combine joins the texts fed to the extract step.
func Combine(content, analysis, summary string) string {
	return content + "\n\n" + analysis + "\n\n" + summary
}

func joinPoints(points []string) string {
	return strings.Join(points, KeyPointSeparator)
}

func runeLen(s string) string {
	return fmt.Sprint(len([]rune(s)))
}
