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

// Package chain runs a fixed sequence of language model calls: generate a
// text about a topic, analyze it, synthesize a summary and extract key
// points. Each call is one step; the chain is driven either by a durable
// workflow or directly.
package chain

import "strings"

type StepID string

const (
	StepGenerate   StepID = "generate"
	StepAnalyze    StepID = "analyze"
	StepSynthesize StepID = "synthesize"
	StepExtract    StepID = "extract"
)

// Order is the only order steps may complete in.
var Order = []StepID{StepGenerate, StepAnalyze, StepSynthesize, StepExtract}

const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"

	DefaultLength = LengthMedium
)

// Input is what a chain is invoked with.
type Input struct {
	Topic  string `json:"topic"`
	Length string `json:"length"`
}

// Normalized fills in the default length.
func (in Input) Normalized() Input {
	if strings.TrimSpace(in.Length) == "" {
		in.Length = DefaultLength
	}
	return in
}

// GeneratedContent is the output of the generate step.
type GeneratedContent struct {
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// Analysis is the output of the analyze step.
type Analysis struct {
	Analysis string `json:"analysis"`
}

// Synthesis is the output of the synthesize step, with the rune lengths of
// its two inputs.
type Synthesis struct {
	FinalSummary          string `json:"final_summary"`
	OriginalContentLength string `json:"original_content_length"`
	AnalysisLength        string `json:"analysis_length"`
}

// Result is the aggregate of a finished chain. Every field is always
// present, even when a step produced an empty string.
type Result struct {
	Topic            string `json:"topic"`
	GeneratedContent string `json:"generated_content"`
	ContentWordCount string `json:"content_word_count"`
	Analysis         string `json:"analysis"`
	FinalSummary     string `json:"final_summary"`
	KeyPoints        string `json:"key_points"`
}

// KeyPointSeparator joins the extracted points in Result.KeyPoints.
const KeyPointSeparator = "; "

// Map returns the result keyed by its wire field names.
func (r Result) Map() map[string]string {
	return map[string]string{
		"topic":              r.Topic,
		"generated_content":  r.GeneratedContent,
		"content_word_count": r.ContentWordCount,
		"analysis":           r.Analysis,
		"final_summary":      r.FinalSummary,
		"key_points":         r.KeyPoints,
	}
}

// Points splits KeyPoints back into its entries.
func (r Result) Points() []string {
	if r.KeyPoints == "" {
		return nil
	}
	parts := strings.Split(r.KeyPoints, ";")
	points := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
	}
	return points
}
