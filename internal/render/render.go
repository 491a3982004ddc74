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

// Package render prints chain results for terminals.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ngnhng/durableai/internal/chain"
)

const width = 72

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Border(lipgloss.DoubleBorder()).
			Padding(0, 1).
			Width(width)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	bodyStyle    = lipgloss.NewStyle().Width(width).PaddingLeft(2)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	failStyle    = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Width(width)
)

// Banner prints a boxed title.
func Banner(w io.Writer, title string) {
	fmt.Fprintln(w, titleStyle.Render(title))
}

// Result prints every field of res.
func Result(w io.Writer, res chain.Result) {
	var b strings.Builder
	section := func(heading, body string) {
		b.WriteString("\n" + headingStyle.Render(heading) + "\n")
		b.WriteString(bodyStyle.Render(body) + "\n")
	}

	section("Topic", res.Topic)
	section("Word Count", res.ContentWordCount)
	section("Generated Content", res.GeneratedContent)
	section("Analysis", res.Analysis)
	section("Final Summary", res.FinalSummary)

	points := make([]string, 0, len(res.Points()))
	for _, p := range res.Points() {
		points = append(points, "• "+p)
	}
	section("Key Points", strings.Join(points, "\n"))
	fmt.Fprint(w, b.String())
}

// Failure prints a chain failure.
func Failure(w io.Writer, err error) {
	fmt.Fprintln(w, failStyle.Render("✗ "+err.Error()))
}

// Steps prints one line per step of st with its attempts and retry errors.
func Steps(w io.Writer, st chain.Status) {
	fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("Run %s: %s", st.WorkflowID, st.Status)))
	for _, s := range st.Steps {
		fmt.Fprintf(w, "  %-11s %-10s attempts=%d\n", s.Step, s.Status, s.Attempts)
		for _, r := range s.Retries {
			fmt.Fprintf(w, "    retry after attempt %d (%dms): %s\n", r.Attempt, r.NextRetryDelay, r.Error)
		}
		if s.Error != "" {
			fmt.Fprintf(w, "    %s\n", errorStyle.Render(s.Error))
		}
	}
}
