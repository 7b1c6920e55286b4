// Package compaction implements the history-compaction algorithm of §4.3:
// replacing an over-budget transcript with a single self-summarization
// request.
package compaction

import (
	"fmt"
	"strings"

	"github.com/sven-run/sven/internal/session"
	"github.com/sven-run/sven/pkg/models"
)

// DefaultThreshold is the operator-overridable compaction_threshold (§4.3).
const DefaultThreshold = 0.8

// CompactionPrompt precedes the serialized transcript in the synthesized
// user message.
const CompactionPrompt = "The conversation above is getting long. Summarize everything important " +
	"for continuing this work: goals, decisions, file state, and open threads. " +
	"Be thorough but concise."

// Result reports the token counts observed around a Compact call, feeding
// the ContextCompacted event (§4.3 step 4).
type Result struct {
	TokensBefore int
	TokensAfter  int
}

// ShouldCompact implements the §4.3 trigger: used = approx_prompt_tokens +
// reserved_output; compact when used is at or above threshold * contextWindow.
func ShouldCompact(promptTokens, reservedOutput, contextWindow int, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	used := promptTokens + reservedOutput
	return float64(used) >= threshold*float64(contextWindow)
}

// Compact rewrites sess's history per the §4.3 algorithm: the leading
// system message (if any) survives; everything else is serialized to a
// plain-text transcript and replaced by one user message carrying the
// compaction prompt plus the transcript.
func Compact(sess *session.Session) Result {
	before := sess.Messages()
	tokensBefore := sumTokens(before)

	var system *models.Message
	rest := before
	if len(before) > 0 && before[0].Role == models.RoleSystem {
		s := before[0]
		system = &s
		rest = before[1:]
	}

	transcript := serializeTranscript(rest)
	summaryRequest := models.NewUserMessage(CompactionPrompt + "\n\n---\n\n" + transcript)

	var replacement []models.Message
	if system != nil {
		replacement = append(replacement, *system)
	}
	replacement = append(replacement, summaryRequest)

	sess.ReplaceHistory(replacement)
	tokensAfter := sumTokens(replacement)

	return Result{TokensBefore: tokensBefore, TokensAfter: tokensAfter}
}

func sumTokens(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		total += m.ApproxTokens()
	}
	return total
}

// serializeTranscript renders msgs as a plain-text transcript per §4.3 step
// 2: a role prefix followed by the message's textual rendering, skipping
// any (non-leading) system messages.
func serializeTranscript(msgs []models.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			continue
		case models.RoleUser:
			fmt.Fprintf(&b, "User: %s\n", m.Text())
		case models.RoleAssistant:
			if m.Call != nil {
				fmt.Fprintf(&b, "Assistant: [tool_call: %s(%s)]\n", m.Call.Name, m.Call.Args)
			} else {
				fmt.Fprintf(&b, "Assistant: %s\n", m.Text())
			}
		case models.RoleTool:
			content := ""
			if m.Result != nil {
				for _, p := range m.Result.Parts {
					if p.Type == models.PartText {
						content += p.Text
					}
				}
			}
			fmt.Fprintf(&b, "Tool: [tool_result: %s]\n", content)
		}
	}
	return b.String()
}
