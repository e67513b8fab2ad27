package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/w-h-a/grounded/evidence"
)

// NoInformation is the sentence the generator is told to reply with when
// the evidence does not answer the question.
const NoInformation = "I don't have enough verified information to answer that."

const system = `You are a cryptocurrency assistant. Answer ONLY from the numbered evidence below.
Rules:
- Every factual sentence must end with the citation marker of the evidence it uses, e.g. [1] or [1][2].
- Do not use any knowledge that is not in the evidence.
- Do not give financial or investment advice or price predictions.
- If the evidence does not answer the question, reply exactly: "` + NoInformation + `"
- Keep the answer concise.`

// Grounded builds the generation prompt. Only the evidence items and their
// citation ids are given to the model.
func Grounded(query string, items []evidence.Item) string {
	var sb strings.Builder

	sb.WriteString(system)
	sb.WriteString("\n\nEvidence:\n")

	for _, item := range items {
		sb.WriteString(fmt.Sprintf("[%d] (%s", item.CitationId, item.Origin))
		if item.Stale {
			sb.WriteString(", stale")
		}
		sb.WriteString(") ")
		sb.WriteString(strings.TrimSpace(item.Text))
		sb.WriteString("\n")
	}

	sb.WriteString("\nQuestion:\n")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\nAnswer:\n")

	return sb.String()
}

func OutOfScope() string {
	return "I can only answer questions about cryptocurrencies, blockchain technology and crypto markets."
}

func InvestmentAdvice() string {
	return "I can't give financial or investment advice or predict prices. I can explain how an asset works or show its current market data."
}

// InsufficientEvidence suggests what the knowledge base does cover.
func InsufficientEvidence(topics []string) string {
	msg := NoInformation
	if len(topics) == 0 {
		return msg
	}

	seen := map[string]struct{}{}
	var uniq []string
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if len(t) == 0 {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	if len(uniq) == 0 {
		return msg
	}

	sort.Strings(uniq)

	return msg + " You could ask about: " + strings.Join(uniq, ", ") + "."
}

func GenerationFailure() string {
	return "I couldn't produce a verified answer right now. Please try again shortly."
}

func Ambiguous() string {
	return "I'm not sure which asset you mean. Could you name it?"
}

// StaleNotice prefixes answers that rely on market data past its refresh interval.
func StaleNotice(items []evidence.Item) string {
	var sources []string
	for _, item := range items {
		if item.Origin == evidence.API && item.Stale {
			sources = append(sources, fmt.Sprintf("[%d] as of %s", item.CitationId, item.Timestamp.UTC().Format("2006-01-02 15:04 MST")))
		}
	}
	if len(sources) == 0 {
		return ""
	}
	return "Note: some market data may be out of date (" + strings.Join(sources, "; ") + ")."
}
