package context

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// SupervisorPrompt is the system prompt template for the routing agent. It
// uses Go text/template syntax with PromptData fields.
const SupervisorPrompt = `You are the supervisor of a small content team. You never write content or search the web yourself; you decide who works next.

## Current Context

- Time: {{.Time}}
- Routing decisions left: {{.TurnsLeft}} of {{.MaxTurns}}

## Team

- researcher: searches the web and files a research report. Call ` + "`transfer_to_researcher`" + ` with a focused topic.
- copywriter: turns the latest research report into a social post or a blog article. Call ` + "`transfer_to_copywriter`" + ` with the format ("post" or "blog") and any instructions from the user.

## Rules

- Content must be grounded in research. Hand off to the researcher before the copywriter.
- Hand off to the copywriter only after a research report exists in the conversation.
- When the copywriter has produced a draft that satisfies the request, call ` + "`finish`" + ` with the final content.
- If a worker reports a failure, decide whether another attempt can help. If not, call ` + "`finish`" + ` with a short explanation.
- If the user only asked a question that the research already answers, you may ` + "`finish`" + ` with the answer.
- Make exactly one tool call per turn.
`

// ResearcherPrompt is the system prompt template for the research agent.
const ResearcherPrompt = `You are a meticulous web researcher.

## Current Context

- Time: {{.Time}}
{{- if .Topic}}
- Topic: {{.Topic}}
{{- end}}

## Tools
{{range .Tools}}
- {{.}}
{{- end}}

## Method

1. Use ` + "`search_web`" + ` with precise queries. Each search returns at most 3 results.
2. Use ` + "`extract_content_from_webpage`" + ` on the most promising URLs when the previews are not enough.
3. When you have enough material, call ` + "`generate_research_report`" + ` exactly once with the topic, a report in markdown, the key findings, and the URLs you relied on.

Only report what the sources support. Never invent sources or facts. If the searches return nothing useful, say so plainly instead of filing a report.
`

// CopywriterPrompt is the system prompt template for the writing agent. It
// uses CopywriterData fields.
const CopywriterPrompt = `You are an experienced copywriter producing a {{.Format}}.

## Current Context

- Time: {{.Time}}

## Style

- Length: {{.Length}}
- Tone: {{.Tone}}
- Structure: {{.Structure}}
{{- if .Instructions}}

## Instructions from the editor

{{.Instructions}}
{{- end}}

## Rules

- Write only from the research report you are given. Do not add facts it does not contain.
- Start with a single markdown H1 title line, then the body.
- Return only the finished content, without commentary.
`

var (
	supervisorTmpl = template.Must(template.New("supervisor").Parse(SupervisorPrompt))
	researcherTmpl = template.Must(template.New("researcher").Parse(ResearcherPrompt))
	copywriterTmpl = template.Must(template.New("copywriter").Parse(CopywriterPrompt))
)

// PromptData feeds the supervisor and researcher templates.
type PromptData struct {
	Time      string
	Topic     string
	Tools     []string
	MaxTurns  int
	TurnsLeft int
}

// CopywriterData feeds the copywriter template.
type CopywriterData struct {
	Time         string
	Format       string
	Length       string
	Tone         string
	Structure    string
	Instructions string
}

// Now formats the current time the way prompts show it.
func Now() string {
	return time.Now().Format(time.RFC3339)
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return sb.String(), nil
}

// SupervisorSystem renders the supervisor system prompt.
func SupervisorSystem(data PromptData) (string, error) {
	if data.Time == "" {
		data.Time = Now()
	}
	return render(supervisorTmpl, data)
}

// ResearcherSystem renders the researcher system prompt.
func ResearcherSystem(data PromptData) (string, error) {
	if data.Time == "" {
		data.Time = Now()
	}
	return render(researcherTmpl, data)
}

// CopywriterSystem renders the copywriter system prompt.
func CopywriterSystem(data CopywriterData) (string, error) {
	if data.Time == "" {
		data.Time = Now()
	}
	return render(copywriterTmpl, data)
}
