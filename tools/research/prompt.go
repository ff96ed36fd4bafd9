package research

import (
	"fmt"

	"github.com/effective-security/x/values"
	"github.com/papermind-ai/papermind/mcp"
)

// GenerateSearchPromptName is the name of the research prompt template.
const GenerateSearchPromptName = "generate_search_prompt"

// SearchPromptArgs are the arguments of the generate_search_prompt template.
type SearchPromptArgs struct {
	Topic     string `json:"topic" jsonschema:"title=topic,description=The research topic to investigate."`
	NumPapers int    `json:"num_papers,omitempty" jsonschema:"title=num_papers,description=Number of papers to include in the analysis."`
}

// RegisterPrompts exposes the research prompt templates on the server.
func RegisterPrompts(server *mcp.Server) error {
	return server.RegisterPrompt(
		GenerateSearchPromptName,
		"Generate a prompt for searching and analyzing academic papers on a topic.",
		func(args SearchPromptArgs) (*mcp.PromptResponse, error) {
			text := SearchPromptText(args.Topic, values.NumbersCoalesce(args.NumPapers, DefaultMaxResults))
			return mcp.NewPromptResponse(
				"Search and analyze academic papers on "+args.Topic,
				mcp.NewPromptMessage(mcp.NewTextContent(text), mcp.RoleUser),
			), nil
		},
	)
}

// SearchPromptText builds the instruction text that drives a paper search and
// analysis session.
func SearchPromptText(topic string, numPapers int) string {
	return fmt.Sprintf(`Search for %d academic papers about '%s' using the search_papers tool. Follow these instructions:
1. First, search for papers using search_papers(topic='%s', max_results=%d)
2. For each paper found, extract and organize the following information:
   - Paper title
   - Authors
   - Publication date
   - Brief summary of the key findings
   - Main contributions or innovations
   - Methodologies used
   - Relevance to the topic '%s'

3. Provide a comprehensive summary that includes:
   - Overview of the current state of research in '%s'
   - Common themes and trends across the papers
   - Key research gaps or areas for future investigation
   - Most impactful or influential papers in this area

4. Organize your findings in a clear, structured format with headings and bullet points for easy readability.

Please present both detailed information about each paper and a high-level synthesis of the research landscape in %s.`,
		numPapers, topic, topic, numPapers, topic, topic, topic)
}
