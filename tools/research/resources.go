package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/papermind-ai/papermind/mcp"
)

// RegisterResources exposes the paper store on the server as resources:
// papers://folders lists the saved topics, and papers://{topic} renders the
// papers of one topic.
func RegisterResources(server *mcp.Server, store *Store) error {
	err := server.RegisterResource(
		FoldersResourceURI,
		"folders",
		"List all available research topic folders.",
		"text/markdown",
		func() (*mcp.ResourceResponse, error) {
			return mcp.NewResourceResponse(
				mcp.NewTextEmbeddedResource(FoldersResourceURI, FoldersMarkdown(store), "text/markdown"),
			), nil
		},
	)
	if err != nil {
		return errors.WithMessage(err, "failed to register folders resource")
	}

	err = server.RegisterResourceTemplate(
		TopicResourcePrefix+"{topic}",
		"topic-papers",
		"Papers saved for a specific research topic.",
		"text/markdown",
	)
	if err != nil {
		return errors.WithMessage(err, "failed to register topic template")
	}

	server.SetResourceFallbackHandler(func(ctx context.Context, uri string) (*mcp.ResourceResponse, error) {
		topic, ok := strings.CutPrefix(uri, TopicResourcePrefix)
		if !ok || topic == "" {
			return nil, errors.Errorf("unknown resource: %s", uri)
		}
		return mcp.NewResourceResponse(
			mcp.NewTextEmbeddedResource(uri, TopicMarkdown(store, topic), "text/markdown"),
		), nil
	})

	return nil
}

// FoldersMarkdown renders the saved topics as a markdown list.
func FoldersMarkdown(store *Store) string {
	topics := store.Topics()

	var sb strings.Builder
	sb.WriteString("# Available Topics\n\n")
	if len(topics) == 0 {
		sb.WriteString("No research topics available yet.")
		return sb.String()
	}

	for _, topic := range topics {
		fmt.Fprintf(&sb, "- %s\n", titleCase(strings.ReplaceAll(topic, "_", " ")))
	}
	fmt.Fprintf(&sb, "\nUse @%s to access papers in that topic.\n", topics[0])
	return sb.String()
}

// TopicMarkdown renders the papers of one topic as markdown.
func TopicMarkdown(store *Store, topic string) string {
	entries, exists, err := store.TopicPapers(topic)
	if !exists {
		return fmt.Sprintf("# No papers found for topic: %s\nTry searching for papers on this topic", topic)
	}
	if err != nil {
		return fmt.Sprintf("# Error reading papers data for %s\n\nThe file is corrupted", topic)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Papers on %s\n\nTotal papers: %d\n\n", strings.ReplaceAll(topic, "_", " "), len(entries))
	for _, entry := range entries {
		fmt.Fprintf(&sb, "\n## %s\n", entry.Paper.Title)
		fmt.Fprintf(&sb, "- **Paper ID**: %s\n", entry.ID)
		fmt.Fprintf(&sb, "- **Authors**: %s\n", strings.Join(entry.Paper.Authors, ", "))
		fmt.Fprintf(&sb, "- **Published**: %s\n", entry.Paper.Published)
		fmt.Fprintf(&sb, "- **PDF URL**: %s\n", entry.Paper.PdfURL)
		fmt.Fprintf(&sb, "### Summary\n%s\n\n\n", entry.Paper.Summary)
	}
	return sb.String()
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
