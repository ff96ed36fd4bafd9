package research

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultArxivBaseURL is the arXiv Atom API endpoint.
const DefaultArxivBaseURL = "http://export.arxiv.org/api/query"

// Paper is the stored metadata of a single arXiv paper.
type Paper struct {
	ID        string   `json:"-"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Summary   string   `json:"summary"`
	PdfURL    string   `json:"pdf_url"`
	Published string   `json:"published"`
}

// ArxivClient queries the arXiv Atom API.
type ArxivClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewArxivClient creates a client for the public arXiv API.
func NewArxivClient() *ArxivClient {
	return &ArxivClient{
		BaseURL:    DefaultArxivBaseURL,
		HTTPClient: http.DefaultClient,
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Rel   string `xml:"rel,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

// Search returns up to maxResults papers relevant to the query, most
// relevant first.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "arxiv request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("arxiv returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read arxiv response")
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, errors.Wrap(err, "failed to parse arxiv feed")
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		paper := Paper{
			ID:        shortID(entry.ID),
			Title:     strings.TrimSpace(entry.Title),
			Summary:   strings.TrimSpace(entry.Summary),
			Published: publishedDate(entry.Published),
		}
		for _, author := range entry.Authors {
			paper.Authors = append(paper.Authors, author.Name)
		}
		for _, link := range entry.Links {
			if link.Title == "pdf" || link.Type == "application/pdf" {
				paper.PdfURL = link.Href
				break
			}
		}
		if paper.PdfURL == "" {
			// The pdf link mirrors the abstract URL.
			paper.PdfURL = strings.Replace(entry.ID, "/abs/", "/pdf/", 1)
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

// shortID extracts the arXiv identifier (including version) from the entry
// URL, e.g. http://arxiv.org/abs/2301.12345v1 -> 2301.12345v1.
func shortID(entryID string) string {
	if idx := strings.LastIndex(entryID, "/abs/"); idx >= 0 {
		return entryID[idx+len("/abs/"):]
	}
	return entryID
}

// publishedDate reduces the Atom timestamp to its date part.
func publishedDate(published string) string {
	if len(published) >= 10 {
		return published[:10]
	}
	return published
}
