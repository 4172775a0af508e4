package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// Format selects a file encoding.
type Format string

// Supported encodings.
const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts the format names used in configuration.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	default:
		return "json"
	}
}

// ContentType returns the MIME type used for uploads.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json"
	}
}

// Encode renders result in format f.
func Encode(f Format, result crawler.CrawlResult) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return data, nil
	case FormatMarkdown:
		return encodeMarkdown(result)
	default:
		return nil, fmt.Errorf("unknown report format %q", f)
	}
}

func encodeMarkdown(result crawler.CrawlResult) ([]byte, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Crawl Report: " + result.Query)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + result.RunID + "`"},
			{"Backend", string(result.Backend)},
			{"Started", result.StartedAt.Format(time.RFC3339)},
			{"Finished", result.FinishedAt.Format(time.RFC3339)},
			{"Records", strconv.Itoa(len(result.Records))},
			{"Failures", strconv.Itoa(len(result.Failures))},
		},
	})
	md.PlainText("")

	md.H2("Records")
	md.PlainText("")
	if len(result.Records) == 0 {
		md.PlainText("No records extracted.")
	} else {
		rows := make([][]string, 0, len(result.Records))
		for _, rec := range result.Records {
			rows = append(rows, []string{
				escapeCell(rec.Title),
				escapeCell(rec.Feature),
				strconv.Itoa(len(rec.Images)),
				rec.URL,
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Title", "Feature", "Images", "URL"},
			Rows:   rows,
		})
	}
	md.PlainText("")

	if len(result.Failures) > 0 {
		md.H2("Failures")
		md.PlainText("")
		rows := make([][]string, 0, len(result.Failures))
		for _, f := range result.Failures {
			rows = append(rows, []string{f.URL, string(f.Kind), escapeCell(f.Error)})
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Kind", "Error"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("Generated by catalog-crawler")
	if err := md.Build(); err != nil {
		return nil, fmt.Errorf("encode markdown: %w", err)
	}
	return buf.Bytes(), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
