package reportrag

import (
	"fmt"
	"strings"

	"github.com/flarexio/reportrag/vector"
)

const promptHeader = "You are an expert on the Annual Report.\n" +
	"Use *only* these excerpts (cite pages) to answer:\n\n"

// FormatPrompt renders excerpts in the given order followed by the
// question cue.
func FormatPrompt(question string, excerpts []vector.Result) string {
	var sb strings.Builder

	sb.WriteString(promptHeader)
	for _, excerpt := range excerpts {
		fmt.Fprintf(&sb, "(p.%d) \"%s\"\n\n", excerpt.Metadata.Page, excerpt.Document)
	}

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")

	return sb.String()
}
