package converter

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// RenderPayload renders lines as a mihomo payload document:
//
//	payload:
//	  - '+.example.com'
//	  - 'DOMAIN,example.org'
//
// Every entry is single quoted and written verbatim.
func RenderPayload(lines []string) ([]byte, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, line := range lines {
		seq.Content = append(seq.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Style: yaml.SingleQuotedStyle,
			Value: line,
		})
	}
	doc := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: "payload"},
			seq,
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderList renders one line per entry with a trailing newline.
func RenderList(lines []string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}
