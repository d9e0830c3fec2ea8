package markdown

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// splitFrontmatter separates `---` delimited YAML frontmatter from the body.
// Documents without a leading delimiter pass through untouched.
func splitFrontmatter(content []byte) (raw []byte, body []byte, had bool, err error) {
	open := []byte("---\n")
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return []byte{}, rest[len(open):], true, nil
	}

	closeSeq := []byte("\n---\n")
	idx := bytes.Index(rest, closeSeq)
	if idx < 0 {
		return nil, nil, false, fmt.Errorf("frontmatter missing closing delimiter")
	}
	return rest[:idx+1], rest[idx+len(closeSeq):], true, nil
}

// parseFrontmatter decodes raw YAML frontmatter into a map.
func parseFrontmatter(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	return fields, nil
}
