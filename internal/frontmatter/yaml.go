package frontmatter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// Split separates a leading `---` block from the note body. ok is false when
// the content has no frontmatter block, in which case body is the content.
func Split(content string) (yamlText, body string, ok bool) {
	if !strings.HasPrefix(content, delimiter+"\n") && !strings.HasPrefix(content, delimiter+"\r\n") {
		return "", content, false
	}
	lines := strings.SplitAfter(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			return strings.Join(lines[1:i], ""), strings.Join(lines[i+1:], ""), true
		}
	}
	return "", content, false
}

// Parse reads the frontmatter of a note. Content without a frontmatter block
// yields an empty map and the full content as body.
func Parse(content string) (Map, string, error) {
	yamlText, body, ok := Split(content)
	if !ok {
		return Map{}, content, nil
	}
	m, err := ParseYAML([]byte(yamlText))
	if err != nil {
		return Map{}, body, err
	}
	return m, body, nil
}

// ParseYAML decodes a YAML mapping into an ordered Map.
func ParseYAML(data []byte) (Map, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Map{}, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Map{}, fmt.Errorf("failed to parse YAML frontmatter: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return Map{}, nil
		}
		root = root.Content[0]
	}
	root = resolveAlias(root)
	if root.Kind != yaml.MappingNode {
		return Map{}, fmt.Errorf("frontmatter must be a mapping, got %s", nodeKind(root))
	}
	return mappingToMap(root), nil
}

// Render writes m as a frontmatter block including both delimiters. An empty
// map renders as an empty string.
func Render(m Map) (string, error) {
	if m.Len() == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(mapToNode(m)); err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	return delimiter + "\n" + buf.String() + delimiter + "\n", nil
}

// Compose renders m followed by body.
func Compose(m Map, body string) (string, error) {
	head, err := Render(m)
	if err != nil {
		return "", err
	}
	return head + body, nil
}

func mappingToMap(node *yaml.Node) Map {
	var m Map
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := resolveAlias(node.Content[i])
		m.Set(key.Value, nodeToValue(node.Content[i+1]))
	}
	return m
}

func nodeToValue(node *yaml.Node) Value {
	node = resolveAlias(node)
	switch node.Kind {
	case yaml.MappingNode:
		return Object(mappingToMap(node))
	case yaml.SequenceNode:
		items := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			items = append(items, nodeToValue(child).AsString())
		}
		return List(items...)
	case yaml.ScalarNode:
		switch node.ShortTag() {
		case "!!int", "!!float":
			if n, err := strconv.ParseFloat(strings.ReplaceAll(node.Value, "_", ""), 64); err == nil {
				return Number(n)
			}
			return String(node.Value)
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err == nil {
				return Bool(b)
			}
			return String(node.Value)
		case "!!null":
			return String("")
		default:
			return String(node.Value)
		}
	default:
		return String("")
	}
}

func mapToNode(m Map) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range m.Keys() {
		v, _ := m.Get(key)
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			valueToNode(v),
		)
	}
	return node
}

func valueToNode(v Value) *yaml.Node {
	switch v.Kind() {
	case KindNumber:
		tag := "!!float"
		if v.num == float64(int64(v.num)) {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.AsString()}
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: v.AsString()}
	case KindList:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(v.list) == 0 {
			seq.Style = yaml.FlowStyle
		}
		for _, item := range v.list {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
		}
		return seq
	case KindObject:
		if v.obj == nil {
			return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: yaml.FlowStyle}
		}
		return mapToNode(*v.obj)
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.str}
	}
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "unknown"
	}
}
