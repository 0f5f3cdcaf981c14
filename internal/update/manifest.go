package update

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/codeagentswarm/swarm-backend/internal/model"
	"gopkg.in/yaml.v3"
)

// RenderManifest writes the declarative manifest auto-updater clients fetch
// (latest.yml style):
//
//	version: 2.0.0
//	files:
//	  - url: https://x/a.dmg
//	    sha512: abc
//	    size: 100
//	path: a.dmg
//	sha512: abc
//	releaseDate: '2024-03-15T10:00:00.000Z'
func RenderManifest(d *model.UpdateDescriptor) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("failed to render manifest: nil descriptor")
	}

	files := &yaml.Node{Kind: yaml.SequenceNode}
	for _, f := range d.Files {
		files.Content = append(files.Content, mapping(
			"url", str(f.URL),
			"sha512", str(f.SHA512),
			"size", integer(f.Size),
		))
	}

	date := str(d.ReleaseDate)
	date.Style = yaml.SingleQuotedStyle

	doc := mapping(
		"version", str(d.Version),
		"files", files,
		"path", str(d.Path),
		"sha512", str(d.SHA512),
		"releaseDate", date,
	)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// mapping builds a mapping node from alternating key, value pairs.
func mapping(kv ...any) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Content = append(n.Content, str(kv[i].(string)), kv[i+1].(*yaml.Node))
	}
	return n
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func integer(v int64) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v, 10)}
}
