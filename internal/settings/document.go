// Package settings persists the single JSON settings document shared by every
// component. Sections owned by other packages are kept as raw JSON so this
// package never depends on their types.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaVersion is written on every save. Documents without the field are
// version 1.
const SchemaVersion = 2

type PapersSettings struct {
	Root           string `json:"root,omitempty"`
	IndexFile      string `json:"indexFile,omitempty"`
	RebuildDelayMs int    `json:"rebuildDelayMs,omitempty"`
}

type FeedsSettings struct {
	Folder     string `json:"folder,omitempty"`
	ClipFolder string `json:"clipFolder,omitempty"`
}

type ChatSettings struct {
	SystemPrompt string `json:"systemPrompt,omitempty"`
	HistoryTurns int    `json:"historyTurns,omitempty"`
	MaxTokens    int    `json:"maxTokens,omitempty"`
	MergePolicy  string `json:"mergePolicy,omitempty"`
}

// Document is the persisted settings blob.
type Document struct {
	SchemaVersion int            `json:"schemaVersion"`
	Papers        PapersSettings `json:"papers"`
	Feeds         FeedsSettings  `json:"feeds"`
	Chat          ChatSettings   `json:"chat"`

	Discussions             json.RawMessage `json:"discussions,omitempty"`
	GlobalDiscussionHistory json.RawMessage `json:"globalDiscussionHistory,omitempty"`
	ChatConversations       json.RawMessage `json:"chatConversations,omitempty"`

	// Extra holds unknown top-level keys so they survive a save.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownKeys = map[string]bool{
	"schemaVersion":           true,
	"papers":                  true,
	"feeds":                   true,
	"chat":                    true,
	"discussions":             true,
	"globalDiscussionHistory": true,
	"chatConversations":       true,
}

type documentAlias Document

// UnmarshalJSON decodes known sections and keeps the rest in Extra. A missing
// schemaVersion decodes as 1.
func (d *Document) UnmarshalJSON(data []byte) error {
	var alias documentAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Document(alias)
	if _, ok := raw["schemaVersion"]; !ok || d.SchemaVersion == 0 {
		d.SchemaVersion = 1
	}
	d.Discussions = nullToEmpty(d.Discussions)
	d.GlobalDiscussionHistory = nullToEmpty(d.GlobalDiscussionHistory)
	d.ChatConversations = nullToEmpty(d.ChatConversations)
	for key, value := range raw {
		if knownKeys[key] {
			continue
		}
		if d.Extra == nil {
			d.Extra = map[string]json.RawMessage{}
		}
		d.Extra[key] = value
	}
	return nil
}

// MarshalJSON writes known sections followed by Extra keys in sorted order.
func (d Document) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(documentAlias(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return base, nil
	}
	keys := make([]string, 0, len(d.Extra))
	for key := range d.Extra {
		if !knownKeys[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(bytes.TrimSuffix(base, []byte("}")))
	for _, key := range keys {
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		if !json.Valid(d.Extra[key]) {
			return nil, fmt.Errorf("settings: extra key %q holds invalid JSON", key)
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(d.Extra[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := d
	out.Discussions = cloneRaw(d.Discussions)
	out.GlobalDiscussionHistory = cloneRaw(d.GlobalDiscussionHistory)
	out.ChatConversations = cloneRaw(d.ChatConversations)
	if d.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = cloneRaw(v)
		}
	}
	return out
}

// Default returns an empty current-version document.
func Default() Document {
	return Document{SchemaVersion: SchemaVersion}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func nullToEmpty(raw json.RawMessage) json.RawMessage {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	return raw
}
