package vault

// EventKind names a vault change notification.
type EventKind string

const (
	EventCreate          EventKind = "create"
	EventModify          EventKind = "modify"
	EventDelete          EventKind = "delete"
	EventRename          EventKind = "rename"
	EventMetadataChanged EventKind = "metadata-changed"
)

// Event describes one change. OldPath is set for renames only.
type Event struct {
	Kind    EventKind
	File    File
	OldPath string
}
