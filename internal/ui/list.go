package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/musicfp/internal/pipeline"
)

var (
	_ list.Item = eventItem{}
)

// eventItem wraps a [pipeline.ProgressUpdate] to implement [list.Item].
type eventItem struct {
	update pipeline.ProgressUpdate
}

func (i eventItem) FilterValue() string { return i.update.Message }
func (i eventItem) Title() string       { return i.update.Message }
func (i eventItem) Description() string {
	if out, ok := i.update.Data.(pipeline.PersistOutcome); ok {
		return fmt.Sprintf("%d stored • %d duplicates • %d missing tags", out.Inserted, out.Duplicates, out.Invalid)
	}
	return i.update.Phase.String()
}
