package shell

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/inelson/kubesql/pkg/api"
)

// RenderTable writes res as a bordered table, or [] when it has no rows.
func RenderTable(w io.Writer, res *api.QueryResult) error {
	if res.Empty() {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}

	t := table.NewWriter()
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	header := make(table.Row, len(res.Headers))
	for i, h := range res.Headers {
		header[i] = h
	}
	t.AppendHeader(header)

	for _, row := range res.Data {
		cells := make(table.Row, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		t.AppendRow(cells)
	}

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
