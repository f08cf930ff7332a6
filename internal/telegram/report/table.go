// Package report 文本表格渲染（bot 的 <pre> 块与命令行共用）
package report

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Align 列对齐方式
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table 渲染表格，行长度不足时以空串补齐
func Table(headers []string, rows [][]string, aligns ...Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// KeyValue 两列键值表
func KeyValue(rows [][2]string) string {
	body := make([][]string, 0, len(rows))
	for _, row := range rows {
		body = append(body, []string{row[0], row[1]})
	}
	return Table([]string{"Item", "Value"}, body, AlignLeft, AlignRight)
}
