package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/width"
)

// Table 简单表格输出，按终端显示宽度对齐（中文占两列）
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable 创建表格
func NewTable(headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = DisplayWidth(h)
	}
	return &Table{
		headers: headers,
		rows:    make([][]string, 0),
		widths:  widths,
	}
}

// AddRow 添加行
func (t *Table) AddRow(row []string) {
	for i, cell := range row {
		if i < len(t.widths) {
			if w := DisplayWidth(cell); w > t.widths[i] {
				t.widths[i] = w
			}
		}
	}
	t.rows = append(t.rows, row)
}

// Render 渲染表格
func (t *Table) Render() {
	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		headerColor.Fprint(Writer, pad(h, t.widths[i]))
		fmt.Fprint(Writer, "  ")
	}
	fmt.Fprintln(Writer)

	for i := range t.headers {
		fmt.Fprint(Writer, strings.Repeat("-", t.widths[i]), "  ")
	}
	fmt.Fprintln(Writer)

	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(t.widths) {
				fmt.Fprint(Writer, pad(cell, t.widths[i]), "  ")
			}
		}
		fmt.Fprintln(Writer)
	}
}

// DisplayWidth 字符串在终端中的显示宽度
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func pad(s string, w int) string {
	if d := w - DisplayWidth(s); d > 0 {
		return s + strings.Repeat(" ", d)
	}
	return s
}
