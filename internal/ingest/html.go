package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/KaramelBytes/tidyloom-cli/internal/dataset"
)

type htmlLoader struct{}

func (htmlLoader) Name() string { return "html" }

func (htmlLoader) CanLoad(path string) bool { return hasExt(path, ".html", ".htm") }

func (htmlLoader) Load(_ context.Context, path string, opt Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	defer f.Close()
	r, err := decodeReader(f, opt.Encoding)
	if err != nil {
		return nil, err
	}
	return ReadHTML(r, opt.Table)
}

// ReadHTML extracts the first <table> matched by selector ("table" when
// empty). The header comes from the <thead> row, or the first row made of
// <th> cells, or else the first row.
func ReadHTML(r io.Reader, selector string) (*Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if strings.TrimSpace(selector) == "" {
		selector = "table"
	}
	table := doc.Find(selector).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table matches %q", selector)
	}
	if !table.Is("table") {
		table = table.Find("table").First()
		if table.Length() == 0 {
			return nil, fmt.Errorf("no table inside %q", selector)
		}
	}

	var rows [][]string
	headerRow := -1
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		// skip rows of nested tables
		if tr.Closest("table").Get(0) != table.Get(0) {
			return
		}
		cells := tr.ChildrenFiltered("th, td")
		if headerRow < 0 && (tr.ParentsFiltered("thead").Length() > 0 ||
			cells.Length() > 0 && cells.Length() == tr.ChildrenFiltered("th").Length()) {
			headerRow = len(rows)
		}
		row := make([]string, 0, cells.Length())
		cells.Each(func(_ int, c *goquery.Selection) {
			row = append(row, strings.Join(strings.Fields(c.Text()), " "))
		})
		rows = append(rows, row)
	})
	if len(rows) == 0 {
		return &Table{}, nil
	}
	if headerRow < 0 {
		headerRow = 0
	}
	tbl := &Table{Header: rows[headerRow]}
	for i, row := range rows {
		if i <= headerRow {
			continue
		}
		vals := make([]dataset.Value, len(row))
		for j, c := range row {
			vals[j] = textCell(c)
		}
		tbl.Rows = append(tbl.Rows, vals)
	}
	return tbl, nil
}
