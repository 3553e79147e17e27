package format

import (
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ParquetInfo is read from the file footer without scanning row groups.
type ParquetInfo struct {
	Rows      int64
	RowGroups int
	Columns   []string
}

func InspectParquet(path string) (ParquetInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return ParquetInfo{}, fmt.Errorf("open parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return ParquetInfo{}, fmt.Errorf("stat parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return ParquetInfo{}, fmt.Errorf("read parquet footer: %w", err)
	}

	info := ParquetInfo{Rows: pf.NumRows(), RowGroups: len(pf.RowGroups())}
	for _, column := range pf.Schema().Columns() {
		info.Columns = append(info.Columns, strings.Join(column, "."))
	}
	return info, nil
}
