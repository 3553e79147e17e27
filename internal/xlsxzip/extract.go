// Package xlsxzip recovers workbook sheet names by walking the local file
// headers of an XLSX container directly.
//
// The walk assumes sizes are populated in each local header: entries that
// defer sizes to a trailing data descriptor, ZIP64 archives and archives that
// can only be navigated through the central directory end the walk early and
// produce no sheet names.
package xlsxzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/klauspost/compress/flate"
)

const (
	localHeaderSignature = 0x04034b50
	localHeaderSize      = 30
	workbookEntry        = "xl/workbook.xml"

	methodStored  = 0
	methodDeflate = 8
)

var (
	ErrWorkbookNotFound       = errors.New("xl/workbook.xml not found")
	ErrUnsupportedCompression = errors.New("unsupported compression method")
	ErrTruncated              = errors.New("truncated zip entry")
	ErrNoSheets               = errors.New("no sheet elements in workbook")

	sheetTag = regexp.MustCompile(`<(?:\w+:)?sheet\b[^>]*>`)
	nameAttr = regexp.MustCompile(`\bname\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// ParseSheetNames returns the sheet names of an XLSX container in document
// order, or an error describing why none could be recovered.
func ParseSheetNames(data []byte) ([]string, error) {
	payload, err := findWorkbook(data)
	if err != nil {
		return nil, err
	}
	names := sheetNamesFromXML(payload)
	if len(names) == 0 {
		return nil, ErrNoSheets
	}
	return names, nil
}

// ReadSheetNames reads the workbook at path. Failures are logged and
// degrade to an empty list; it never returns nil.
func ReadSheetNames(logger *slog.Logger, path string) []string {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("sheet extraction degraded", slog.String("path", path), slog.String("reason", err.Error()))
		return []string{}
	}
	names, err := ParseSheetNames(data)
	if err != nil {
		logger.Warn("sheet extraction degraded", slog.String("path", path), slog.String("reason", err.Error()))
		return []string{}
	}
	return names
}

func findWorkbook(data []byte) ([]byte, error) {
	offset := 0
	for offset+localHeaderSize <= len(data) {
		header := data[offset : offset+localHeaderSize]
		if binary.LittleEndian.Uint32(header[0:4]) != localHeaderSignature {
			break
		}
		method := binary.LittleEndian.Uint16(header[8:10])
		compressedSize := int(binary.LittleEndian.Uint32(header[18:22]))
		uncompressedSize := int(binary.LittleEndian.Uint32(header[22:26]))
		nameLength := int(binary.LittleEndian.Uint16(header[26:28]))
		extraLength := int(binary.LittleEndian.Uint16(header[28:30]))

		nameStart := offset + localHeaderSize
		dataStart := nameStart + nameLength + extraLength
		dataEnd := dataStart + compressedSize
		if dataEnd > len(data) || dataEnd < dataStart {
			return nil, ErrTruncated
		}

		if string(data[nameStart:nameStart+nameLength]) == workbookEntry {
			return decode(method, data[dataStart:dataEnd], uncompressedSize)
		}
		offset = dataEnd
	}
	return nil, ErrWorkbookNotFound
}

func decode(method uint16, payload []byte, uncompressedSize int) ([]byte, error) {
	switch method {
	case methodStored:
		return payload, nil
	case methodDeflate:
		reader := flate.NewReader(bytes.NewReader(payload))
		defer func() { _ = reader.Close() }()
		out := bytes.NewBuffer(make([]byte, 0, uncompressedSize))
		if _, err := io.Copy(out, reader); err != nil {
			return nil, fmt.Errorf("inflate %s: %w", workbookEntry, err)
		}
		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, method)
	}
}

func sheetNamesFromXML(xml []byte) []string {
	names := []string{}
	for _, tag := range sheetTag.FindAll(xml, -1) {
		match := nameAttr.FindSubmatch(tag)
		if match == nil {
			continue
		}
		value := match[1]
		if value == nil {
			value = match[2]
		}
		names = append(names, html.UnescapeString(string(value)))
	}
	return names
}
