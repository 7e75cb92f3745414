package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/mindmesh-ai/mindmesh/internal/domain"
)

// FilePlugin parses uploaded documents (PDF, Word, spreadsheet, Markdown,
// plain text) into text units. PDFs yield one unit per page; other formats
// yield a single unit for the whole document.
type FilePlugin struct {
	tempDir string
}

// NewFilePlugin creates a FilePlugin. PDF extraction needs scratch space on
// disk; tempDir defaults to the OS temp directory when empty.
func NewFilePlugin(tempDir string) *FilePlugin {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "mindmesh-ingest")
	}
	_ = os.MkdirAll(tempDir, 0o755)
	return &FilePlugin{tempDir: tempDir}
}

func (p *FilePlugin) Name() string { return "file" }

func (p *FilePlugin) Description() string {
	return "Parses uploaded documents (PDF, Word, CSV, Markdown, plain text) into text units"
}

func (p *FilePlugin) Schema() Schema {
	return Schema{}
}

func (p *FilePlugin) Ingest(ctx context.Context, src Source, _ Params) ([]TextUnit, error) {
	if src.Reader == nil {
		return nil, parseError(src.Filename, "no file content provided", nil)
	}

	data, err := io.ReadAll(src.Reader)
	if err != nil {
		return nil, parseError(src.Filename, "failed to read file content", err)
	}
	if len(data) == 0 {
		return nil, parseError(src.Filename, "file is empty", nil)
	}

	meta := SourceMeta{Filename: src.Filename, URL: src.URL}

	switch detectFormat(src.Filename, src.ContentType) {
	case formatPDF:
		return p.extractPDF(ctx, data, meta)
	case formatDocx:
		return extractDocx(data, meta)
	case formatCSV:
		return extractCSV(data, meta)
	default:
		// Markdown and plain text pass through as one unit.
		return []TextUnit{{Text: string(data), Source: meta}}, nil
	}
}

type fileFormat int

const (
	formatText fileFormat = iota
	formatPDF
	formatDocx
	formatCSV
)

func detectFormat(filename, contentType string) fileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return formatPDF
	case ".docx":
		return formatDocx
	case ".csv", ".tsv":
		return formatCSV
	}
	switch contentType {
	case "application/pdf":
		return formatPDF
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return formatDocx
	case "text/csv":
		return formatCSV
	}
	return formatText
}

// extractPDF extracts page text via pdfcpu. pdfcpu operates on files, so the
// bytes are staged in the plugin's temp directory for the duration of the
// call.
func (p *FilePlugin) extractPDF(ctx context.Context, data []byte, meta SourceMeta) ([]TextUnit, error) {
	tempFile, err := os.CreateTemp(p.tempDir, "extract-*.pdf")
	if err != nil {
		return nil, parseError(meta.Filename, "failed to stage PDF", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return nil, parseError(meta.Filename, "failed to stage PDF", err)
	}
	tempFile.Close()

	pdfCtx, err := api.ReadContextFile(tempPath)
	if err != nil {
		return nil, parseError(meta.Filename, "not a readable PDF", err)
	}

	outDir, err := os.MkdirTemp(p.tempDir, "pages-")
	if err != nil {
		return nil, parseError(meta.Filename, "failed to stage PDF pages", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempPath, outDir, nil, conf); err != nil {
		return nil, parseError(meta.Filename, "failed to extract PDF content", err)
	}

	units := make([]TextUnit, 0, pdfCtx.PageCount)
	for pageNum := 1; pageNum <= pdfCtx.PageCount; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := readExtractedPage(outDir, pageNum)
		if strings.TrimSpace(text) == "" {
			continue
		}
		units = append(units, TextUnit{Text: text, Source: meta})
	}
	return units, nil
}

// readExtractedPage reads the content file pdfcpu wrote for the given page,
// trying the filename variants different pdfcpu versions emit.
func readExtractedPage(outDir string, pageNum int) string {
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var got int
		name := entry.Name()
		if _, err := fmt.Sscanf(name, "page_%d", &got); err != nil {
			if _, err := fmt.Sscanf(name, "Content_page_%d", &got); err != nil {
				continue
			}
		}
		if got == pageNum {
			content, err := os.ReadFile(filepath.Join(outDir, name))
			if err != nil {
				return ""
			}
			return string(content)
		}
	}
	return ""
}

// extractDocx pulls paragraph text out of the word/document.xml entry of a
// .docx archive.
func extractDocx(data []byte, meta SourceMeta) ([]TextUnit, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, parseError(meta.Filename, "not a readable Word document", err)
	}

	var docXML io.ReadCloser
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, parseError(meta.Filename, "failed to open document body", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, parseError(meta.Filename, "document body missing from archive", nil)
	}
	defer docXML.Close()

	var sb strings.Builder
	decoder := xml.NewDecoder(docXML)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseError(meta.Filename, "malformed document body", err)
		}
		switch t := token.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				sb.WriteString("\n\n")
			}
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, parseError(meta.Filename, "document contains no text", nil)
	}
	return []TextUnit{{Text: text, Source: meta}}, nil
}

// extractCSV joins each record into one line so tabular content stays
// readable after chunking.
func extractCSV(data []byte, meta SourceMeta) ([]TextUnit, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseError(meta.Filename, "malformed CSV", err)
		}
		sb.WriteString(strings.Join(record, ", "))
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, parseError(meta.Filename, "file contains no rows", nil)
	}
	return []TextUnit{{Text: text, Source: meta}}, nil
}

func parseError(filename, detail string, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeParseError,
		fmt.Sprintf("%s: %s", filename, detail),
		wrapOr(err, domain.ErrParseError))
}

func wrapOr(err error, fallback error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", fallback, err)
	}
	return fallback
}
