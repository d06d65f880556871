// Package docx writes record summaries as minimal Word documents and reads
// their paragraphs back.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"seedbank/internal/models"
)

// ErrDocumentMissing is returned for archives without word/document.xml.
var ErrDocumentMissing = errors.New("docx_document_missing")

// ContentType is the MIME type of the generated documents.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const (
	relationshipContent = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

	contentTypes = `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`
)

// RecordSummary lays out a record as paragraphs: title, description, then
// one line per populated field.
func RecordSummary(r models.Record) []string {
	paragraphs := []string{r.Name}
	if r.Description != "" {
		paragraphs = append(paragraphs, r.Description)
	}
	paragraphs = append(paragraphs, "Kind: "+string(r.Kind), "ID: "+r.ID)
	if len(r.Tags) > 0 {
		paragraphs = append(paragraphs, "Tags: "+strings.Join(r.Tags, ", "))
	}
	if r.Quantity != nil {
		paragraphs = append(paragraphs, "Quantity: "+strconv.FormatFloat(*r.Quantity, 'f', -1, 64))
	}

	keys := make([]string, 0, len(r.Attributes))
	for key := range r.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		paragraphs = append(paragraphs, key+": "+r.Attributes[key])
	}

	if r.Boundary != nil {
		lines := make([]string, len(r.Boundary.Points))
		for i, p := range r.Boundary.Points {
			lines[i] = fmt.Sprintf("%d. %s, %s", i+1,
				strconv.FormatFloat(p.Lng, 'f', -1, 64), strconv.FormatFloat(p.Lat, 'f', -1, 64))
		}
		paragraphs = append(paragraphs, "Boundary:\n"+strings.Join(lines, "\n"))
	}

	linkKinds := make([]string, 0, len(r.Links))
	for kind := range r.Links {
		linkKinds = append(linkKinds, string(kind))
	}
	sort.Strings(linkKinds)
	for _, kind := range linkKinds {
		paragraphs = append(paragraphs, "Linked "+kind+": "+strings.Join(r.Links[models.Kind(kind)], ", "))
	}

	if !r.UpdatedAt.IsZero() {
		paragraphs = append(paragraphs, fmt.Sprintf("Last updated %s by %s", r.UpdatedAt.UTC().Format(time.RFC3339), r.UpdatedBy))
	}
	return paragraphs
}

// Encode packages paragraphs as a DOCX document. Newlines inside a
// paragraph become line breaks.
func Encode(paragraphs []string) ([]byte, error) {
	if len(paragraphs) == 0 {
		paragraphs = []string{""}
	}
	documentXML, err := buildDocumentXML(paragraphs)
	if err != nil {
		return nil, err
	}

	buffer := &bytes.Buffer{}
	archive := zip.NewWriter(buffer)

	if err := writeZipFile(archive, "[Content_Types].xml", []byte(contentTypes)); err != nil {
		return nil, err
	}
	if err := writeZipFile(archive, "_rels/.rels", []byte(relationshipContent)); err != nil {
		return nil, err
	}
	if err := writeZipFile(archive, "word/document.xml", []byte(documentXML)); err != nil {
		return nil, err
	}

	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("docx close: %w", err)
	}
	return buffer.Bytes(), nil
}

func writeZipFile(archive *zip.Writer, name string, data []byte) error {
	writer, err := archive.Create(name)
	if err != nil {
		return fmt.Errorf("docx zip entry %s: %w", name, err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("docx zip write %s: %w", name, err)
	}
	return nil
}

func buildDocumentXML(paragraphs []string) (string, error) {
	var builder strings.Builder
	builder.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	builder.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`)
	builder.WriteString(`<w:body>`)
	for i, paragraph := range paragraphs {
		text := strings.ReplaceAll(paragraph, "\r", "")
		if text == "" {
			builder.WriteString(`<w:p/>`)
			continue
		}
		builder.WriteString(`<w:p><w:r>`)
		if i == 0 {
			builder.WriteString(`<w:rPr><w:b/><w:sz w:val="32"/></w:rPr>`)
		}
		segments := strings.Split(text, "\n")
		for idx, segment := range segments {
			builder.WriteString(`<w:t xml:space="preserve">`)
			if err := xml.EscapeText(&builder, []byte(segment)); err != nil {
				return "", fmt.Errorf("docx escape: %w", err)
			}
			builder.WriteString(`</w:t>`)
			if idx < len(segments)-1 {
				builder.WriteString(`<w:br/>`)
			}
		}
		builder.WriteString(`</w:r></w:p>`)
	}
	builder.WriteString(`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440"/></w:sectPr>`)
	builder.WriteString(`</w:body></w:document>`)
	return builder.String(), nil
}

// ExtractText returns the non-empty paragraphs of a DOCX payload. Line
// breaks are returned as newlines.
func ExtractText(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("docx open: %w", err)
	}
	var documentFile *zip.File
	for _, file := range archive.File {
		if file.Name == "word/document.xml" {
			documentFile = file
			break
		}
	}
	if documentFile == nil {
		return nil, ErrDocumentMissing
	}
	rc, err := documentFile.Open()
	if err != nil {
		return nil, fmt.Errorf("docx read: %w", err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	paragraphs := make([]string, 0, 8)
	var builder strings.Builder
	var inParagraph, inText bool

	flush := func() {
		text := strings.TrimSpace(strings.ReplaceAll(builder.String(), "\r", ""))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
		builder.Reset()
	}

	for {
		token, decodeErr := decoder.Token()
		if decodeErr == io.EOF {
			break
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("docx decode: %w", decodeErr)
		}
		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "p":
				if inParagraph {
					flush()
				}
				inParagraph = true
			case "t":
				inText = inParagraph
			case "br":
				if inParagraph {
					builder.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "p":
				if inParagraph {
					flush()
				}
				inParagraph = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inParagraph && inText {
				builder.Write(tok)
			}
		}
	}
	return paragraphs, nil
}
