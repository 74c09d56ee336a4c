package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"rsc.io/pdf"
)

// Extract превращает байты документа в UTF-8 текст.
// Ошибки разбора формата не фатальны: возвращается best-effort декодирование
// вместе с ошибкой, чтобы вызывающий мог её залогировать.
func Extract(data []byte, filename string) (string, error) {
	var (
		txt string
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		txt, err = extractPDF(data)
	case ".docx":
		txt, err = extractDOCX(data)
	case ".html", ".htm":
		return stripHTML(DecodeText(data)), nil
	default:
		return DecodeText(data), nil
	}
	if err != nil {
		return DecodeText(data), fmt.Errorf("extract %s: %w", filename, err)
	}
	return txt, nil
}

// DecodeText — декодирование с отбрасыванием невалидных UTF-8 последовательностей
func DecodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}

func extractPDF(data []byte) (txt string, err error) {
	// rsc.io/pdf паникует на части битых файлов
	defer func() {
		if r := recover(); r != nil {
			txt, err = "", fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, t := range p.Content().Text {
			sb.WriteString(strings.ReplaceAll(t.S, "\x00", ""))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

type docxBody struct {
	Paragraphs []struct {
		Runs []struct {
			Text []struct {
				Content string `xml:",chardata"`
			} `xml:"t"`
		} `xml:"r"`
	} `xml:"body>p"`
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		var doc docxBody
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", err
		}
		var sb strings.Builder
		for i, p := range doc.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, r := range p.Runs {
				for _, t := range r.Text {
					sb.WriteString(t.Content)
				}
			}
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("word/document.xml not found")
}

var (
	scriptOrStyle = regexp.MustCompile(`(?is)<(script|style|noscript|head)\b[^>]*>.*?</(script|style|noscript|head)>`)
	htmlComment   = regexp.MustCompile(`(?s)<!--.*?-->`)
	anyTag        = regexp.MustCompile(`<[^>]+>`)
)

func stripHTML(s string) string {
	s = scriptOrStyle.ReplaceAllString(s, " ")
	s = htmlComment.ReplaceAllString(s, " ")
	s = anyTag.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}
