package filesystem

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractODT reads an OpenDocument text file: a zip archive whose
// content.xml holds the body. Paragraph and header elements become
// lines; everything else contributes its character data in order.
func extractODT(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open odt %s: %w", path, err)
	}
	defer archive.Close()

	for _, f := range archive.File {
		if f.Name != "content.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("odt content.xml: %w", err)
		}
		defer rc.Close()
		return parseODTContent(rc)
	}
	return "", fmt.Errorf("odt %s: no content.xml", path)
}

func parseODTContent(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var out strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("odt parse: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			out.Write(t)
		case xml.EndElement:
			// text:p and text:h close a block; text:line-break is
			// self-closing and arrives as start+end.
			switch t.Name.Local {
			case "p", "h", "line-break":
				out.WriteByte('\n')
			}
		case xml.StartElement:
			if t.Name.Local == "tab" {
				out.WriteByte('\t')
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}
