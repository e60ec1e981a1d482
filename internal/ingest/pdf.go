package ingest

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/voxbookapp/voxbook-server/internal/domain"
	"github.com/voxbookapp/voxbook-server/internal/errors"
)

// parsePDF extracts text page by page, then groups pages into chapters by
// scanning each page's first line for a heading. PDF pages map directly
// onto stored pages; they are not re-paginated.
func (p *Parser) parsePDF(path string) (*ParsedBook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "open %s", path)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeValidation, "read pdf %s", path)
	}

	pages := make([]string, 0, pdfCtx.PageCount)
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil || r == nil {
			p.logger.Debug("no content stream for page", "path", path, "page", pageNr)
			pages = append(pages, "")
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			p.logger.Debug("failed to read page content", "path", path, "page", pageNr, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, textFromContentStream(data))
	}

	parsed := &ParsedBook{
		Title:   strings.TrimSpace(pdfCtx.Title),
		Authors: splitAuthors(pdfCtx.Author),
		Format:  domain.FormatPDF,
	}
	if parsed.Title == "" {
		parsed.Title = titleFromFilename(path)
	}

	parsed.Chapters = detectChaptersFromPages(pages)
	if len(parsed.Chapters) == 0 {
		return nil, errors.NoContent("pdf contains no extractable text; scanned documents are not supported")
	}

	p.logger.Info("parsed pdf",
		"path", path,
		"title", parsed.Title,
		"pages", pdfCtx.PageCount,
		"chapters", len(parsed.Chapters))

	return parsed, nil
}

var (
	trailingLineSpace = regexp.MustCompile(`[ \t]+\n`)
	spaceRuns         = regexp.MustCompile(`[ \t]{2,}`)
)

// textFromContentStream recovers prose from a PDF content stream by
// scanning for text-showing operators. String operands accumulate until
// an operator claims them: Tj/TJ/'/" emit them as shown text, anything
// else discards them. Text-positioning operators become line breaks,
// which is what chapter heading detection needs.
//
// This reads strings as encoded bytes. Simple fonts with ASCII-ish
// encodings come through cleanly; composite-font glyph IDs mostly fall to
// the printable filter. Good enough for chapter detection and analysis
// text, not a faithful renderer.
func textFromContentStream(data []byte) string {
	var out strings.Builder
	var pending strings.Builder

	flush := func() {
		if pending.Len() > 0 {
			out.WriteString(pending.String())
			out.WriteString(" ")
			pending.Reset()
		}
	}

	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case c == '(':
			s, next := readLiteralString(data, i+1)
			pending.WriteString(s)
			i = next
		case c == '<':
			if i+1 < len(data) && data[i+1] == '<' {
				i += 2
				continue
			}
			s, next := readHexString(data, i+1)
			pending.WriteString(s)
			i = next
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '/':
			i++
			for i < len(data) && isRegularByte(data[i]) {
				i++
			}
		case isOperatorByte(c):
			start := i
			for i < len(data) && isOperatorByte(data[i]) {
				i++
			}
			switch string(data[start:i]) {
			case "Tj", "TJ":
				flush()
			case "'", "\"":
				out.WriteString("\n")
				flush()
			case "Td", "TD", "T*", "Tm":
				pending.Reset()
				out.WriteString("\n")
			default:
				pending.Reset()
			}
		default:
			i++
		}
	}
	flush()

	text := out.String()
	text = trailingLineSpace.ReplaceAllString(text, "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// readLiteralString consumes a PDF literal string; i points past the
// opening paren. Handles nested parens, escape sequences, and octal
// codes. Returns the decoded text and the index past the closing paren.
func readLiteralString(data []byte, i int) (string, int) {
	var sb strings.Builder
	depth := 1

	for i < len(data) {
		c := data[i]
		switch c {
		case '\\':
			i++
			if i >= len(data) {
				return sb.String(), i
			}
			switch e := data[i]; e {
			case 'n':
				sb.WriteByte('\n')
			case 'r', 't':
				sb.WriteByte(' ')
			case 'b', 'f':
				// control escapes with no prose value
			case '(', ')', '\\':
				sb.WriteByte(e)
			case '\n':
				// escaped newline continues the string
			case '\r':
				if i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for len(data) > i+1 && data[i+1] >= '0' && data[i+1] <= '7' && v < 0o100 {
						i++
						v = v*8 + int(data[i]-'0')
					}
					if v >= 32 && v < 127 {
						sb.WriteByte(byte(v))
					}
				} else {
					sb.WriteByte(e)
				}
			}
			i++
		case '(':
			depth++
			sb.WriteByte(c)
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

// readHexString consumes a PDF hex string; i points past the opening
// angle bracket. Decoded bytes outside printable ASCII are dropped.
func readHexString(data []byte, i int) (string, int) {
	var digits []byte
	for i < len(data) && data[i] != '>' {
		if isHexByte(data[i]) {
			digits = append(digits, data[i])
		}
		i++
	}
	if i < len(data) {
		i++
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	var sb strings.Builder
	for k := 0; k+1 < len(digits); k += 2 {
		b := unhex(digits[k])<<4 | unhex(digits[k+1])
		if b >= 32 && b < 127 {
			sb.WriteByte(b)
		}
	}
	return sb.String(), i
}

// isOperatorByte reports bytes that can form a content stream operator
// token. Numbers and names never match, so operands pass by untouched.
func isOperatorByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '\'' || c == '"' || c == '*'
}

// isRegularByte reports bytes that continue a name token: anything that
// is not PDF whitespace or a delimiter.
func isRegularByte(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ', '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

func isHexByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
