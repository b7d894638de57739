package document

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

var contentPage = regexp.MustCompile(`Content_page_(\d+)`)

// pdfText writes data to a scratch dir, lets pdfcpu dump the decoded page
// content streams and pulls the shown strings out of them, page by page.
func (s *Source) pdfText(data []byte) (string, error) {
	dir, err := os.MkdirTemp(s.tempDir, "callbot-pdf-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", err
	}
	pdfCtx, err := api.ReadContextFile(in)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	out := filepath.Join(dir, "content")
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", err
	}
	if err := api.ExtractContentFile(in, out, nil, model.NewDefaultConfiguration()); err != nil {
		return "", fmt.Errorf("extract pdf content: %w", err)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		return "", err
	}
	pages := make(map[int]string)
	for _, e := range entries {
		m := contentPage.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		raw, err := os.ReadFile(filepath.Join(out, e.Name()))
		if err != nil {
			return "", err
		}
		pages[n] += contentText(raw)
	}

	nums := make([]int, 0, len(pages))
	for n := range pages {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	texts := make([]string, 0, len(nums))
	for _, n := range nums {
		if t := strings.TrimSpace(pages[n]); t != "" {
			texts = append(texts, t)
		}
	}
	s.logger.Debug("pdf pages extracted", zap.Int("pages", pdfCtx.PageCount), zap.Int("with_text", len(texts)))
	return strings.Join(texts, "\n\n"), nil
}

// contentText collects the operands of the text showing operators
// (Tj, TJ, ' and ") in a content stream. Text positioning operators start a
// new line.
func contentText(stream []byte) string {
	var (
		out     strings.Builder
		line    strings.Builder
		pending strings.Builder
		inArray bool
	)
	flush := func() {
		if t := strings.TrimSpace(line.String()); t != "" {
			out.WriteString(t)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case c == '(':
			s, next := literalString(stream, i)
			pending.WriteString(s)
			i = next
		case c == '<' && i+1 < len(stream) && stream[i+1] != '<':
			end := i + 1
			for end < len(stream) && stream[end] != '>' {
				end++
			}
			pending.WriteString(hexString(stream[i+1 : end]))
			i = end + 1
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			end := i + 1
			for end < len(stream) && (stream[end] == '.' || (stream[end] >= '0' && stream[end] <= '9')) {
				end++
			}
			if inArray {
				if v, err := strconv.ParseFloat(string(stream[i:end]), 64); err == nil && v < -200 {
					pending.WriteByte(' ')
				}
			}
			i = end
		case isRegular(c):
			end := i + 1
			for end < len(stream) && isRegular(stream[end]) && stream[end] != '(' && stream[end] != '[' {
				end++
			}
			switch op := string(stream[i:end]); op {
			case "Tj", "TJ":
				line.WriteString(pending.String())
			case "'", `"`:
				flush()
				line.WriteString(pending.String())
			case "Td", "TD", "T*", "ET":
				flush()
			}
			pending.Reset()
			i = end
		default:
			i++
		}
	}
	flush()
	return out.String()
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

// literalString decodes a (...) string starting at stream[start] and returns
// the index just past the closing parenthesis.
func literalString(stream []byte, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for ; i < len(stream); i++ {
		c := stream[i]
		switch c {
		case '\\':
			i++
			if i >= len(stream) {
				break
			}
			switch e := stream[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
			default:
				if e >= '0' && e <= '7' {
					v := 0
					j := i
					for ; j < len(stream) && j < i+3 && stream[j] >= '0' && stream[j] <= '7'; j++ {
						v = v*8 + int(stream[j]-'0')
					}
					b.WriteRune(rune(v))
					i = j - 1
					continue
				}
				b.WriteByte(e)
			}
		case '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), i
}

func hexString(h []byte) string {
	var digits []byte
	for _, c := range h {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var b strings.Builder
	for i := 0; i < len(digits); i += 2 {
		v, _ := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if v >= 0x20 || v == '\n' {
			b.WriteByte(byte(v))
		}
	}
	return b.String()
}
