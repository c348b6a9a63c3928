package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/ledongthuc/pdf"

	"llmhub/internal/config"
)

// Source 待抽取的文档来源，FilePath 与 SourceURL 二选一
type Source struct {
	DocType   string
	FilePath  string
	SourceURL string
	Clean     bool
}

// Result 抽取结果
type Result struct {
	Text     string
	Metadata map[string]any
}

// Extractor 文本抽取器
type Extractor interface {
	Extract(ctx context.Context, src Source) (*Result, error)
}

// DefaultExtractor 支持 txt/md/csv/json/pdf/html 文件与 URL
type DefaultExtractor struct {
	storage     *FileStorage
	client      *http.Client
	maxURLBytes int64
}

var _ Extractor = (*DefaultExtractor)(nil)

// NewDefaultExtractor 创建默认抽取器
func NewDefaultExtractor(storage *FileStorage, cfg config.ExtractConfig) *DefaultExtractor {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxURLBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	return &DefaultExtractor{
		storage:     storage,
		client:      &http.Client{Timeout: timeout},
		maxURLBytes: maxBytes,
	}
}

// Extract 抽取文本并清洗，附带来源元数据
func (e *DefaultExtractor) Extract(ctx context.Context, src Source) (*Result, error) {
	var (
		text string
		meta map[string]any
		err  error
	)
	switch {
	case src.FilePath != "":
		text, meta, err = e.extractFile(src.FilePath, src.DocType)
	case src.SourceURL != "":
		text, meta, err = e.fetchURL(ctx, src.SourceURL)
	default:
		return nil, errors.New("文档缺少文件路径和来源 URL")
	}
	if err != nil {
		return nil, err
	}

	text = CleanText(text, src.Clean)
	meta["char_count"] = utf8.RuneCountInString(text)
	return &Result{Text: text, Metadata: meta}, nil
}

func (e *DefaultExtractor) extractFile(relPath, docType string) (string, map[string]any, error) {
	if e.storage == nil {
		return "", nil, errors.New("未配置文件存储")
	}
	content, err := e.storage.Read(relPath)
	if err != nil {
		return "", nil, fmt.Errorf("读取文件失败: %w", err)
	}
	if docType == "" {
		docType = InferDocType(relPath)
	}

	meta := map[string]any{
		"file_size": len(content),
		"doc_type":  docType,
	}
	text, err := decodeContent(content, docType, meta)
	if err != nil {
		return "", nil, fmt.Errorf("抽取文本失败: %w", err)
	}
	return text, meta, nil
}

func (e *DefaultExtractor) fetchURL(ctx context.Context, url string) (string, map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("构造请求失败: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("抓取 URL 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("抓取 URL 失败: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxURLBytes+1))
	if err != nil {
		return "", nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if int64(len(body)) > e.maxURLBytes {
		return "", nil, fmt.Errorf("响应超过 %d 字节上限", e.maxURLBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	meta := map[string]any{
		"source_url":   url,
		"content_type": contentType,
	}
	text, err := decodeContent(body, docTypeFromContentType(contentType), meta)
	if err != nil {
		return "", nil, fmt.Errorf("抽取文本失败: %w", err)
	}
	return text, meta, nil
}

func docTypeFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.Contains(mediaType, "json"):
		return DocTypeJSON
	case mediaType == "application/pdf":
		return DocTypePDF
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return DocTypeHTML
	case mediaType == "text/csv":
		return DocTypeCSV
	case mediaType == "text/markdown":
		return DocTypeMarkdown
	default:
		return DocTypeTxt
	}
}

func decodeContent(content []byte, docType string, meta map[string]any) (string, error) {
	switch docType {
	case DocTypeMarkdown:
		meta["format"] = "markdown"
		return decodeUTF8(content), nil
	case DocTypeCSV:
		return csvText(content)
	case DocTypeJSON:
		return jsonText(content)
	case DocTypePDF:
		return pdfText(content, meta)
	case DocTypeHTML:
		raw := decodeUTF8(content)
		if title := htmlTitle(raw); title != "" {
			meta["title"] = title
		}
		return stripHTML(raw), nil
	default:
		return decodeUTF8(content), nil
	}
}

// decodeUTF8 丢弃非法 UTF-8 字节
func decodeUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "")
}

func csvText(content []byte) (string, error) {
	r := csv.NewReader(strings.NewReader(decodeUTF8(content)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("解析 CSV 失败: %w", err)
		}
		rows = append(rows, strings.Join(record, " | "))
	}
	return strings.Join(rows, "\n"), nil
}

func jsonText(content []byte) (string, error) {
	var data any
	if err := sonic.Unmarshal([]byte(decodeUTF8(content)), &data); err != nil {
		return "", fmt.Errorf("解析 JSON 失败: %w", err)
	}
	var lines []string
	flattenJSON(data, "", &lines)
	return strings.Join(lines, "\n"), nil
}

// flattenJSON 展开为 "a.b[0]: value" 行，对象键按字典序输出
func flattenJSON(v any, prefix string, out *[]string) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flattenJSON(val[k], key, out)
		}
	case []any:
		for i, item := range val {
			flattenJSON(item, fmt.Sprintf("%s[%d]", prefix, i), out)
		}
	default:
		*out = append(*out, fmt.Sprintf("%s: %s", prefix, scalarString(val)))
	}
}

func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func pdfText(content []byte, meta map[string]any) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("打开 PDF 失败: %w", err)
	}
	meta["page_count"] = r.NumPage()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("读取 PDF 文本失败: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("读取 PDF 文本失败: %w", err)
	}
	return decodeUTF8(buf.Bytes()), nil
}

var htmlTitleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func htmlTitle(s string) string {
	m := htmlTitleRe.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(htmlEntities.Replace(m[1]))
}
