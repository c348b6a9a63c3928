package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStorage 本地文件存储，路径按知识库分目录
type FileStorage struct {
	basePath string
}

// NewFileStorage 创建文件存储，目录不存在时自动创建
func NewFileStorage(basePath string) (*FileStorage, error) {
	if basePath == "" {
		basePath = "./data/uploads"
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("创建存储目录失败: %w", err)
	}
	return &FileStorage{basePath: basePath}, nil
}

// Save 保存文件，返回相对路径和写入字节数
func (s *FileStorage) Save(kbID int64, filename string, reader io.Reader) (string, int64, error) {
	dir := filepath.Join(s.basePath, kbDir(kbID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("创建目录失败: %w", err)
	}

	storedName := fmt.Sprintf("%d%s", time.Now().UnixNano(), strings.ToLower(filepath.Ext(filename)))
	relPath := filepath.Join(kbDir(kbID), storedName)

	f, err := os.Create(filepath.Join(s.basePath, relPath))
	if err != nil {
		return "", 0, fmt.Errorf("创建文件失败: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, reader)
	if err != nil {
		return "", 0, fmt.Errorf("写入文件失败: %w", err)
	}
	return relPath, n, nil
}

// Read 读取文件内容
func (s *FileStorage) Read(relPath string) ([]byte, error) {
	full, err := s.FullPath(relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// Delete 删除文件，文件不存在视为成功
func (s *FileStorage) Delete(relPath string) error {
	full, err := s.FullPath(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteDir 删除知识库目录
func (s *FileStorage) DeleteDir(kbID int64) error {
	return os.RemoveAll(filepath.Join(s.basePath, kbDir(kbID)))
}

// FullPath 相对路径转绝对路径，拒绝越出存储根目录的路径
func (s *FileStorage) FullPath(relPath string) (string, error) {
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("非法文件路径: %s", relPath)
	}
	clean := filepath.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("非法文件路径: %s", relPath)
	}
	return filepath.Join(s.basePath, clean), nil
}

func kbDir(kbID int64) string {
	return fmt.Sprintf("kb_%d", kbID)
}

// 文档类型
const (
	DocTypeTxt      = "txt"
	DocTypeMarkdown = "md"
	DocTypeCSV      = "csv"
	DocTypeJSON     = "json"
	DocTypePDF      = "pdf"
	DocTypeHTML     = "html"
	DocTypeURL      = "url"
)

// InferDocType 根据文件扩展名推断文档类型，未知扩展名按纯文本处理
func InferDocType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return DocTypePDF
	case ".md", ".markdown":
		return DocTypeMarkdown
	case ".csv":
		return DocTypeCSV
	case ".json":
		return DocTypeJSON
	case ".html", ".htm":
		return DocTypeHTML
	default:
		return DocTypeTxt
	}
}
