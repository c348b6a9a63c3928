package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmhub/internal/extract"
	"llmhub/internal/model"
	"llmhub/internal/quota"
	"llmhub/internal/repository"
	"llmhub/internal/retrieval"
	"llmhub/internal/testutil"
	"llmhub/internal/types"
)

var (
	p1 = strings.Repeat("a", 10) + strings.Repeat("b", 10)
	p2 = strings.Repeat("c", 10) + strings.Repeat("d", 10)
	p3 = strings.Repeat("e", 10) + strings.Repeat("f", 10)

	threeParagraphs = p1 + "\n\n" + p2 + "\n\n" + p3
)

type fakeExtractor struct {
	texts map[string]string
	err   error
	last  extract.Source
}

func (f *fakeExtractor) Extract(_ context.Context, src extract.Source) (*extract.Result, error) {
	f.last = src
	if f.err != nil {
		return nil, f.err
	}
	key := src.FilePath
	if key == "" {
		key = src.SourceURL
	}
	text, ok := f.texts[key]
	if !ok {
		return nil, fmt.Errorf("no such source: %s", key)
	}
	return &extract.Result{Text: text, Metadata: map[string]any{"char_count": utf8.RuneCountInString(text)}}, nil
}

type fakeEmbedder struct {
	failOn string
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ *model.TKnowledgeBase, text string) ([]float32, error) {
	f.calls++
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeIndex struct {
	collections map[string]int
	points      map[int64]retrieval.VectorPoint
	deletedDocs []int64
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{collections: map[string]int{}, points: map[int64]retrieval.VectorPoint{}}
}

func (f *fakeIndex) EnsureCollection(_ context.Context, collection string, dimension int) error {
	f.collections[collection] = dimension
	return nil
}

func (f *fakeIndex) Upsert(_ context.Context, _ string, points []retrieval.VectorPoint) error {
	for _, pt := range points {
		f.points[pt.ChunkID] = pt
	}
	return nil
}

func (f *fakeIndex) DeleteDocument(_ context.Context, _ string, documentID int64) error {
	f.deletedDocs = append(f.deletedDocs, documentID)
	for id, pt := range f.points {
		if pt.DocumentID == documentID {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeIndex) DeleteChunk(_ context.Context, _ string, chunkID int64) error {
	delete(f.points, chunkID)
	return nil
}

type fakeFiles struct {
	saved   map[string]string
	deleted []string
}

func (f *fakeFiles) Save(kbID int64, filename string, reader io.Reader) (string, int64, error) {
	b, err := io.ReadAll(reader)
	if err != nil {
		return "", 0, err
	}
	rel := fmt.Sprintf("kb_%d/%s", kbID, filename)
	f.saved[rel] = string(b)
	return rel, int64(len(b)), nil
}

func (f *fakeFiles) Delete(relPath string) error {
	f.deleted = append(f.deleted, relPath)
	return nil
}

type harness struct {
	repo  *repository.Repository
	ext   *fakeExtractor
	emb   *fakeEmbedder
	files *fakeFiles
	p     *Pipeline
	kb    *model.TKnowledgeBase
	doc   *model.TKnowledgeDocument
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	h := &harness{
		repo:  repository.New(db),
		ext:   &fakeExtractor{texts: map[string]string{}},
		emb:   &fakeEmbedder{},
		files: &fakeFiles{saved: map[string]string{}},
	}
	h.kb = testutil.CreateKnowledgeBase(t, db, &model.TKnowledgeBase{
		TeamID:       1,
		ChunkSize:    testutil.Ptr(int32(10)),
		ChunkOverlap: testutil.Ptr(int32(2)),
	})
	path := "kb_1/doc.txt"
	h.doc = testutil.CreateDocument(t, db, &model.TKnowledgeDocument{KnowledgeBaseID: h.kb.ID, FilePath: &path})
	h.ext.texts[path] = threeParagraphs

	opts = append([]Option{WithFileStore(h.files)}, opts...)
	h.p = NewPipeline(h.repo, h.ext, h.emb, opts...)
	return h
}

func (h *harness) document(t *testing.T) *model.TKnowledgeDocument {
	t.Helper()
	doc, err := h.repo.GetDocument(context.Background(), h.doc.ID)
	require.NoError(t, err)
	return doc
}

func (h *harness) knowledgeBase(t *testing.T) *model.TKnowledgeBase {
	t.Helper()
	kb, err := h.repo.GetKnowledgeBase(context.Background(), h.kb.ID)
	require.NoError(t, err)
	return kb
}

func (h *harness) contents(t *testing.T) []string {
	t.Helper()
	chunks, err := h.repo.ListChunks(context.Background(), h.doc.ID)
	require.NoError(t, err)
	out := make([]string, 0, len(chunks))
	for i, c := range chunks {
		require.Equal(t, i, c.ChunkIndex)
		out = append(out, c.Content)
	}
	return out
}

func TestProcess_ThreeParagraphs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.p.Process(ctx, h.doc.ID))

	assert.Equal(t, []string{p1, p1[12:] + p2, p2[12:] + p3}, h.contents(t))
	assert.True(t, h.ext.last.Clean)

	doc := h.document(t)
	assert.Equal(t, model.DocStatusCompleted, doc.Status)
	assert.EqualValues(t, 3, doc.ChunkCount)
	assert.EqualValues(t, 5+7+7, doc.TokenCount)
	assert.NotNil(t, doc.ProcessedAt)
	assert.Nil(t, doc.ErrorMessage)
	assert.EqualValues(t, utf8.RuneCountInString(threeParagraphs), doc.Metadata["char_count"])

	kb := h.knowledgeBase(t)
	assert.EqualValues(t, 3, kb.TotalChunks)
	assert.EqualValues(t, 19, kb.TotalTokens)

	chunks, err := h.repo.ListChunks(ctx, h.doc.ID)
	require.NoError(t, err)
	require.NotNil(t, chunks[2].EmbeddingID)
	assert.Equal(t, fmt.Sprintf("doc_%d_chunk_2", h.doc.ID), *chunks[2].EmbeddingID)
	assert.Equal(t, 3, h.emb.calls)
}

func TestProcess_EmbeddingFailureMarksError(t *testing.T) {
	h := newHarness(t)
	h.emb.failOn = "cccc"
	h.emb.err = &quota.ExceededError{Dimension: quota.DailyToken, Limit: 10, Used: 10, Requested: 7}

	err := h.p.Process(context.Background(), h.doc.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrQuotaExceeded)
	var exceeded *quota.ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, quota.DailyToken, exceeded.Dimension)

	doc := h.document(t)
	assert.Equal(t, model.DocStatusError, doc.Status)
	require.NotNil(t, doc.ErrorMessage)
	assert.NotEmpty(t, *doc.ErrorMessage)

	// 已写入的分块不回滚，知识库统计不变
	assert.Equal(t, []string{p1}, h.contents(t))
	kb := h.knowledgeBase(t)
	assert.Zero(t, kb.TotalChunks)
	assert.Zero(t, kb.TotalTokens)
}

func TestProcess_ErrorMessageTruncated(t *testing.T) {
	h := newHarness(t)
	h.ext.err = errors.New(strings.Repeat("错", 1000))

	err := h.p.Process(context.Background(), h.doc.ID)
	assert.ErrorIs(t, err, types.NewAppError(types.ErrCodeExtractFailed, ""))

	doc := h.document(t)
	assert.Equal(t, model.DocStatusError, doc.Status)
	require.NotNil(t, doc.ErrorMessage)
	assert.Equal(t, MaxErrorMessageRunes, utf8.RuneCountInString(*doc.ErrorMessage))
}

func TestProcess_BlankTextIsError(t *testing.T) {
	h := newHarness(t)
	h.ext.texts[*h.doc.FilePath] = "  \n\n "

	err := h.p.Process(context.Background(), h.doc.ID)
	assert.ErrorIs(t, err, types.ErrNoChunks)
	assert.Equal(t, model.DocStatusError, h.document(t).Status)
}

func TestProcess_CleanTextFromMetadata(t *testing.T) {
	h := newHarness(t)
	clean := false
	require.NoError(t, h.p.Configure(context.Background(), h.doc.ID, ChunkOptions{CleanText: &clean}))

	require.NoError(t, h.p.Process(context.Background(), h.doc.ID))
	assert.False(t, h.ext.last.Clean)
	assert.Equal(t, false, h.document(t).Metadata["clean_text"])
}

func TestReprocess_DoesNotDoubleCountStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.p.Process(ctx, h.doc.ID))
	require.NoError(t, h.p.Reprocess(ctx, h.doc.ID))
	require.NoError(t, h.p.Reprocess(ctx, h.doc.ID))

	assert.Len(t, h.contents(t), 3)
	kb := h.knowledgeBase(t)
	assert.EqualValues(t, 3, kb.TotalChunks)
	assert.EqualValues(t, 19, kb.TotalTokens)
}

func TestRechunk_PersistsDocumentSetting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.p.Process(ctx, h.doc.ID))

	size := 1000
	require.NoError(t, h.p.Rechunk(ctx, h.doc.ID, ChunkOptions{ChunkSize: &size}))

	assert.Equal(t, []string{threeParagraphs}, h.contents(t))
	doc := h.document(t)
	require.NotNil(t, doc.ChunkSetting)
	assert.Equal(t, 1000, doc.ChunkSetting.ChunkSize)
	assert.EqualValues(t, 1, doc.ChunkCount)
	assert.EqualValues(t, 1, h.knowledgeBase(t).TotalChunks)
}

func TestRechunk_CustomSeparator(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ext.texts[*h.doc.FilePath] = "first###second###third"

	sep, overlap := "###", 0
	require.NoError(t, h.p.Rechunk(ctx, h.doc.ID, ChunkOptions{Separator: &sep, ChunkOverlap: &overlap}))
	assert.Equal(t, []string{"first", "###second", "###third"}, h.contents(t))
}

func TestPreview_MatchesIngestion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	preview, err := h.p.Preview(ctx, h.doc.ID, ChunkOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, preview.TotalChunks)
	assert.Equal(t, 19, preview.TotalTokens)

	require.NoError(t, h.p.Process(ctx, h.doc.ID))
	stored := h.contents(t)
	for i, c := range preview.Chunks {
		assert.Equal(t, stored[i], c.Content)
	}

	// 预览参数不落库
	size := 1000
	preview, err = h.p.Preview(ctx, h.doc.ID, ChunkOptions{ChunkSize: &size})
	require.NoError(t, err)
	assert.Equal(t, 1, preview.TotalChunks)
	assert.Nil(t, h.document(t).ChunkSetting)
}

func TestImportChunks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.p.Process(ctx, h.doc.ID))

	require.NoError(t, h.p.ImportChunks(ctx, h.doc.ID, []string{"first chunk!", "   ", "second"}))
	assert.Equal(t, []string{"first chunk!", "second"}, h.contents(t))

	doc := h.document(t)
	assert.Equal(t, model.DocStatusCompleted, doc.Status)
	assert.EqualValues(t, 2, doc.ChunkCount)
	assert.EqualValues(t, 3+1, doc.TokenCount)

	kb := h.knowledgeBase(t)
	assert.EqualValues(t, 2, kb.TotalChunks)
	assert.EqualValues(t, 4, kb.TotalTokens)

	chunks, err := h.repo.ListChunks(ctx, h.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "import", chunks[0].Metadata["source"])

	assert.ErrorIs(t, h.p.ImportChunks(ctx, h.doc.ID, []string{" "}), types.ErrNoChunks)
}

func TestChunkEditing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.p.Process(ctx, h.doc.ID))

	chunks, err := h.p.ListChunks(ctx, h.doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// 20 字符 → 5 token，改为 40 字符 → 10 token
	updated, err := h.p.UpdateChunk(ctx, h.doc.ID, chunks[0].ID, strings.Repeat("z", 40))
	require.NoError(t, err)
	assert.Equal(t, 10, updated.TokenCount)
	assert.EqualValues(t, 24, h.document(t).TokenCount)
	assert.EqualValues(t, 24, h.knowledgeBase(t).TotalTokens)

	after := 0
	inserted, err := h.p.InsertChunk(ctx, h.doc.ID, "inserted", &after)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted.ChunkIndex)
	appended, err := h.p.InsertChunk(ctx, h.doc.ID, "appended", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, appended.ChunkIndex)
	assert.Equal(t, []string{strings.Repeat("z", 40), "inserted", p1[12:] + p2, p2[12:] + p3, "appended"}, h.contents(t))

	doc := h.document(t)
	assert.EqualValues(t, 5, doc.ChunkCount)
	assert.EqualValues(t, 24+2+2, doc.TokenCount)

	require.NoError(t, h.p.DeleteChunk(ctx, h.doc.ID, inserted.ID))
	assert.Equal(t, []string{strings.Repeat("z", 40), p1[12:] + p2, p2[12:] + p3, "appended"}, h.contents(t))
	kb := h.knowledgeBase(t)
	assert.EqualValues(t, 4, kb.TotalChunks)
	assert.EqualValues(t, 26, kb.TotalTokens)

	_, err = h.p.UpdateChunk(ctx, h.doc.ID+100, chunks[1].ID, "x")
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
	_, err = h.p.UpdateChunk(ctx, h.doc.ID, 9999, "x")
	assert.ErrorIs(t, err, types.ErrChunkNotFound)
	_, err = h.p.UpdateChunk(ctx, h.doc.ID, chunks[1].ID, "  ")
	assert.Equal(t, types.ErrCodeInvalidParameter, types.GetErrorCode(err))
}

func TestChunkEditing_EmbeddingFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.p.Process(ctx, h.doc.ID))
	before := h.contents(t)

	h.emb.failOn = "broken"
	h.emb.err = types.ErrModelDisabled

	chunks, err := h.p.ListChunks(ctx, h.doc.ID)
	require.NoError(t, err)
	_, err = h.p.UpdateChunk(ctx, h.doc.ID, chunks[0].ID, "broken content")
	assert.ErrorIs(t, err, types.ErrModelDisabled)
	_, err = h.p.InsertChunk(ctx, h.doc.ID, "broken insert", nil)
	assert.ErrorIs(t, err, types.ErrModelDisabled)

	assert.Equal(t, before, h.contents(t))
	assert.EqualValues(t, 19, h.knowledgeBase(t).TotalTokens)
}

func TestVectorIndexSync(t *testing.T) {
	index := newFakeIndex()
	h := newHarness(t, WithVectorIndex(index))
	ctx := context.Background()

	require.NoError(t, h.p.Process(ctx, h.doc.ID))
	collection := retrieval.CollectionName(h.kb.ID)
	assert.Equal(t, 3, index.collections[collection])
	assert.Len(t, index.points, 3)

	kb := h.knowledgeBase(t)
	require.NotNil(t, kb.QdrantCollection)
	assert.Equal(t, collection, *kb.QdrantCollection)
	require.NotNil(t, kb.EmbeddingDimension)
	assert.EqualValues(t, 3, *kb.EmbeddingDimension)

	chunks, err := h.p.ListChunks(ctx, h.doc.ID)
	require.NoError(t, err)
	require.NoError(t, h.p.DeleteChunk(ctx, h.doc.ID, chunks[0].ID))
	assert.Len(t, index.points, 2)

	require.NoError(t, h.p.Reprocess(ctx, h.doc.ID))
	assert.Len(t, index.points, 3)
	assert.Contains(t, index.deletedDocs, h.doc.ID)
}

func TestAddAndDeleteDocument(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc, err := h.p.AddFileDocument(ctx, h.kb.ID, "notes.md", strings.NewReader("# hi"))
	require.NoError(t, err)
	assert.Equal(t, extract.DocTypeMarkdown, doc.DocType)
	assert.Equal(t, model.DocStatusPending, doc.Status)
	require.NotNil(t, doc.FileSize)
	assert.EqualValues(t, 4, *doc.FileSize)

	urlDoc, err := h.p.AddURLDocument(ctx, h.kb.ID, "", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", urlDoc.Name)
	assert.Equal(t, extract.DocTypeURL, urlDoc.DocType)
	assert.EqualValues(t, 2, h.knowledgeBase(t).DocumentCount)

	_, err = h.p.AddURLDocument(ctx, h.kb.ID+100, "x", "https://example.com")
	assert.ErrorIs(t, err, types.ErrKnowledgeBaseNotFound)

	h.ext.texts[*doc.FilePath] = "some markdown content here"
	require.NoError(t, h.p.Process(ctx, doc.ID))
	require.NoError(t, h.p.DeleteDocument(ctx, doc.ID))

	kb := h.knowledgeBase(t)
	assert.EqualValues(t, 1, kb.DocumentCount)
	assert.Zero(t, kb.TotalChunks)
	assert.Zero(t, kb.TotalTokens)
	assert.Contains(t, h.files.deleted, *doc.FilePath)

	_, err = h.p.Document(ctx, h.kb.ID, doc.ID)
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
	_, err = h.p.Document(ctx, h.kb.ID+1, urlDoc.ID)
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)
	got, err := h.p.Document(ctx, h.kb.ID, urlDoc.ID)
	require.NoError(t, err)
	assert.Equal(t, urlDoc.ID, got.ID)
}

func TestRecordTaskKeepsMetadata(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	clean := false
	require.NoError(t, h.p.Configure(ctx, h.doc.ID, ChunkOptions{CleanText: &clean}))
	require.NoError(t, h.p.RecordTask(ctx, h.doc.ID, "task-1"))

	doc := h.document(t)
	assert.Equal(t, "task-1", doc.Metadata["task_id"])
	assert.Equal(t, false, doc.Metadata["clean_text"])
}
