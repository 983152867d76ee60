package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/yonagi/mailharvest/internal/gmail"
)

// fakeMail serves canned messages and attachments in place of the API.
type fakeMail struct {
	messages    []*gmailapi.Message
	attachments map[string][]byte // "msgID/attID"
	getErr      map[string]error  // per message ID
}

func (f *fakeMail) ForeachMessage(ctx context.Context, query string, fn func(*gmailapi.Message) error) error {
	for _, m := range f.messages {
		if err := fn(&gmailapi.Message{Id: m.Id}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMail) GetMessage(ctx context.Context, messageID string) (*gmailapi.Message, error) {
	if err, ok := f.getErr[messageID]; ok {
		return nil, err
	}
	for _, m := range f.messages {
		if m.Id == messageID {
			return m, nil
		}
	}
	return nil, &gmail.NotFoundError{MessageID: messageID}
}

func (f *fakeMail) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	data, ok := f.attachments[messageID+"/"+attachmentID]
	if !ok {
		return nil, fmt.Errorf("no attachment %s/%s", messageID, attachmentID)
	}
	return data, nil
}

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	files map[string][]byte
	dirs  map[string]bool
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}, dirs: map[string]bool{}}
}

func (s *memStore) Exists(path string) bool {
	if s.dirs[path] {
		return true
	}
	_, ok := s.files[path]
	return ok
}

func (s *memStore) IsFile(path string) bool {
	_, ok := s.files[path]
	return ok
}

func (s *memStore) IsDir(path string) bool { return s.dirs[path] }

func (s *memStore) MakeDirs(path string) error {
	for p := path; p != "." && p != "/" && p != ""; p = filepath.Dir(p) {
		s.dirs[p] = true
	}
	return nil
}

func (s *memStore) Write(path string, data []byte) error {
	s.files[path] = data
	return nil
}

func (s *memStore) RemoveFile(path string) error {
	delete(s.files, path)
	return nil
}

func (s *memStore) RemoveAll(path string) error {
	delete(s.dirs, path)
	for p := range s.files {
		if strings.HasPrefix(p, path+string(filepath.Separator)) {
			delete(s.files, p)
		}
	}
	for p := range s.dirs {
		if strings.HasPrefix(p, path+string(filepath.Separator)) {
			delete(s.dirs, p)
		}
	}
	return nil
}

func (s *memStore) Glob(pattern string) ([]string, error) { return nil, nil }

func (s *memStore) ListAll(root string) ([]string, error) {
	var out []string
	prefix := root + string(filepath.Separator)
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	for p := range s.dirs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) ListChildren(dir string) ([]string, error) {
	var out []string
	prefix := dir + string(filepath.Separator)
	for p := range s.files {
		if strings.HasPrefix(p, prefix) && filepath.Dir(p) == dir {
			out = append(out, p)
		}
	}
	for p := range s.dirs {
		if strings.HasPrefix(p, prefix) && filepath.Dir(p) == dir {
			out = append(out, p)
		}
	}
	return out, nil
}

func testMessage(id, from, date string, parts ...*gmailapi.MessagePart) *gmailapi.Message {
	headers := []*gmailapi.MessagePartHeader{
		{Name: "Subject", Value: "Invoice"},
		{Name: "From", Value: from},
	}
	if date != "" {
		headers = append(headers, &gmailapi.MessagePartHeader{Name: "Date", Value: date})
	}
	return &gmailapi.Message{
		Id: id,
		Payload: &gmailapi.MessagePart{
			MimeType: "multipart/mixed",
			Headers:  headers,
			Parts:    parts,
		},
	}
}

func attachmentPart(filename, attachmentID string) *gmailapi.MessagePart {
	return &gmailapi.MessagePart{
		Filename: filename,
		MimeType: "application/octet-stream",
		Body:     &gmailapi.MessagePartBody{AttachmentId: attachmentID},
	}
}

func newTestPipeline(mail MailService, fs *memStore) *Pipeline {
	return NewPipeline(mail, fs, nil, nil, nil)
}

func TestDestinationPath(t *testing.T) {
	sentAt := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	got := DestinationPath(".cache", "a@b.com", sentAt, "x.pdf")
	want := filepath.Join(".cache", "a@b.com", "2024-05-01T00:00:00+00:00_x.pdf")
	assert.Equal(t, want, got)

	// Same inputs, same path.
	assert.Equal(t, got, DestinationPath(".cache", "a@b.com", sentAt, "x.pdf"))
}

func TestDestinationPathOffset(t *testing.T) {
	loc := time.FixedZone("", 2*60*60)
	sentAt := time.Date(2024, 5, 1, 14, 30, 5, 0, loc)
	got := DestinationPath("out", "x@y.de", sentAt, "a.pdf")
	assert.Equal(t, filepath.Join("out", "x@y.de", "2024-05-01T14:30:05+02:00_a.pdf"), got)
}

func TestExtractWritesAndExcludes(t *testing.T) {
	mail := &fakeMail{
		messages: []*gmailapi.Message{
			testMessage("m1", "Alice <alice@example.com>", "Wed, 01 May 2024 00:00:00 +0000",
				attachmentPart("invoice.pdf", "a1"),
				attachmentPart("logo.png", "a2"),
			),
		},
		attachments: map[string][]byte{
			"m1/a1": []byte("pdf bytes"),
			"m1/a2": []byte("png bytes"),
		},
	}
	fs := newMemStore()
	p := newTestPipeline(mail, fs)

	stats, err := p.Extract(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Messages)
	assert.Equal(t, 1, stats.Written)
	assert.Equal(t, 1, stats.Excluded)

	dest := filepath.Join("out", "alice@example.com", "2024-05-01T00:00:00+00:00_invoice.pdf")
	assert.Equal(t, []byte("pdf bytes"), fs.files[dest])
	assert.Len(t, fs.files, 1)
}

func TestExtractSkipsBadDate(t *testing.T) {
	mail := &fakeMail{
		messages: []*gmailapi.Message{
			testMessage("m1", "a@b.com", "not a date", attachmentPart("x.pdf", "a1")),
			testMessage("m2", "a@b.com", "Wed, 01 May 2024 00:00:00 +0000", attachmentPart("y.pdf", "a2")),
		},
		attachments: map[string][]byte{
			"m1/a1": []byte("one"),
			"m2/a2": []byte("two"),
		},
	}
	fs := newMemStore()
	stats, err := newTestPipeline(mail, fs).Extract(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MessagesBadDate)
	assert.Equal(t, 1, stats.Messages)
	assert.Equal(t, 1, stats.Written)
}

func TestExtractSkipsMissingDate(t *testing.T) {
	mail := &fakeMail{
		messages: []*gmailapi.Message{
			testMessage("m1", "a@b.com", "", attachmentPart("x.pdf", "a1")),
		},
		attachments: map[string][]byte{"m1/a1": []byte("one")},
	}
	fs := newMemStore()
	stats, err := newTestPipeline(mail, fs).Extract(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MessagesBadDate)
	assert.Equal(t, 0, stats.Written)
}

func TestExtractSkipsUnsafeFilename(t *testing.T) {
	mail := &fakeMail{
		messages: []*gmailapi.Message{
			testMessage("m1", "a@b.com", "Wed, 01 May 2024 00:00:00 +0000",
				attachmentPart("../../etc/passwd", "a1"),
				attachmentPart("safe.pdf", "a2"),
			),
		},
		attachments: map[string][]byte{
			"m1/a1": []byte("evil"),
			"m1/a2": []byte("fine"),
		},
	}
	fs := newMemStore()
	stats, err := newTestPipeline(mail, fs).Extract(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.UnsafePaths)
	assert.Equal(t, 1, stats.Written)
	for path := range fs.files {
		assert.NotContains(t, path, "passwd")
	}
}

func TestExtractSkipsVanishedMessage(t *testing.T) {
	mail := &fakeMail{
		messages: []*gmailapi.Message{
			{Id: "gone"},
			testMessage("m2", "a@b.com", "Wed, 01 May 2024 00:00:00 +0000", attachmentPart("x.pdf", "a1")),
		},
		attachments: map[string][]byte{"m2/a1": []byte("data")},
		getErr:      map[string]error{"gone": &gmail.NotFoundError{MessageID: "gone"}},
	}
	fs := newMemStore()
	stats, err := newTestPipeline(mail, fs).Extract(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.MessagesVanished)
	assert.Equal(t, 1, stats.Messages)
	assert.Equal(t, 1, stats.Written)
}

func TestExtractClean(t *testing.T) {
	fs := newMemStore()
	stale := filepath.Join("out", "old@x.com", "2023-01-01T00:00:00+00:00_old.pdf")
	require.NoError(t, fs.MakeDirs(filepath.Dir(stale)))
	require.NoError(t, fs.Write(stale, []byte("stale")))

	mail := &fakeMail{}
	_, err := newTestPipeline(mail, fs).Extract(context.Background(), Options{OutputDir: "out", Clean: true})
	require.NoError(t, err)

	assert.False(t, fs.IsFile(stale))
	assert.True(t, fs.IsDir("out"))
}

func TestExtractIdempotent(t *testing.T) {
	mail := &fakeMail{
		messages: []*gmailapi.Message{
			testMessage("m1", "a@b.com", "Wed, 01 May 2024 00:00:00 +0000", attachmentPart("x.pdf", "a1")),
		},
		attachments: map[string][]byte{"m1/a1": []byte("data")},
	}
	fs := newMemStore()
	p := newTestPipeline(mail, fs)

	_, err := p.Extract(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)
	_, err = p.Extract(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)

	// Second run overwrites the same path, no duplicate files.
	assert.Len(t, fs.files, 1)
}

func TestFilterUnwanted(t *testing.T) {
	fs := newMemStore()
	keep := filepath.Join("out", "a@b.com", "2024-05-01T00:00:00+00:00_doc.pdf")
	drop := filepath.Join("out", "a@b.com", "2024-05-01T00:00:00+00:00_cal.ics")
	require.NoError(t, fs.MakeDirs(filepath.Dir(keep)))
	require.NoError(t, fs.Write(keep, []byte("k")))
	require.NoError(t, fs.Write(drop, []byte("d")))

	stats, err := newTestPipeline(&fakeMail{}, fs).FilterUnwanted(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FilesRemoved)
	assert.True(t, fs.IsFile(keep))
	assert.False(t, fs.IsFile(drop))
}

func TestFilterUnwantedMissingRoot(t *testing.T) {
	stats, err := newTestPipeline(&fakeMail{}, newMemStore()).FilterUnwanted(context.Background(), Options{OutputDir: "absent"})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesRemoved)
}

func TestPruneEmptyDirs(t *testing.T) {
	fs := newMemStore()
	require.NoError(t, fs.MakeDirs(filepath.Join("out", "empty@x.com", "nested")))
	full := filepath.Join("out", "full@x.com")
	require.NoError(t, fs.MakeDirs(full))
	require.NoError(t, fs.Write(filepath.Join(full, "keep.pdf"), []byte("k")))

	stats, err := newTestPipeline(&fakeMail{}, fs).PruneEmptyDirs(context.Background(), Options{OutputDir: "out"})
	require.NoError(t, err)

	// Deepest-first removal clears both the nested dir and its parent.
	assert.Equal(t, 2, stats.DirsRemoved)
	assert.False(t, fs.IsDir(filepath.Join("out", "empty@x.com")))
	assert.True(t, fs.IsDir(full))
	assert.True(t, fs.IsDir("out"))
}

func TestRunUnknownStage(t *testing.T) {
	fs := newMemStore()
	p := newTestPipeline(&fakeMail{}, fs)
	_, err := p.Run(context.Background(), []string{"extract", "bogus"}, Options{OutputDir: "out"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
	// Validation happens before any stage runs.
	assert.False(t, fs.IsDir("out"))
}

func TestRunAllStages(t *testing.T) {
	mail := &fakeMail{
		messages: []*gmailapi.Message{
			testMessage("m1", "a@b.com", "Wed, 01 May 2024 00:00:00 +0000",
				attachmentPart("doc.pdf", "a1"),
			),
		},
		attachments: map[string][]byte{"m1/a1": []byte("data")},
	}
	fs := newMemStore()
	stats, err := newTestPipeline(mail, fs).Run(context.Background(), StageOrder, Options{OutputDir: "out"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Written)
	assert.Equal(t, 0, stats.FilesRemoved)
	assert.Equal(t, 0, stats.DirsRemoved)
}
