package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ferryhq/ferry/internal/storage"
)

type fakeObjectAPI struct {
	pages   []*awss3.ListObjectsV2Output
	listErr error
	putErr  error

	listCalls []*awss3.ListObjectsV2Input
	putCalls  []*awss3.PutObjectInput
	putBodies []string
}

func (f *fakeObjectAPI) ListObjectsV2(_ context.Context, params *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.listCalls = append(f.listCalls, params)
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := f.pages[len(f.listCalls)-1]
	return page, nil
}

func (f *fakeObjectAPI) PutObject(_ context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.putCalls = append(f.putCalls, params)
	if params.Body != nil {
		body, _ := io.ReadAll(params.Body)
		f.putBodies = append(f.putBodies, string(body))
	} else {
		f.putBodies = append(f.putBodies, "")
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) HeadBucket(_ context.Context, _ *awss3.HeadBucketInput, _ ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	return &awss3.HeadBucketOutput{}, nil
}

type fakePresignAPI struct {
	err   error
	calls []*awss3.GetObjectInput
}

func (f *fakePresignAPI) PresignGetObject(_ context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://bucket.test/" + *params.Key + "?sig=abc"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandle(api *fakeObjectAPI, presign *fakePresignAPI) *handle {
	return &handle{
		logger:  discardLogger(),
		api:     api,
		presign: presign,
		bucket:  "bucket",
		expiry:  time.Hour,
	}
}

func TestListFolders(t *testing.T) {
	t.Parallel()

	token := "more"
	api := &fakeObjectAPI{pages: []*awss3.ListObjectsV2Output{
		{
			CommonPrefixes:        []types.CommonPrefix{{Prefix: aws.String("docs/")}, {Prefix: aws.String("media/")}},
			NextContinuationToken: &token,
		},
		{
			CommonPrefixes: []types.CommonPrefix{{Prefix: aws.String("misc/")}, {Prefix: nil}},
		},
	}}
	h := newTestHandle(api, nil)

	folders, err := h.ListFolders(context.Background())
	if err != nil {
		t.Fatalf("ListFolders: %v", err)
	}
	if got := storage.FolderNames(folders); strings.Join(got, ",") != "docs,media,misc" {
		t.Fatalf("folders = %v", got)
	}
	if folders[0].Key != "docs/" {
		t.Fatalf("key = %q, want prefix kept", folders[0].Key)
	}
	if len(api.listCalls) != 2 {
		t.Fatalf("got %d list calls, want paginated fetch", len(api.listCalls))
	}
	if first := api.listCalls[0]; first.Delimiter == nil || *first.Delimiter != "/" {
		t.Fatal("listing did not use '/' delimiter")
	}
	if second := api.listCalls[1]; second.ContinuationToken == nil || *second.ContinuationToken != token {
		t.Fatal("continuation token not carried to second page")
	}
}

func TestListFoldersError(t *testing.T) {
	t.Parallel()

	api := &fakeObjectAPI{listErr: fmt.Errorf("access denied")}
	h := newTestHandle(api, nil)
	if _, err := h.ListFolders(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreateFolder(t *testing.T) {
	t.Parallel()

	api := &fakeObjectAPI{}
	h := newTestHandle(api, nil)

	folder, err := h.CreateFolder(context.Background(), "  reports/ ")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if folder.Name != "reports" || folder.Key != "reports/" {
		t.Fatalf("folder = %+v", folder)
	}
	if len(api.putCalls) != 1 || *api.putCalls[0].Key != "reports/" {
		t.Fatalf("marker calls = %+v", api.putCalls)
	}
	if api.putBodies[0] != "" {
		t.Fatal("marker object is not empty")
	}

	if _, err := h.CreateFolder(context.Background(), "  / "); err == nil {
		t.Fatal("blank name accepted")
	}
}

func TestUpload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(path, []byte("contents"), 0o600); err != nil {
		t.Fatal(err)
	}
	api := &fakeObjectAPI{}
	h := newTestHandle(api, nil)

	file, err := h.Upload(context.Background(), path, storage.Folder{Name: "docs", Key: "docs/"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if file.Name != "report.pdf" || file.Key != "docs/report.pdf" {
		t.Fatalf("remote file = %+v", file)
	}
	if api.putBodies[0] != "contents" {
		t.Fatalf("uploaded body = %q", api.putBodies[0])
	}

	if _, err := h.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"), storage.Folder{Key: "docs/"}); err == nil {
		t.Fatal("missing staged file accepted")
	}
}

func TestShareLink(t *testing.T) {
	t.Parallel()

	presign := &fakePresignAPI{}
	h := newTestHandle(&fakeObjectAPI{}, presign)

	url, err := h.ShareLink(context.Background(), storage.RemoteFile{Name: "report.pdf", Key: "docs/report.pdf"})
	if err != nil {
		t.Fatalf("ShareLink: %v", err)
	}
	if !strings.Contains(url, "docs/report.pdf") {
		t.Fatalf("url = %q", url)
	}
	if len(presign.calls) != 1 || *presign.calls[0].Bucket != "bucket" {
		t.Fatalf("presign calls = %+v", presign.calls)
	}

	presign.err = fmt.Errorf("signer broken")
	if _, err := h.ShareLink(context.Background(), storage.RemoteFile{Key: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
