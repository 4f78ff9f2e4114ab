package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/raido/internal/refs"
	"github.com/starford/raido/internal/refsvc"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/testutil"
)

type testEnv struct {
	srv   *httptest.Server
	store storage.Provider
	dir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir, store := testutil.TestVault(t)
	db := testutil.TestHistory(t)
	engine := refs.NewEngine(store, testutil.Logger())
	svc := refsvc.NewService(store, engine, db, nil, testutil.Logger())

	srv := httptest.NewServer(NewRouter(svc, store, false, "", nil))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, dir: dir}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (e *testEnv) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()
	payload, _ := json.Marshal(body)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func (e *testEnv) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()
	req, _ := http.NewRequest(method, e.srv.URL+path, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return v
}

func TestListReferences(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("![[img/cat.png|Cat]]\n"))
	_ = env.store.Write("b.md", []byte("<img src=\"img/cat.png\" alt=\"c\">\n"))

	resp, body := env.get(t, "/references?path=img/cat.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[ReferencesResponse](t, body)
	if len(out.References) != 2 {
		t.Fatalf("references = %+v, want 2", out.References)
	}
	first := out.References[0]
	if first.NotePath != "a.md" || first.Dialect != "wiki" || first.Display != "Cat" {
		t.Errorf("first = %+v", first)
	}
}

func TestListReferences_RequiresTarget(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.get(t, "/references")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRewrite_SetDisplayText(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("![[cat.png]]\n"))

	resp, body := env.post(t, "/rewrite", RewriteRequest{
		NotePath: "a.md", Line: 1, ExpectedLine: "![[cat.png]]",
		Display: ptr("Cat"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[RewriteResponse](t, body)
	if !out.Changed || out.Line != "![[cat.png|Cat]]" {
		t.Errorf("out = %+v", out)
	}
	data, _ := env.store.Read("a.md")
	if string(data) != "![[cat.png|Cat]]\n" {
		t.Errorf("a.md = %q", data)
	}
}

func TestRewrite_SetSize(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("![[cat.png|Cat]]\n"))

	_, body := env.post(t, "/rewrite", RewriteRequest{
		NotePath: "a.md", Line: 1, ExpectedLine: "![[cat.png|Cat]]",
		Size: ptr("100"),
	})
	out := decode[RewriteResponse](t, body)
	if out.Line != "![[cat.png|Cat|100]]" {
		t.Errorf("line = %q", out.Line)
	}

	_, body = env.post(t, "/rewrite", RewriteRequest{
		NotePath: "a.md", Line: 1, ExpectedLine: "![[cat.png|Cat|100]]",
		Size: ptr("100x50"),
	})
	out = decode[RewriteResponse](t, body)
	if out.Line != "![[cat.png|Cat|100x50]]" {
		t.Errorf("line = %q", out.Line)
	}
}

func TestRewrite_BadSize(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("![[cat.png]]\n"))

	resp, _ := env.post(t, "/rewrite", RewriteRequest{
		NotePath: "a.md", Line: 1, ExpectedLine: "![[cat.png]]",
		Size: ptr("12x"),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	// Nothing written.
	data, _ := env.store.Read("a.md")
	if string(data) != "![[cat.png]]\n" {
		t.Errorf("a.md = %q, want untouched", data)
	}
}

func TestRewrite_LockAspect(t *testing.T) {
	env := newTestEnv(t)
	writePNG(t, env.dir, "img/cat.png", 200, 100)
	_ = env.store.Write("a.md", []byte("![[img/cat.png|Cat]]\n"))

	_, body := env.post(t, "/rewrite", RewriteRequest{
		NotePath: "a.md", Line: 1, ExpectedLine: "![[img/cat.png|Cat]]",
		Size: ptr("100"), LockAspect: true,
	})
	out := decode[RewriteResponse](t, body)
	if out.Line != "![[img/cat.png|Cat|100x50]]" {
		t.Errorf("line = %q, want aspect-locked 100x50", out.Line)
	}
}

func TestRewrite_RetryIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("![[cat.png|Cat]]\n"))

	// The caller's expected line is stale, but the live line already
	// carries the requested display text: duplicate save, no write.
	resp, body := env.post(t, "/rewrite", RewriteRequest{
		NotePath: "a.md", Line: 1, ExpectedLine: "![[cat.png]]",
		Display: ptr("Cat"),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[RewriteResponse](t, body)
	if out.Changed {
		t.Errorf("out = %+v, want no-op", out)
	}
}

func TestRewrite_UnrecognizedLine(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("plain text\n"))

	resp, _ := env.post(t, "/rewrite", RewriteRequest{
		NotePath: "a.md", Line: 1, ExpectedLine: "plain text",
		Display: ptr("Cat"),
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestRewrite_Validation(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.post(t, "/rewrite", RewriteRequest{NotePath: "", Line: 0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRewrite_MissingNote(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.post(t, "/rewrite", RewriteRequest{
		NotePath: "gone.md", Line: 1, ExpectedLine: "x", Display: ptr("y"),
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRename_AllDialects(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("w.md", []byte("![[img/cat.png|Cat|100]]\n"))
	_ = env.store.Write("m.md", []byte("![cat](img/cat.png)\n"))
	_ = env.store.Write("h.md", []byte("<img src='img/cat.png' alt='c' class='x'>\n"))

	resp, body := env.post(t, "/rename", RenameRequest{From: "img/cat.png", To: "img/pets/cat.png"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[RenameResponse](t, body)
	if out.Changed != 3 || out.Failed != 0 {
		t.Fatalf("out = %+v", out)
	}

	want := map[string]string{
		"w.md": "![[img/pets/cat.png|Cat|100]]\n",
		"m.md": "![cat](img/pets/cat.png)\n",
		"h.md": "<img src='img/pets/cat.png' alt='c' class='x'>\n",
	}
	for note, text := range want {
		data, _ := env.store.Read(note)
		if string(data) != text {
			t.Errorf("%s = %q, want %q", note, data, text)
		}
	}
}

func TestResolve_PromptReturns300(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("![[cat.png]]\n"))
	_ = env.store.Write("b.md", []byte("![[cat.png]]\n"))

	resp, body := env.post(t, "/resolve", ResolveRequest{Path: "cat.png", Policy: "prompt"})
	if resp.StatusCode != http.StatusMultipleChoices {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[ResolveResponse](t, body)
	if len(out.NeedsChoice) != 2 {
		t.Errorf("out = %+v", out)
	}
}

func TestResolve_First(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("![[cat.png]]\n"))
	_ = env.store.Write("b.md", []byte("![[cat.png]]\n"))

	resp, body := env.post(t, "/resolve", ResolveRequest{Path: "cat.png", Policy: "first"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[ResolveResponse](t, body)
	if out.Selected == nil || out.Selected.NotePath != "a.md" {
		t.Errorf("out = %+v", out)
	}
}

func TestResolve_UnknownPolicy(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.post(t, "/resolve", ResolveRequest{Path: "cat.png", Policy: "oracle"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTrashImage(t *testing.T) {
	env := newTestEnv(t)
	_ = os.WriteFile(filepath.Join(env.dir, "cat.png"), []byte("png-bytes"), 0o644)
	_ = env.store.Write("a.md", []byte("![[cat.png]]\n"))

	resp, body := env.do(t, http.MethodDelete, "/images/cat.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[TrashResponse](t, body)
	if out.Trashed == "" || len(out.Dangling) != 1 {
		t.Errorf("out = %+v", out)
	}
	if env.store.Exists("cat.png") {
		t.Error("image still in place")
	}
}

func TestImageMeta(t *testing.T) {
	env := newTestEnv(t)
	writePNG(t, env.dir, "img/cat.png", 320, 240)

	resp, body := env.get(t, "/images/img/cat.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[ImageMetaResponse](t, body)
	if out.Width != 320 || out.Height != 240 || out.Hash == "" {
		t.Errorf("out = %+v", out)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_ = env.store.Write("a.md", []byte("![[cat.png]]\n"))
	env.post(t, "/rewrite", RewriteRequest{
		NotePath: "a.md", Line: 1, ExpectedLine: "![[cat.png]]", Display: ptr("Cat"),
	})

	resp, body := env.get(t, "/history?path=cat.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	out := decode[HistoryResponse](t, body)
	if len(out.Operations) != 1 || out.Operations[0].Kind != "display_text" {
		t.Errorf("out = %+v", out)
	}
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "new.png")
	_, _ = fw.Write([]byte("png-bytes"))
	mw.Close()

	resp, err := http.Post(env.srv.URL+"/images", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !env.store.Exists("img/new.png") {
		t.Error("upload not written")
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestHistory(t)
	engine := refs.NewEngine(store, testutil.Logger())
	svc := refsvc.NewService(store, engine, db, nil, testutil.Logger())
	srv := httptest.NewServer(NewRouter(svc, store, true, "secret", nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/references?path=x.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/references?path=x.png", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 with token", resp.StatusCode)
	}
}

func ptr(s string) *string { return &s }

func writePNG(t *testing.T, dir, rel string, w, h int) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}
