package mcpserver

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/raido/internal/refs"
	"github.com/starford/raido/internal/refsvc"
	"github.com/starford/raido/internal/storage"
	"github.com/starford/raido/internal/testutil"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()

	_, store := testutil.TestVault(t)
	db := testutil.TestHistory(t)
	logger := testutil.Logger()

	engine := refs.NewEngine(store, logger)
	svc := refsvc.NewService(store, engine, db, nil, logger)

	srv := New(svc, store)
	return srv, store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we
	// dispatch to the handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "find_references":
		result, err = srv.findReferences(ctx, req)
	case "rewrite_reference":
		result, err = srv.rewriteReference(ctx, req)
	case "rename_image":
		result, err = srv.renameImage(ctx, req)
	case "image_history":
		result, err = srv.imageHistory(ctx, req)
	case "upload_image":
		result, err = srv.uploadImage(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestFindReferencesTool(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("img/cat.png", []byte("x"))
	_ = store.Write("note.md", []byte("intro\n![[img/cat.png|A cat]]\n"))

	r := callTool(t, srv, "find_references", map[string]interface{}{
		"path": "img/cat.png",
	})
	text := resultText(r)
	if !strings.Contains(text, "note.md") {
		t.Errorf("find_references = %q, want mention of note.md", text)
	}
}

func TestFindReferencesToolEmpty(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("img/cat.png", []byte("x"))

	r := callTool(t, srv, "find_references", map[string]interface{}{
		"path": "img/cat.png",
	})
	if got := resultText(r); got != "no references found" {
		t.Errorf("find_references = %q", got)
	}
}

func TestRewriteReferenceTool(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("note.md", []byte("![[img/cat.png]]\n"))

	r := callTool(t, srv, "rewrite_reference", map[string]interface{}{
		"note_path":     "note.md",
		"line":          float64(1),
		"expected_line": "![[img/cat.png]]",
		"display":       "A cat",
	})
	text := resultText(r)
	if text != "rewritten: ![[img/cat.png|A cat]]" {
		t.Errorf("rewrite = %q", text)
	}

	// Retrying with the pre-rewrite snapshot must report unchanged.
	r = callTool(t, srv, "rewrite_reference", map[string]interface{}{
		"note_path":     "note.md",
		"line":          float64(1),
		"expected_line": "![[img/cat.png]]",
		"display":       "A cat",
	})
	text = resultText(r)
	if !strings.HasPrefix(text, "unchanged") {
		t.Errorf("retry = %q, want unchanged", text)
	}
}

func TestRewriteReferenceToolSize(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("note.md", []byte("![[img/cat.png|A cat]]\n"))

	r := callTool(t, srv, "rewrite_reference", map[string]interface{}{
		"note_path":     "note.md",
		"line":          float64(1),
		"expected_line": "![[img/cat.png|A cat]]",
		"size":          "200x100",
	})
	if got := resultText(r); got != "rewritten: ![[img/cat.png|A cat|200x100]]" {
		t.Errorf("rewrite = %q", got)
	}
}

func TestRewriteReferenceToolBadSize(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("note.md", []byte("![[img/cat.png]]\n"))

	r := callTool(t, srv, "rewrite_reference", map[string]interface{}{
		"note_path":     "note.md",
		"line":          float64(1),
		"expected_line": "![[img/cat.png]]",
		"size":          "200xx",
	})
	if !r.IsError {
		t.Error("expected error for malformed size")
	}
}

func TestRenameImageTool(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("img/cat.png", []byte("x"))
	_ = store.Write("a.md", []byte("![[img/cat.png|A cat]]\n"))
	_ = store.Write("b.md", []byte("![photo](img/cat.png)\n"))

	r := callTool(t, srv, "rename_image", map[string]interface{}{
		"from": "img/cat.png",
		"to":   "img/feline.png",
	})
	text := resultText(r)
	if !strings.Contains(text, "2 changed") {
		t.Errorf("rename summary = %q, want 2 changed", text)
	}

	data, err := store.Read("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != "![[img/feline.png|A cat]]\n" {
		t.Errorf("a.md = %q", got)
	}
}

func TestImageHistoryTool(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("img/cat.png", []byte("x"))
	_ = store.Write("note.md", []byte("![[img/cat.png]]\n"))

	r := callTool(t, srv, "image_history", map[string]interface{}{
		"path": "img/cat.png",
	})
	if got := resultText(r); got != "no recorded operations" {
		t.Errorf("history = %q", got)
	}

	callTool(t, srv, "rewrite_reference", map[string]interface{}{
		"note_path":     "note.md",
		"line":          float64(1),
		"expected_line": "![[img/cat.png]]",
		"display":       "A cat",
	})

	r = callTool(t, srv, "image_history", map[string]interface{}{
		"path": "img/cat.png",
	})
	text := resultText(r)
	if !strings.Contains(text, "display_text") {
		t.Errorf("history = %q, want a display_text operation", text)
	}
}

func TestUploadImageDataURI(t *testing.T) {
	srv, store := testServer(t)

	// Smallest valid PNG header carries the magic bytes DetectContentType needs.
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	r := callTool(t, srv, "upload_image", map[string]interface{}{
		"url":      uri,
		"filename": "pixel.png",
	})
	text := resultText(r)
	if !strings.Contains(text, `"savedPath":"img/pixel.png"`) {
		t.Errorf("upload result = %q", text)
	}
	if !store.Exists("img/pixel.png") {
		t.Error("uploaded file not written")
	}

	// Second upload with the same name collides.
	r = callTool(t, srv, "upload_image", map[string]interface{}{
		"url":      uri,
		"filename": "pixel.png",
	})
	if !r.IsError {
		t.Error("expected error on duplicate upload")
	}
}

func TestUploadImageBadExtension(t *testing.T) {
	srv, _ := testServer(t)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})
	r := callTool(t, srv, "upload_image", map[string]interface{}{
		"url":      uri,
		"filename": "script.sh",
	})
	if !r.IsError {
		t.Error("expected error for disallowed extension")
	}
}
