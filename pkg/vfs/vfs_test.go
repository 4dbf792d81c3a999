package vfs

import (
	"context"
	"testing"

	"github.com/nounverb/nvdb/pkg/embedding"
	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/query"
	"github.com/nounverb/nvdb/pkg/storage"
	"github.com/nounverb/nvdb/pkg/store"
)

func newTestVFS(t *testing.T) *VFS {
	t.Helper()
	s, err := store.New(store.Config{
		Adapter:        storage.NewMemoryAdapter(),
		Embedder:       embedding.NewDeterministic(8),
		AllowedReserve: IsWriteContext,
	})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	eng := query.New(s, nil)
	v, err := New(Config{Store: s, Engine: eng})
	if err != nil {
		t.Fatalf("vfs.New: %v", err)
	}
	return v
}

func TestNewCreatesRootDirectory(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	info, err := v.Stat(ctx, "/")
	if err != nil {
		t.Fatalf("stat root: %v", err)
	}
	if !info.IsDir {
		t.Fatalf("root is not a directory")
	}
	if info.ID != RootID {
		t.Fatalf("root id = %q, want %q", info.ID, RootID)
	}
}

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/notes/a.txt", []byte("hello"), WriteOpts{}); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	data, err := v.ReadFile(ctx, "/notes/a.txt")
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("readFile = %q, want %q", data, "hello")
	}
}

func TestWriteFileCreatesParentDirectoriesRecursively(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/a/b/c/d.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		info, err := v.Stat(ctx, p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if !info.IsDir {
			t.Fatalf("%s is not a directory", p)
		}
	}
}

func TestWriteFileOverwriteReassertsContainsEdge(t *testing.T) {
	// Regression test for the orphaned-file bug: overwriting an existing
	// file must still hold a Contains edge from its parent afterwards.
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/doc.txt", []byte("v1"), WriteOpts{}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := v.WriteFile(ctx, "/doc.txt", []byte("v2"), WriteOpts{}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	names, err := v.Readdir(ctx, "/")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	found := false
	for _, n := range names {
		if n == "doc.txt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("readdir(/) = %v, missing doc.txt after overwrite", names)
	}
	data, err := v.ReadFile(ctx, "/doc.txt")
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("readFile = %q, want %q", data, "v2")
	}
}

func TestWriteFileOverwritePreservesCustomMetadata(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/doc.txt", []byte("v1"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := v.AddTodo(ctx, "/doc.txt", "follow up"); err != nil {
		t.Fatalf("addTodo: %v", err)
	}
	if err := v.WriteFile(ctx, "/doc.txt", []byte("v2"), WriteOpts{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	todos, err := v.GetTodos(ctx, "/doc.txt")
	if err != nil {
		t.Fatalf("getTodos: %v", err)
	}
	if len(todos) != 1 || todos[0].Text != "follow up" {
		t.Fatalf("todos = %v, want 1 surviving todo", todos)
	}
}

func TestReaddirListsDirectChildrenOnly(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/x/a.txt", []byte("a"), WriteOpts{}); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := v.WriteFile(ctx, "/x/y/b.txt", []byte("b"), WriteOpts{}); err != nil {
		t.Fatalf("write b: %v", err)
	}
	names, err := v.Readdir(ctx, "/x")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("readdir(/x) = %v, want 2 entries", names)
	}
}

func TestExistsAndReaddirParentInvariant(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if v.Exists(ctx, "/missing.txt") {
		t.Fatalf("missing.txt should not exist")
	}
	if err := v.WriteFile(ctx, "/missing.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !v.Exists(ctx, "/missing.txt") {
		t.Fatalf("missing.txt should exist after write")
	}
	names, err := v.Readdir(ctx, parentOf("/missing.txt"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	found := false
	for _, n := range names {
		if n == baseOf("/missing.txt") {
			found = true
		}
	}
	if !found {
		t.Fatalf("readdir(parent) = %v, missing basename", names)
	}
}

func TestUnlinkRemovesFileFromReaddir(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/gone.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.Unlink(ctx, "/gone.txt"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if v.Exists(ctx, "/gone.txt") {
		t.Fatalf("gone.txt should not exist after unlink")
	}
}

func TestUnlinkRejectsDirectories(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.Mkdir(ctx, "/dir", MkdirOpts{}); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := v.Unlink(ctx, "/dir"); err == nil {
		t.Fatalf("unlink on a directory should fail")
	}
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/dir/f.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.Rmdir(ctx, "/dir"); err == nil {
		t.Fatalf("rmdir on non-empty directory should fail")
	}
}

func TestRenameRelocatesContainsEdgeNotEntity(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/src/a.txt", []byte("data"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	before, err := v.ResolvePathToId(ctx, "/src/a.txt")
	if err != nil {
		t.Fatalf("resolve before: %v", err)
	}
	if err := v.Mkdir(ctx, "/dst", MkdirOpts{}); err != nil {
		t.Fatalf("mkdir dst: %v", err)
	}
	if err := v.Rename(ctx, "/src/a.txt", "/dst/a.txt"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	after, err := v.ResolvePathToId(ctx, "/dst/a.txt")
	if err != nil {
		t.Fatalf("resolve after: %v", err)
	}
	if before != after {
		t.Fatalf("rename changed entity id: %s -> %s, want same id", before, after)
	}
	if v.Exists(ctx, "/src/a.txt") {
		t.Fatalf("old path should no longer resolve")
	}
}

func TestRenameReparentsDescendantPaths(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/proj/src/main.go", []byte("package main"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.Rename(ctx, "/proj", "/renamed"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !v.Exists(ctx, "/renamed/src/main.go") {
		t.Fatalf("descendant path not reparented")
	}
	if v.Exists(ctx, "/proj/src/main.go") {
		t.Fatalf("old descendant path should no longer resolve")
	}
}

func TestCopyDuplicatesFileUnderNewPath(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/a.txt", []byte("payload"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.Copy(ctx, "/a.txt", "/b.txt"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	data, err := v.ReadFile(ctx, "/b.txt")
	if err != nil {
		t.Fatalf("readFile b: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("copy payload = %q, want %q", data, "payload")
	}
	if !v.Exists(ctx, "/a.txt") {
		t.Fatalf("copy should not remove the source")
	}
}

func TestSymlinkRealpathFollowsTarget(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	if err := v.WriteFile(ctx, "/real.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.Symlink(ctx, "/real.txt", "/link.txt"); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	target, err := v.Realpath(ctx, "/link.txt")
	if err != nil {
		t.Fatalf("realpath: %v", err)
	}
	if target != "/real.txt" {
		t.Fatalf("realpath = %q, want %q", target, "/real.txt")
	}
}

func TestBulkWriteAppliesMkdirsBeforeWritesEvenOutOfOrder(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()

	ops := []Op{
		{Kind: OpWrite, Path: "/p/q/r/file.txt", Data: []byte("x")},
		{Kind: OpMkdir, Path: "/p/q/r", Recursive: true},
		{Kind: OpMkdir, Path: "/p", Recursive: true},
		{Kind: OpMkdir, Path: "/p/q", Recursive: true},
	}
	results := v.BulkWrite(ctx, ops)
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("op %d failed: %v", i, r.Err)
		}
	}
	data, err := v.ReadFile(ctx, "/p/q/r/file.txt")
	if err != nil {
		t.Fatalf("readFile: %v", err)
	}
	if string(data) != "x" {
		t.Fatalf("bulk write payload mismatch")
	}
}

func TestGetDescendantsReturnsNestedEntities(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/root/a/b/c.txt", []byte("x"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	descendants, err := v.GetDescendants(ctx, "/root", DescendantsOpts{})
	if err != nil {
		t.Fatalf("getDescendants: %v", err)
	}
	if len(descendants) != 3 { // a, b, c.txt
		t.Fatalf("getDescendants = %d entities, want 3", len(descendants))
	}
}

func TestGetTreeStructureBuildsNestedTree(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/t/a.txt", []byte("a"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.WriteFile(ctx, "/t/sub/b.txt", []byte("b"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	tree, err := v.GetTreeStructure(ctx, "/t", TreeOpts{MaxDepth: 5})
	if err != nil {
		t.Fatalf("getTreeStructure: %v", err)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("tree children = %d, want 2", len(tree.Children))
	}
}

func TestAddRelationshipAndGetRelationships(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/a.txt", []byte("a"), WriteOpts{}); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := v.WriteFile(ctx, "/b.txt", []byte("b"), WriteOpts{}); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if _, err := v.AddRelationship(ctx, "/a.txt", "/b.txt", model.VerbType("References"), nil); err != nil {
		t.Fatalf("addRelationship: %v", err)
	}
	verbs, err := v.GetRelationships(ctx, "/a.txt")
	if err != nil {
		t.Fatalf("getRelationships: %v", err)
	}
	if len(verbs) == 0 {
		t.Fatalf("expected at least one relationship")
	}
}

func TestGetProjectStatsCountsFilesAndDirectories(t *testing.T) {
	v := newTestVFS(t)
	ctx := context.Background()
	if err := v.WriteFile(ctx, "/proj/a.txt", []byte("12345"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := v.WriteFile(ctx, "/proj/sub/b.txt", []byte("67"), WriteOpts{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	stats, err := v.GetProjectStats(ctx, "/proj")
	if err != nil {
		t.Fatalf("getProjectStats: %v", err)
	}
	if stats.TotalFiles != 2 {
		t.Fatalf("totalFiles = %d, want 2", stats.TotalFiles)
	}
	if stats.TotalDirectories != 1 {
		t.Fatalf("totalDirectories = %d, want 1", stats.TotalDirectories)
	}
	if stats.TotalBytes != 7 {
		t.Fatalf("totalBytes = %d, want 7", stats.TotalBytes)
	}
}
