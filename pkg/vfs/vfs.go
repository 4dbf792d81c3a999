// Package vfs implements the virtual filesystem layered over the entity
// store (spec §4.K): a POSIX-like namespace where directories and files are
// entities and parent/child structure is carried entirely by `Contains`
// verbs, never by a separate path-tree data structure. `vfsPath` is kept as
// a denormalized, field-indexed convenience for O(1) resolvePathToId, but
// readdir/getDescendants/getTreeStructure always walk `Contains` edges —
// the edge is the source of truth, matching the teacher's one-source-of-
// truth-per-relationship discipline in pkg/graph.
package vfs

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nounverb/nvdb/pkg/blobstore"
	"github.com/nounverb/nvdb/pkg/logging"
	"github.com/nounverb/nvdb/pkg/model"
	"github.com/nounverb/nvdb/pkg/nverrors"
	"github.com/nounverb/nvdb/pkg/query"
	"github.com/nounverb/nvdb/pkg/store"
	"github.com/nounverb/nvdb/pkg/value"
)

// RootID is the fixed entity ID of the VFS root directory (spec §4.K).
const RootID = "00000000-0000-0000-0000-000000000000"

const (
	vfsTypeFile      = "file"
	vfsTypeDirectory = "directory"
	vfsTypeSymlink   = "symlink"
)

type ctxKey struct{}

// WriteContext marks ctx as originating from pkg/vfs, letting
// store.Config.AllowedReserve permit writes to nvdb's reserved VFS
// metadata keys (vfsType, vfsPath, name, storage, size, rawData, path).
func WriteContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, true)
}

// IsWriteContext reports whether ctx was produced by WriteContext. The root
// package wires this into store.Config.AllowedReserve.
func IsWriteContext(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKey{}).(bool)
	return v
}

// Config wires a VFS's collaborators.
type Config struct {
	Store  *store.Store
	Engine *query.Engine
	Log    logging.Logger
	// Blobs, when set, routes file payloads at or above
	// blobstore.Threshold out-of-band (spec §4.C/§4.K) instead of inlining
	// them in the file entity's metadata.
	Blobs *blobstore.Store
}

// VFS implements the path-based namespace over Store/Engine.
type VFS struct {
	// mkdirMu serializes mkdirOne's check-then-create.
	mkdirMu sync.Mutex

	store  *store.Store
	engine *query.Engine
	log    logging.Logger
	blobs  *blobstore.Store

	watchMu        sync.Mutex
	watchers       map[string][]watchEntry
	nextWatchToken uint64
}

// New constructs a VFS, creating the root directory entity if it doesn't
// already exist (idempotent — safe to call on every boot).
func New(cfg Config) (*VFS, error) {
	if cfg.Store == nil {
		return nil, nverrors.Wrap("vfs.New", nverrors.KindInvalidInput, "store is required")
	}
	log := cfg.Log
	if log == nil {
		log = logging.NoOp()
	}
	v := &VFS{
		store:    cfg.Store,
		engine:   cfg.Engine,
		log:      logging.Named(log, "vfs"),
		blobs:    cfg.Blobs,
		watchers: make(map[string][]watchEntry),
	}
	if err := v.ensureRoot(context.Background()); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *VFS) ensureRoot(ctx context.Context) error {
	wctx := WriteContext(ctx)
	ent, err := v.store.Get(wctx, RootID, false)
	if err != nil {
		return err
	}
	if ent != nil {
		return nil
	}
	_, err = v.store.Add(wctx, store.AddParams{
		ID:   RootID,
		Data: "/",
		Type: "Document",
		Metadata: map[string]value.Value{
			"vfsType": value.String(vfsTypeDirectory),
			"vfsPath": value.String("/"),
			"name":    value.String("/"),
		},
	})
	return err
}

// cleanPath normalizes p to an absolute, slash-rooted, Clean'd path with no
// trailing slash (except "/" itself).
func cleanPath(p string) string {
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func parentOf(p string) string {
	if p == "/" {
		return "/"
	}
	return path.Dir(p)
}

func baseOf(p string) string {
	if p == "/" {
		return "/"
	}
	return path.Base(p)
}

// ResolvePathToId resolves a path to its entity ID via the vfsPath field
// index, spec §4.K's resolvePathToId().
func (v *VFS) ResolvePathToId(ctx context.Context, p string) (string, error) {
	p = cleanPath(p)
	if p == "/" {
		return RootID, nil
	}
	ids := v.store.Fields().Lookup("vfsPath", value.String(p))
	if len(ids) == 0 {
		return "", nverrors.New("resolvePathToId", nverrors.KindNotFound, fmt.Errorf("%s: %w", p, nverrors.ErrNotFound))
	}
	return ids[0], nil
}

func (v *VFS) nodeAt(ctx context.Context, p string) (*model.Entity, error) {
	id, err := v.ResolvePathToId(ctx, p)
	if err != nil {
		return nil, err
	}
	ent, err := v.store.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if ent == nil {
		return nil, nverrors.New("vfs", nverrors.KindNotFound, fmt.Errorf("%s: %w", p, nverrors.ErrNotFound))
	}
	return ent, nil
}

func vfsTypeOf(ent *model.Entity) string {
	if v, ok := ent.Metadata["vfsType"]; ok {
		if s, ok := v.String(); ok {
			return s
		}
	}
	return ""
}

// Exists reports whether p resolves to a live node.
func (v *VFS) Exists(ctx context.Context, p string) bool {
	_, err := v.nodeAt(ctx, p)
	return err == nil
}

// FileInfo is stat()'s result shape.
type FileInfo struct {
	ID        string
	Path      string
	Name      string
	IsDir     bool
	IsSymlink bool
	Size      int64
	Mode      uint32
	Owner     string
	Group     string
	CreatedAt int64
	UpdatedAt int64
}

func (v *VFS) toFileInfo(p string, ent *model.Entity) FileInfo {
	fi := FileInfo{
		ID:        ent.ID,
		Path:      p,
		Name:      baseOf(p),
		IsDir:     vfsTypeOf(ent) == vfsTypeDirectory,
		IsSymlink: vfsTypeOf(ent) == vfsTypeSymlink,
		CreatedAt: ent.CreatedAt,
		UpdatedAt: ent.UpdatedAt,
	}
	if s, ok := ent.Metadata["size"]; ok {
		if n, ok := s.Int(); ok {
			fi.Size = n
		}
	}
	if m, ok := ent.Metadata["mode"]; ok {
		if n, ok := m.Int(); ok {
			fi.Mode = uint32(n)
		}
	}
	if o, ok := ent.Metadata["owner"]; ok {
		fi.Owner, _ = o.String()
	}
	if g, ok := ent.Metadata["group"]; ok {
		fi.Group, _ = g.String()
	}
	return fi
}

// Stat returns p's metadata, spec §4.K's stat().
func (v *VFS) Stat(ctx context.Context, p string) (FileInfo, error) {
	p = cleanPath(p)
	ent, err := v.nodeAt(ctx, p)
	if err != nil {
		return FileInfo{}, err
	}
	return v.toFileInfo(p, ent), nil
}

// WriteOpts configures WriteFile.
type WriteOpts struct {
	Mode  uint32
	Owner string
	Group string
}

// WriteFile resolves/creates the parent chain, upserts a file entity, and
// upserts the parent->child Contains edge even on overwrite — the
// orphaned-file fix spec §9 calls out by name (a plain overwrite that
// skipped re-asserting Contains is the historical bug).
func (v *VFS) WriteFile(ctx context.Context, p string, data []byte, opts WriteOpts) error {
	p = cleanPath(p)
	if p == "/" {
		return nverrors.New("writeFile", nverrors.KindInvalidInput, fmt.Errorf("cannot write to root"))
	}
	parentID, err := v.mkdirAll(ctx, parentOf(p))
	if err != nil {
		return err
	}
	wctx := WriteContext(ctx)

	id, err := v.ResolvePathToId(ctx, p)
	metadata := map[string]value.Value{
		"vfsType": value.String(vfsTypeFile),
		"vfsPath": value.String(p),
		"name":    value.String(baseOf(p)),
		"size":    value.Int(int64(len(data))),
	}
	if v.blobs != nil && blobstore.ShouldStore(len(data)) {
		digest, pErr := v.blobs.Put(ctx, data)
		if pErr != nil {
			return pErr
		}
		metadata["storage"] = value.Map(map[string]value.Value{
			"type": value.String("blob"),
			"ref":  value.String(strconv.FormatUint(digest, 16)),
		})
		metadata["rawData"] = value.Bytes(nil)
	} else {
		metadata["storage"] = value.Map(map[string]value.Value{"type": value.String("inline")})
		metadata["rawData"] = value.Bytes(data)
	}
	if opts.Mode != 0 {
		metadata["mode"] = value.Int(int64(opts.Mode))
	}
	if opts.Owner != "" {
		metadata["owner"] = value.String(opts.Owner)
	}
	if opts.Group != "" {
		metadata["group"] = value.String(opts.Group)
	}

	if err == nil {
		// File already exists: overwrite content, then fall through to
		// re-assert Contains below regardless.
		if uErr := v.store.Update(wctx, store.UpdateParams{ID: id, HasData: true, Data: string(data), HasMetadata: true, Metadata: metadata, Merge: true}); uErr != nil {
			return uErr
		}
	} else {
		id = uuid.New().String()
		if _, aErr := v.store.Add(wctx, store.AddParams{ID: id, Data: string(data), Type: "Document", Metadata: metadata}); aErr != nil {
			return aErr
		}
	}

	if _, rErr := v.store.Relate(wctx, store.RelateParams{From: parentID, To: id, Type: model.VerbContains}); rErr != nil {
		return rErr
	}
	v.notify(p)
	return nil
}

// ReadFile returns a file's raw contents.
func (v *VFS) ReadFile(ctx context.Context, p string) ([]byte, error) {
	p = cleanPath(p)
	ent, err := v.nodeAt(ctx, p)
	if err != nil {
		return nil, err
	}
	if vfsTypeOf(ent) != vfsTypeFile {
		return nil, nverrors.New("readFile", nverrors.KindInvalidInput, fmt.Errorf("%s is not a file", p))
	}
	if storageDesc, ok := ent.Metadata["storage"]; ok {
		if m, ok := storageDesc.Map(); ok {
			if t, _ := m["type"].String(); t == "blob" {
				if v.blobs == nil {
					return nil, nverrors.Wrap("readFile", nverrors.KindFatalStorage, "file %s references a blob but no blob store is configured", p)
				}
				refStr, _ := m["ref"].String()
				digest, err := strconv.ParseUint(refStr, 16, 64)
				if err != nil {
					return nil, nverrors.Wrap("readFile", nverrors.KindFatalStorage, "invalid blob ref %q", refStr)
				}
				return v.blobs.Resolve(ctx, digest)
			}
		}
	}
	if raw, ok := ent.Metadata["rawData"]; ok {
		if b, ok := raw.Bytes(); ok {
			return b, nil
		}
		// Bytes persist as base64 JSON strings and load back as String.
		if s, ok := raw.String(); ok {
			if b, err := base64.StdEncoding.DecodeString(s); err == nil {
				return b, nil
			}
		}
	}
	return nil, nil
}

// AppendFile appends data to an existing file, creating it if absent.
func (v *VFS) AppendFile(ctx context.Context, p string, data []byte) error {
	existing, err := v.ReadFile(ctx, p)
	if err != nil && !nverrors.Is(err, nverrors.KindNotFound) {
		return err
	}
	return v.WriteFile(ctx, p, append(existing, data...), WriteOpts{})
}

// Unlink removes a file or symlink (not a directory — use Rmdir).
func (v *VFS) Unlink(ctx context.Context, p string) error {
	p = cleanPath(p)
	ent, err := v.nodeAt(ctx, p)
	if err != nil {
		return err
	}
	if vfsTypeOf(ent) == vfsTypeDirectory {
		return nverrors.New("unlink", nverrors.KindInvalidInput, fmt.Errorf("%s is a directory", p))
	}
	wctx := WriteContext(ctx)
	if err := v.store.Delete(wctx, ent.ID); err != nil {
		return err
	}
	v.notify(p)
	return nil
}

// Mkdir creates a directory; opts.Recursive creates missing ancestors.
type MkdirOpts struct {
	Recursive bool
}

func (v *VFS) Mkdir(ctx context.Context, p string, opts MkdirOpts) error {
	p = cleanPath(p)
	if !opts.Recursive {
		parentID, err := v.ResolvePathToId(ctx, parentOf(p))
		if err != nil {
			return nverrors.New("mkdir", nverrors.KindInvalidInput, fmt.Errorf("parent of %s does not exist", p))
		}
		if _, err := v.mkdirOne(ctx, p, parentID); err != nil {
			return err
		}
		v.notify(p)
		return nil
	}
	if _, err := v.mkdirAll(ctx, p); err != nil {
		return err
	}
	v.notify(p)
	return nil
}

// mkdirAll walks p's ancestor chain shallowest-first, creating any missing
// directory idempotently, and returns the final directory's ID. Sequential
// by construction — this is the race-window fix spec §9 names: parallel
// mkdir+write for the same parent must never race to create duplicate
// directory entities, so every path component is created one at a time.
func (v *VFS) mkdirAll(ctx context.Context, p string) (string, error) {
	p = cleanPath(p)
	if p == "/" {
		return RootID, nil
	}
	parentID, err := v.mkdirAll(ctx, parentOf(p))
	if err != nil {
		return "", err
	}
	return v.mkdirOne(ctx, p, parentID)
}

// mkdirOne creates directory p under parentID if it doesn't already exist,
// idempotently, and returns its ID.
func (v *VFS) mkdirOne(ctx context.Context, p, parentID string) (string, error) {
	v.mkdirMu.Lock()
	defer v.mkdirMu.Unlock()
	if id, err := v.ResolvePathToId(ctx, p); err == nil {
		return id, nil
	}
	wctx := WriteContext(ctx)
	id := uuid.New().String()
	_, err := v.store.Add(wctx, store.AddParams{
		ID:   id,
		Data: baseOf(p),
		Type: "Document",
		Metadata: map[string]value.Value{
			"vfsType": value.String(vfsTypeDirectory),
			"vfsPath": value.String(p),
			"name":    value.String(baseOf(p)),
		},
	})
	if err != nil {
		return "", err
	}
	if _, err := v.store.Relate(wctx, store.RelateParams{From: parentID, To: id, Type: model.VerbContains}); err != nil {
		return "", err
	}
	return id, nil
}

// Rmdir removes an empty directory.
func (v *VFS) Rmdir(ctx context.Context, p string) error {
	p = cleanPath(p)
	if p == "/" {
		return nverrors.New("rmdir", nverrors.KindInvalidInput, fmt.Errorf("cannot remove root"))
	}
	ent, err := v.nodeAt(ctx, p)
	if err != nil {
		return err
	}
	if vfsTypeOf(ent) != vfsTypeDirectory {
		return nverrors.New("rmdir", nverrors.KindInvalidInput, fmt.Errorf("%s is not a directory", p))
	}
	children, err := v.Readdir(ctx, p)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return nverrors.New("rmdir", nverrors.KindInvalidInput, fmt.Errorf("%s is not empty", p))
	}
	wctx := WriteContext(ctx)
	if err := v.store.Delete(wctx, ent.ID); err != nil {
		return err
	}
	v.notify(p)
	return nil
}

// Readdir enumerates p's direct children strictly via Contains outgoing
// edges of the directory entity (spec §4.K) — a directory never lists
// itself, since Contains edges are acyclic by construction (mkdir/rename
// never re-parent a node under its own descendant).
func (v *VFS) Readdir(ctx context.Context, p string) ([]string, error) {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return nil, err
	}
	verbs, err := v.store.GetRelations(ctx, store.GetRelationsParams{From: ent.ID, Type: model.VerbContains, Limit: -1})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(verbs))
	for _, vb := range verbs {
		child, err := v.store.Get(ctx, vb.TargetID, false)
		if err != nil || child == nil {
			continue
		}
		if name, ok := child.Metadata["name"]; ok {
			if s, ok := name.String(); ok {
				names = append(names, s)
				continue
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetDirectChildren is Readdir's entity-level counterpart, spec §6's
// `vfs.getDirectChildren`.
func (v *VFS) GetDirectChildren(ctx context.Context, p string) ([]*model.Entity, error) {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return nil, err
	}
	verbs, err := v.store.GetRelations(ctx, store.GetRelationsParams{From: ent.ID, Type: model.VerbContains, Limit: -1})
	if err != nil {
		return nil, err
	}
	out := make([]*model.Entity, 0, len(verbs))
	for _, vb := range verbs {
		child, err := v.store.Get(ctx, vb.TargetID, false)
		if err == nil && child != nil {
			out = append(out, child)
		}
	}
	return out, nil
}

// TreeNode is getTreeStructure's recursive result shape.
type TreeNode struct {
	Name     string
	Path     string
	IsDir    bool
	Children []*TreeNode
}

// TreeOpts bounds getTreeStructure's recursion.
type TreeOpts struct {
	MaxDepth      int // 0 = unbounded
	IncludeHidden bool
}

// GetTreeStructure recursively walks Contains edges below p.
func (v *VFS) GetTreeStructure(ctx context.Context, p string, opts TreeOpts) (*TreeNode, error) {
	p = cleanPath(p)
	ent, err := v.nodeAt(ctx, p)
	if err != nil {
		return nil, err
	}
	return v.buildTree(ctx, p, ent, opts, 0)
}

func (v *VFS) buildTree(ctx context.Context, p string, ent *model.Entity, opts TreeOpts, depth int) (*TreeNode, error) {
	node := &TreeNode{Name: baseOf(p), Path: p, IsDir: vfsTypeOf(ent) == vfsTypeDirectory}
	if !node.IsDir {
		return node, nil
	}
	if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		return node, nil
	}
	children, err := v.GetDirectChildren(ctx, p)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		name, _ := child.Metadata["name"]
		nameStr, _ := name.String()
		if !opts.IncludeHidden && strings.HasPrefix(nameStr, ".") {
			continue
		}
		childPath := path.Join(p, nameStr)
		childNode, err := v.buildTree(ctx, childPath, child, opts, depth+1)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, childNode)
	}
	sort.Slice(node.Children, func(i, j int) bool { return node.Children[i].Name < node.Children[j].Name })
	return node, nil
}

// DescendantsOpts filters GetDescendants.
type DescendantsOpts struct {
	IncludeAncestor bool
	Type            string // vfsType filter: "file" | "directory" | "" for all
}

// GetDescendants performs a BFS over Contains edges below p.
func (v *VFS) GetDescendants(ctx context.Context, p string, opts DescendantsOpts) ([]*model.Entity, error) {
	p = cleanPath(p)
	ent, err := v.nodeAt(ctx, p)
	if err != nil {
		return nil, err
	}
	var out []*model.Entity
	if opts.IncludeAncestor {
		out = append(out, ent)
	}
	queue := []*model.Entity{ent}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		verbs, err := v.store.GetRelations(ctx, store.GetRelationsParams{From: cur.ID, Type: model.VerbContains, Limit: -1})
		if err != nil {
			return nil, err
		}
		for _, vb := range verbs {
			child, err := v.store.Get(ctx, vb.TargetID, false)
			if err != nil || child == nil {
				continue
			}
			if opts.Type == "" || vfsTypeOf(child) == opts.Type {
				out = append(out, child)
			}
			queue = append(queue, child)
		}
	}
	return out, nil
}

// Rename relocates the Contains edge from the old parent to the new one
// (and renames in place when only the name changes) — spec §4.K: "move
// relocates the Contains edge, not the entity."
func (v *VFS) Rename(ctx context.Context, oldPath, newPath string) error {
	oldPath, newPath = cleanPath(oldPath), cleanPath(newPath)
	if strings.HasPrefix(newPath, oldPath+"/") {
		return nverrors.New("rename", nverrors.KindInvalidInput, fmt.Errorf("cannot move %s under itself", oldPath))
	}
	ent, err := v.nodeAt(ctx, oldPath)
	if err != nil {
		return err
	}
	oldParentID, err := v.ResolvePathToId(ctx, parentOf(oldPath))
	if err != nil {
		return err
	}
	newParentID, err := v.mkdirAll(ctx, parentOf(newPath))
	if err != nil {
		return err
	}

	wctx := WriteContext(ctx)
	oldVerb, err := v.findContainsVerb(ctx, oldParentID, ent.ID)
	if err == nil && oldVerb != "" {
		if err := v.store.Unrelate(wctx, oldVerb); err != nil {
			return err
		}
	}
	if _, err := v.store.Relate(wctx, store.RelateParams{From: newParentID, To: ent.ID, Type: model.VerbContains}); err != nil {
		return err
	}

	metadata := map[string]value.Value{"vfsPath": value.String(newPath), "name": value.String(baseOf(newPath))}
	if err := v.store.Update(wctx, store.UpdateParams{ID: ent.ID, HasMetadata: true, Metadata: metadata, Merge: true}); err != nil {
		return err
	}
	if vfsTypeOf(ent) == vfsTypeDirectory {
		if err := v.reparentDescendantPaths(ctx, oldPath, newPath); err != nil {
			return err
		}
	}
	v.notify(oldPath)
	v.notify(newPath)
	return nil
}

func (v *VFS) reparentDescendantPaths(ctx context.Context, oldPrefix, newPrefix string) error {
	descendants, err := v.GetDescendants(ctx, newPrefix, DescendantsOpts{})
	if err != nil {
		return err
	}
	wctx := WriteContext(ctx)
	for _, d := range descendants {
		oldChildPath, ok := d.Metadata["vfsPath"]
		if !ok {
			continue
		}
		oldP, _ := oldChildPath.String()
		if !strings.HasPrefix(oldP, oldPrefix+"/") {
			continue
		}
		newP := newPrefix + strings.TrimPrefix(oldP, oldPrefix)
		if err := v.store.Update(wctx, store.UpdateParams{ID: d.ID, HasMetadata: true, Merge: true, Metadata: map[string]value.Value{"vfsPath": value.String(newP)}}); err != nil {
			return err
		}
	}
	return nil
}

func (v *VFS) findContainsVerb(ctx context.Context, parentID, childID string) (string, error) {
	verbs, err := v.store.GetRelations(ctx, store.GetRelationsParams{From: parentID, To: childID, Type: model.VerbContains})
	if err != nil {
		return "", err
	}
	if len(verbs) == 0 {
		return "", nverrors.New("findContainsVerb", nverrors.KindNotFound, nverrors.ErrNotFound)
	}
	return verbs[0].ID, nil
}

// Copy duplicates a file's content to a new path; directories are copied
// recursively.
func (v *VFS) Copy(ctx context.Context, srcPath, dstPath string) error {
	srcPath = cleanPath(srcPath)
	ent, err := v.nodeAt(ctx, srcPath)
	if err != nil {
		return err
	}
	if vfsTypeOf(ent) == vfsTypeDirectory {
		if err := v.Mkdir(ctx, dstPath, MkdirOpts{Recursive: true}); err != nil {
			return err
		}
		children, err := v.Readdir(ctx, srcPath)
		if err != nil {
			return err
		}
		for _, name := range children {
			if err := v.Copy(ctx, path.Join(srcPath, name), path.Join(dstPath, name)); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := v.ReadFile(ctx, srcPath)
	if err != nil {
		return err
	}
	return v.WriteFile(ctx, dstPath, data, WriteOpts{})
}

// Chmod sets a node's permission bits (stored as plain, non-reserved
// metadata — nvdb has no OS-level enforcement, just the recorded value).
func (v *VFS) Chmod(ctx context.Context, p string, mode uint32) error {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return err
	}
	return v.store.Update(ctx, store.UpdateParams{ID: ent.ID, HasMetadata: true, Merge: true, Metadata: map[string]value.Value{"mode": value.Int(int64(mode))}})
}

// Chown sets a node's recorded owner/group.
func (v *VFS) Chown(ctx context.Context, p, owner, group string) error {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return err
	}
	return v.store.Update(ctx, store.UpdateParams{ID: ent.ID, HasMetadata: true, Merge: true, Metadata: map[string]value.Value{"owner": value.String(owner), "group": value.String(group)}})
}

// Symlink creates a symlink entity at linkPath pointing at target.
func (v *VFS) Symlink(ctx context.Context, target, linkPath string) error {
	linkPath = cleanPath(linkPath)
	parentID, err := v.mkdirAll(ctx, parentOf(linkPath))
	if err != nil {
		return err
	}
	wctx := WriteContext(ctx)
	id := uuid.New().String()
	_, err = v.store.Add(wctx, store.AddParams{
		ID:   id,
		Data: target,
		Type: "Document",
		Metadata: map[string]value.Value{
			"vfsType": value.String(vfsTypeSymlink),
			"vfsPath": value.String(linkPath),
			"name":    value.String(baseOf(linkPath)),
			"path":    value.String(target),
		},
	})
	if err != nil {
		return err
	}
	_, err = v.store.Relate(wctx, store.RelateParams{From: parentID, To: id, Type: model.VerbContains})
	return err
}

// Readlink returns a symlink's target.
func (v *VFS) Readlink(ctx context.Context, p string) (string, error) {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return "", err
	}
	if vfsTypeOf(ent) != vfsTypeSymlink {
		return "", nverrors.New("readlink", nverrors.KindInvalidInput, fmt.Errorf("%s is not a symlink", p))
	}
	target, ok := ent.Metadata["path"]
	if !ok {
		return "", nil
	}
	s, _ := target.String()
	return s, nil
}

// Realpath resolves symlinks along p, returning the final concrete path.
func (v *VFS) Realpath(ctx context.Context, p string) (string, error) {
	p = cleanPath(p)
	for depth := 0; depth < 32; depth++ {
		ent, err := v.nodeAt(ctx, p)
		if err != nil {
			return "", err
		}
		if vfsTypeOf(ent) != vfsTypeSymlink {
			return p, nil
		}
		target, _ := v.Readlink(ctx, p)
		if strings.HasPrefix(target, "/") {
			p = cleanPath(target)
		} else {
			p = cleanPath(path.Join(parentOf(p), target))
		}
	}
	return "", nverrors.New("realpath", nverrors.KindInvalidInput, fmt.Errorf("too many symlink hops resolving %s", p))
}

// Inspect merges entity + stat + relationship info, a supplemented op
// grounded on the teacher's Document info-aggregation pattern.
type Inspect struct {
	Info         FileInfo
	Entity       *model.Entity
	Relationships []*model.Verb
}

func (v *VFS) InspectPath(ctx context.Context, p string) (*Inspect, error) {
	p = cleanPath(p)
	ent, err := v.nodeAt(ctx, p)
	if err != nil {
		return nil, err
	}
	rels, err := v.store.GetRelations(ctx, store.GetRelationsParams{From: ent.ID, Limit: -1})
	if err != nil {
		return nil, err
	}
	inRels, err := v.store.GetRelations(ctx, store.GetRelationsParams{To: ent.ID, Limit: -1})
	if err != nil {
		return nil, err
	}
	return &Inspect{Info: v.toFileInfo(p, ent), Entity: ent, Relationships: append(rels, inRels...)}, nil
}

// GetMetadata returns a node's non-reserved metadata map.
func (v *VFS) GetMetadata(ctx context.Context, p string) (map[string]value.Value, error) {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(ent.Metadata))
	for k, val := range ent.Metadata {
		if !model.ReservedMetadataKeys[k] {
			out[k] = val
		}
	}
	return out, nil
}

// SetMetadata merges user metadata onto a node, rejecting reserved keys
// (user-facing writes never get the vfs.WriteContext bypass, so the
// store's own guard enforces this).
func (v *VFS) SetMetadata(ctx context.Context, p string, metadata map[string]value.Value) error {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return err
	}
	return v.store.Update(ctx, store.UpdateParams{ID: ent.ID, HasMetadata: true, Merge: true, Metadata: metadata})
}

// Todo is a lightweight per-node task record (supplemented feature,
// grounded on the corpus's `Task` noun type and flexible-metadata idiom).
type Todo struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt int64  `json:"createdAt"`
}

func (v *VFS) GetTodos(ctx context.Context, p string) ([]Todo, error) {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return nil, err
	}
	return decodeTodos(ent.Metadata["todos"]), nil
}

func (v *VFS) SetTodos(ctx context.Context, p string, todos []Todo) error {
	ent, err := v.nodeAt(ctx, cleanPath(p))
	if err != nil {
		return err
	}
	return v.store.Update(ctx, store.UpdateParams{ID: ent.ID, HasMetadata: true, Merge: true, Metadata: map[string]value.Value{"todos": encodeTodos(todos)}})
}

func (v *VFS) AddTodo(ctx context.Context, p string, text string) (Todo, error) {
	existing, err := v.GetTodos(ctx, p)
	if err != nil {
		return Todo{}, err
	}
	t := Todo{ID: uuid.New().String(), Text: text, CreatedAt: time.Now().UnixMilli()}
	existing = append(existing, t)
	return t, v.SetTodos(ctx, p, existing)
}

func encodeTodos(todos []Todo) value.Value {
	items := make([]value.Value, len(todos))
	for i, t := range todos {
		items[i] = value.Map(map[string]value.Value{
			"id":        value.String(t.ID),
			"text":      value.String(t.Text),
			"done":      value.Bool(t.Done),
			"createdAt": value.Int(t.CreatedAt),
		})
	}
	return value.Array(items)
}

func decodeTodos(v value.Value) []Todo {
	arr, ok := v.Array()
	if !ok {
		return nil
	}
	out := make([]Todo, 0, len(arr))
	for _, item := range arr {
		m, ok := item.Map()
		if !ok {
			continue
		}
		t := Todo{}
		if id, ok := m["id"]; ok {
			t.ID, _ = id.String()
		}
		if text, ok := m["text"]; ok {
			t.Text, _ = text.String()
		}
		if done, ok := m["done"]; ok {
			t.Done, _ = done.Bool()
		}
		if ts, ok := m["createdAt"]; ok {
			t.CreatedAt, _ = ts.Int()
		}
		out = append(out, t)
	}
	return out
}

// AddRelationship/RemoveRelationship/GetRelationships are thin wrappers
// over Store.Relate/Unrelate/GetRelations scoped to a path rather than a
// raw entity ID, spec §6's vfs.* relationship surface.
func (v *VFS) AddRelationship(ctx context.Context, fromPath, toPath string, verbType model.VerbType, metadata map[string]value.Value) (string, error) {
	fromID, err := v.ResolvePathToId(ctx, fromPath)
	if err != nil {
		return "", err
	}
	toID, err := v.ResolvePathToId(ctx, toPath)
	if err != nil {
		return "", err
	}
	return v.store.Relate(ctx, store.RelateParams{From: fromID, To: toID, Type: verbType, Metadata: metadata})
}

func (v *VFS) RemoveRelationship(ctx context.Context, verbID string) error {
	return v.store.Unrelate(ctx, verbID)
}

func (v *VFS) GetRelationships(ctx context.Context, p string) ([]*model.Verb, error) {
	id, err := v.ResolvePathToId(ctx, p)
	if err != nil {
		return nil, err
	}
	out, err := v.store.GetRelations(ctx, store.GetRelationsParams{From: id, Limit: -1})
	if err != nil {
		return nil, err
	}
	in, err := v.store.GetRelations(ctx, store.GetRelationsParams{To: id, Limit: -1})
	if err != nil {
		return nil, err
	}
	return append(out, in...), nil
}

// ProjectStats summarizes a subtree, a supplemented reporting op.
type ProjectStats struct {
	TotalFiles       int
	TotalDirectories int
	TotalBytes       int64
}

func (v *VFS) GetProjectStats(ctx context.Context, p string) (ProjectStats, error) {
	descendants, err := v.GetDescendants(ctx, p, DescendantsOpts{})
	if err != nil {
		return ProjectStats{}, err
	}
	var stats ProjectStats
	for _, ent := range descendants {
		switch vfsTypeOf(ent) {
		case vfsTypeDirectory:
			stats.TotalDirectories++
		case vfsTypeFile:
			stats.TotalFiles++
			if s, ok := ent.Metadata["size"]; ok {
				if n, ok := s.Int(); ok {
					stats.TotalBytes += n
				}
			}
		}
	}
	return stats, nil
}

// ImportFile writes an external byte slice as a VFS file at p — the
// primitive spec §1 names as the bulk-import front end's building block.
func (v *VFS) ImportFile(ctx context.Context, p string, data []byte) error {
	return v.WriteFile(ctx, p, data, WriteOpts{})
}

// ImportDirectory imports a path->bytes map as a subtree rooted at base.
func (v *VFS) ImportDirectory(ctx context.Context, base string, files map[string][]byte) error {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := v.ImportFile(ctx, path.Join(base, p), files[p]); err != nil {
			return err
		}
	}
	return nil
}

func (v *VFS) notify(p string) {
	v.watchMu.Lock()
	entries := append([]watchEntry(nil), v.watchers[p]...)
	v.watchMu.Unlock()
	for _, e := range entries {
		e.cb(p)
	}
}
