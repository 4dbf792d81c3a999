package vfs

import (
	"context"

	"github.com/tidwall/sjson"
)

// PatchJSON applies a single sjson dot-path set against a JSON file's
// current contents and writes the result back, the write-side complement
// to the gjson dot-path reads query.Where evaluates against metadata.
func (v *VFS) PatchJSON(ctx context.Context, p, jsonPath string, val interface{}) error {
	data, err := v.ReadFile(ctx, p)
	if err != nil {
		return err
	}
	patched, err := sjson.SetBytes(data, jsonPath, val)
	if err != nil {
		return err
	}
	return v.WriteFile(ctx, p, patched, WriteOpts{})
}
