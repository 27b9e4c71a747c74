package kobj

import "github.com/nebulet/nebulet/internal/compiler"

// Wasm is the kernel-object wrapper around a compiled artifact (spec.md
// §3 "Dispatch<T>... T ∈ {..., Wasm, ...}"): immutable once constructed,
// referenced by process_create the way a Channel or Event is referenced
// by any other ABI call that takes a handle.
type Wasm struct {
	Context
	Artifact *compiler.Artifact
}

// NewWasm wraps a freshly compiled artifact.
func NewWasm(art *compiler.Artifact) *Wasm {
	return &Wasm{Artifact: art}
}

func (w *Wasm) Ctx() *Context { return &w.Context }

func (w *Wasm) AllowedUserSignals() Signal { return 0 }

// OnZeroHandles releases the artifact's executable code region once no
// process holds a reference to launch from it anymore.
func (w *Wasm) OnZeroHandles() {
	if w.Artifact != nil && w.Artifact.Code != nil {
		w.Artifact.Code.Close()
	}
}
