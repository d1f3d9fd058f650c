package store

import (
	"sort"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/pkg/lib/log"
	"github.com/dep2p/go-liquiddb/pkg/types"
)

var logger = log.Logger("core/store")

// Mutation 原始树变更
type Mutation struct {
	// Path 变更路径（树根表示整树）
	Path types.Path
	// Value 新值，nil 表示删除子树
	Value *structpb.Value
	// ID 引起变更的写入 ID
	ID string
}

// Tree 树镜像
type Tree struct {
	mu   sync.RWMutex
	root *structpb.Value
}

// New 创建空树（树根不存在）
func New() *Tree {
	return &Tree{}
}

// Get 返回路径处的值副本，不存在返回 nil
func (t *Tree) Get(path types.Path) *structpb.Value {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return types.CloneValue(types.Lookup(t.root, path))
}

// Snapshot 返回整树副本
func (t *Tree) Snapshot() *structpb.Value {
	return t.Get(types.RootPath)
}

// Apply 应用原始变更，返回分类后的操作
//
// 变更与当前值相同时返回空切片。不存在的祖先不产生操作；
// 写入落在已有的非映射祖先之下时，该祖先被替换为映射，
// 差异从该祖先开始计算（祖先 update，其下逐层 insert）。
func (t *Tree) Apply(m Mutation) []*types.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := types.Lookup(t.root, m.Path)
	if types.ValueEqual(prev, m.Value) {
		return nil
	}

	at, before, after := m.Path, prev, m.Value
	if m.Value != nil {
		if k := scalarAncestor(t.root, m.Path); k >= 0 {
			at = m.Path[:k]
			before = types.Lookup(t.root, at)
			after = nest(m.Path[k:], m.Value)
		}
	}

	var ops []*types.Operation
	diff(at.Clone(), before, after, m.ID, &ops)

	if m.Value == nil {
		t.remove(m.Path)
	} else {
		t.put(m.Path, types.CloneValue(m.Value))
	}

	logger.Debug("应用变更", "path", m.Path.String(), "ops", len(ops))
	return ops
}

// Reset 用快照替换整棵树，返回差异操作
//
// snapshot 为 nil 表示空树。
func (t *Tree) Reset(snapshot *structpb.Value) []*types.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ops []*types.Operation
	diff(types.RootPath, t.root, snapshot, "", &ops)
	t.root = types.CloneValue(snapshot)
	return ops
}

// put 在路径处写入值，沿途缺失或非映射的节点替换为空映射
func (t *Tree) put(path types.Path, v *structpb.Value) {
	if path.IsRoot() {
		t.root = v
		return
	}
	if !types.IsMap(t.root) {
		t.root = newMap()
	}
	cur := t.root.GetStructValue()
	for _, seg := range path[:len(path)-1] {
		if cur.Fields == nil {
			cur.Fields = map[string]*structpb.Value{}
		}
		next, ok := cur.Fields[seg]
		if !ok || !types.IsMap(next) {
			next = newMap()
			cur.Fields[seg] = next
		}
		cur = next.GetStructValue()
	}
	if cur.Fields == nil {
		cur.Fields = map[string]*structpb.Value{}
	}
	cur.Fields[path.Last()] = v
}

// remove 删除路径处的子树，路径不存在时不做任何事
func (t *Tree) remove(path types.Path) {
	if path.IsRoot() {
		t.root = nil
		return
	}
	parent := types.Lookup(t.root, path.Parent())
	if fields := types.Fields(parent); fields != nil {
		delete(fields, path.Last())
	}
}

// scalarAncestor 返回路径上第一个存在但不是映射的祖先的深度，没有返回 -1
func scalarAncestor(root *structpb.Value, path types.Path) int {
	cur := root
	for i := range path {
		if cur == nil {
			return -1
		}
		if !types.IsMap(cur) {
			return i
		}
		cur = types.Fields(cur)[path[i]]
	}
	return -1
}

// nest 把 v 包装成沿 segs 逐层嵌套的映射
func nest(segs types.Path, v *structpb.Value) *structpb.Value {
	for i := len(segs) - 1; i >= 0; i-- {
		v = structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{segs[i]: v},
		})
	}
	return v
}

func newMap() *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{}})
}

// diff 先序比较 prev 与 next，把变化追加为操作
//
// 整个子树相同时直接返回，不再深入。
func diff(path types.Path, prev, next *structpb.Value, id string, out *[]*types.Operation) {
	kind, changed := types.Classify(prev, next)
	if !changed {
		return
	}
	*out = append(*out, &types.Operation{
		Kind:     kind,
		Path:     path.Clone(),
		Value:    types.CloneValue(next),
		Previous: types.CloneValue(prev),
		ID:       id,
	})

	pf, nf := types.Fields(prev), types.Fields(next)
	if len(pf) == 0 && len(nf) == 0 {
		return
	}
	for _, k := range unionKeys(pf, nf) {
		diff(path.Child(k), pf[k], nf[k], id, out)
	}
}

func unionKeys(a, b map[string]*structpb.Value) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
