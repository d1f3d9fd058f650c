package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-liquiddb/pkg/types"
)

func value(t *testing.T, v any) *structpb.Value {
	t.Helper()
	pv, err := types.NewValue(v)
	require.NoError(t, err)
	return pv
}

func set(t *testing.T, tree *Tree, path string, v any) []*types.Operation {
	t.Helper()
	return tree.Apply(Mutation{Path: types.MustParsePath(path), Value: value(t, v), ID: "w"})
}

func summary(ops []*types.Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.String())
	}
	return out
}

// TestTree_InsertUpdateDelete 测试分类规则
func TestTree_InsertUpdateDelete(t *testing.T) {
	tree := New()

	ops := set(t, tree, "foo.bar", 5)
	require.Len(t, ops, 1)
	assert.Equal(t, types.OpInsert, ops[0].Kind)
	assert.Equal(t, "foo.bar", ops[0].Path.String())
	assert.Nil(t, ops[0].Previous)
	assert.Equal(t, "w", ops[0].ID)

	ops = set(t, tree, "foo.bar", 6)
	require.Len(t, ops, 1)
	assert.Equal(t, types.OpUpdate, ops[0].Kind)
	assert.Equal(t, float64(5), ops[0].Previous.GetNumberValue())

	ops = set(t, tree, "foo.bar", 6)
	assert.Empty(t, ops)

	ops = tree.Apply(Mutation{Path: types.MustParsePath("foo.bar")})
	require.Len(t, ops, 1)
	assert.Equal(t, types.OpDelete, ops[0].Kind)
	assert.Nil(t, ops[0].Value)
	assert.Equal(t, float64(6), ops[0].Previous.GetNumberValue())
	assert.Nil(t, tree.Get(types.MustParsePath("foo.bar")))
}

// TestTree_NoAncestorOps 测试深层写入不为祖先合成操作
func TestTree_NoAncestorOps(t *testing.T) {
	tree := New()
	ops := set(t, tree, "a.b.c", true)

	assert.Equal(t, []string{"insert a.b.c"}, summary(ops))
	assert.Equal(t, map[string]any{"b": map[string]any{"c": true}}, tree.Get(types.MustParsePath("a")).AsInterface())
}

// TestTree_WriteUnderScalar 测试写入落在标量之下时报告被替换的祖先
func TestTree_WriteUnderScalar(t *testing.T) {
	tree := New()
	set(t, tree, "foo", 5)

	ops := set(t, tree, "foo.bar", 1)
	assert.Equal(t, []string{"update foo", "insert foo.bar"}, summary(ops))
	assert.Equal(t, float64(5), ops[0].Previous.GetNumberValue())
	assert.Equal(t, map[string]any{"bar": float64(1)}, ops[0].Value.AsInterface())
	assert.Equal(t, "w", ops[1].ID)
	assert.Equal(t, map[string]any{"bar": float64(1)}, tree.Get(types.MustParsePath("foo")).AsInterface())

	// 中间缺失的层级在标量之下逐层插入
	set(t, tree, "q", "s")
	ops = set(t, tree, "q.x.y", true)
	assert.Equal(t, []string{"update q", "insert q.x", "insert q.x.y"}, summary(ops))

	// 删除标量之下的路径不改变任何东西
	assert.Empty(t, tree.Apply(Mutation{Path: types.MustParsePath("foo.bar.baz")}))
}

// TestTree_WriteUnderScalarRoot 测试树根为标量或 null 时的深层写入
func TestTree_WriteUnderScalarRoot(t *testing.T) {
	tree := New()
	tree.Apply(Mutation{Path: types.RootPath, Value: value(t, 3)})

	ops := set(t, tree, "a", 1)
	assert.Equal(t, []string{"update ", "insert a"}, summary(ops))
	assert.Equal(t, float64(3), ops[0].Previous.GetNumberValue())

	set(t, tree, "n", nil)
	ops = set(t, tree, "n.m", 2)
	assert.Equal(t, []string{"update n", "insert n.m"}, summary(ops))
}

// TestTree_SubtreeDelete 测试删除子树为每个后代产生操作
func TestTree_SubtreeDelete(t *testing.T) {
	tree := New()
	set(t, tree, "foo", map[string]any{"bar": 1, "baz": map[string]any{"q": 2}})

	ops := tree.Apply(Mutation{Path: types.MustParsePath("foo")})
	assert.Equal(t, []string{
		"delete foo",
		"delete foo.bar",
		"delete foo.baz",
		"delete foo.baz.q",
	}, summary(ops))
	for _, op := range ops {
		assert.NotNil(t, op.Previous)
	}
}

// TestTree_ReplaceMapPartially 测试映射替换只报告变化的后代
func TestTree_ReplaceMapPartially(t *testing.T) {
	tree := New()
	set(t, tree, "foo", map[string]any{"a": 1, "b": 2})

	ops := set(t, tree, "foo", map[string]any{"a": 1, "b": 3, "c": 4})
	assert.Equal(t, []string{
		"update foo",
		"update foo.b",
		"insert foo.c",
	}, summary(ops))
}

// TestTree_WholeTreeSet 测试整树写入产生逐节点插入
func TestTree_WholeTreeSet(t *testing.T) {
	tree := New()
	ops := tree.Apply(Mutation{Path: types.RootPath, Value: value(t, map[string]any{"foo": map[string]any{"bar": 5}})})

	assert.Equal(t, []string{"insert ", "insert foo", "insert foo.bar"}, summary(ops))
	assert.Equal(t, float64(5), tree.Get(types.MustParsePath("foo.bar")).GetNumberValue())
}

// TestTree_RootDelete 测试删除整树
func TestTree_RootDelete(t *testing.T) {
	tree := New()
	set(t, tree, "a", 1)
	set(t, tree, "b.c", 2)

	ops := tree.Apply(Mutation{Path: types.RootPath})
	assert.Equal(t, []string{"delete ", "delete a", "delete b", "delete b.c"}, summary(ops))
	assert.Nil(t, tree.Get(types.MustParsePath("a")))
	assert.Nil(t, tree.Snapshot())
}

// TestTree_DeleteMissing 测试删除不存在的路径
func TestTree_DeleteMissing(t *testing.T) {
	tree := New()
	assert.Empty(t, tree.Apply(Mutation{Path: types.MustParsePath("nope.here")}))
}

// TestTree_ListsAreAtomic 测试列表整体比较
func TestTree_ListsAreAtomic(t *testing.T) {
	tree := New()
	set(t, tree, "l", []any{1, 2})

	ops := set(t, tree, "l", []any{1, 3})
	assert.Equal(t, []string{"update l"}, summary(ops))
}

// TestTree_NullIsPresent 测试 null 与删除的区别
func TestTree_NullIsPresent(t *testing.T) {
	tree := New()
	ops := set(t, tree, "n", nil)
	assert.Equal(t, []string{"insert n"}, summary(ops))

	v := tree.Get(types.MustParsePath("n"))
	require.NotNil(t, v)
	assert.Nil(t, v.AsInterface())
}

// TestTree_Reset 测试快照重同步产生差异
func TestTree_Reset(t *testing.T) {
	tree := New()
	set(t, tree, "keep", 1)
	set(t, tree, "gone", 2)

	ops := tree.Reset(value(t, map[string]any{"keep": 1, "new": 3}))
	assert.Equal(t, []string{"update ", "delete gone", "insert new"}, summary(ops))

	assert.Empty(t, tree.Reset(value(t, map[string]any{"keep": 1, "new": 3})))
	assert.Equal(t, []string{"delete ", "delete keep", "delete new"}, summary(tree.Reset(nil)))
}

// TestTree_ValuesAreCopies 测试返回值与镜像隔离
func TestTree_ValuesAreCopies(t *testing.T) {
	tree := New()
	ops := set(t, tree, "m", map[string]any{"x": 1})

	ops[0].Value.GetStructValue().Fields["x"] = structpb.NewNumberValue(99)
	got := tree.Get(types.MustParsePath("m"))
	assert.Equal(t, float64(1), got.GetStructValue().Fields["x"].GetNumberValue())

	got.GetStructValue().Fields["x"] = structpb.NewNumberValue(42)
	assert.Equal(t, float64(1), tree.Get(types.MustParsePath("m.x")).GetNumberValue())
}
