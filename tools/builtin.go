package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/donhauser/atlas-agent/docstore"
)

// Builtin tool ids.
const (
	ToolListCollections     = "list_collections"
	ToolGetCollectionSchema = "get_collection_schema"
)

// RegisterBuiltins installs the introspection tools every module gets:
// listing collections and sketching a collection's field shape from a
// sample of its documents.
func RegisterBuiltins(registry *Registry, executor *Executor) error {
	defs := []*Definition{
		{
			ID:          ToolListCollections,
			Name:        "列出数据集合",
			Description: "列出当前可用的数据集合及其文档数量",
			Module:      "system",
			Execution:   Execution{Type: ExecBuiltin},
		},
		{
			ID:          ToolGetCollectionSchema,
			Name:        "查看集合结构",
			Description: "根据样本文档推断指定集合的字段结构",
			Module:      "system",
			Parameters: []Parameter{
				{Name: "collection", Type: "string", Description: "集合名称", Required: true},
			},
			Execution: Execution{Type: ExecBuiltin},
		},
	}
	for _, def := range defs {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	executor.RegisterBuiltin(ToolListCollections, listCollections)
	executor.RegisterBuiltin(ToolGetCollectionSchema, getCollectionSchema)
	return nil
}

func listCollections(ctx context.Context, store docstore.Store, _ map[string]any) (*Result, error) {
	infos, err := store.Collections(ctx)
	if err != nil {
		return nil, WrapError(ErrStoreError, err, "listing collections failed: %v", err)
	}
	visible := make([]docstore.CollectionInfo, 0, len(infos))
	for _, info := range infos {
		if strings.HasPrefix(info.Name, "system.") {
			continue
		}
		visible = append(visible, info)
	}
	return SuccessResult(map[string]any{"collections": visible}), nil
}

// schemaSampleSize bounds how many documents field inference reads.
const schemaSampleSize = 20

// exampleMaxLen caps string example values in schema sketches.
const exampleMaxLen = 100

func getCollectionSchema(ctx context.Context, store docstore.Store, params map[string]any) (*Result, error) {
	collection, _ := params["collection"].(string)
	docs, err := store.Find(ctx, collection, docstore.Query{Limit: schemaSampleSize})
	if err != nil {
		return nil, WrapError(ErrStoreError, err, "sampling %s failed: %v", collection, err)
	}
	count, err := store.Count(ctx, collection, nil)
	if err != nil {
		return nil, WrapError(ErrStoreError, err, "counting %s failed: %v", collection, err)
	}

	type fieldInfo struct {
		typeName string
		example  string
	}
	fields := make(map[string]fieldInfo)
	for _, doc := range docs {
		for name, value := range doc {
			if _, seen := fields[name]; !seen {
				fields[name] = fieldInfo{
					typeName: valueTypeName(value),
					example:  exampleValue(value),
				}
			}
		}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	shaped := make([]map[string]any, 0, len(names))
	for _, name := range names {
		shaped = append(shaped, map[string]any{
			"field":   name,
			"type":    fields[name].typeName,
			"example": fields[name].example,
		})
	}
	return SuccessResult(map[string]any{
		"collection": collection,
		"sampled":    len(docs),
		"count":      count,
		"fields":     shaped,
	}), nil
}

// exampleValue renders a field's sample value for the schema sketch.
// Long strings are truncated; arrays and objects are summarized rather
// than dumped.
func exampleValue(v any) string {
	switch x := v.(type) {
	case string:
		if r := []rune(x); len(r) > exampleMaxLen {
			return string(r[:exampleMaxLen]) + "..."
		}
		return x
	case []any:
		return fmt.Sprintf("[array with %d items]", len(x))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(x))
	default:
		return fmt.Sprint(v)
	}
}

func valueTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, float32, int, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
